package business

// Table 单个告警表：同一身份任一时刻只在 active / cleared 之一中出现
type Table[K comparable, A any] struct {
	active  map[K]A
	cleared map[K]A
	order   []K // 首次激活顺序，用于稳定输出
}

// NewTable 创建告警表
func NewTable[K comparable, A any]() *Table[K, A] {
	return &Table[K, A]{
		active:  make(map[K]A),
		cleared: make(map[K]A),
	}
}

// Active 查询活跃告警
func (t *Table[K, A]) Active(k K) (A, bool) {
	a, ok := t.active[k]
	return a, ok
}

// Cleared 查询已清除告警
func (t *Table[K, A]) Cleared(k K) (A, bool) {
	a, ok := t.cleared[k]
	return a, ok
}

// Activate 写入活跃告警，返回是否新建
func (t *Table[K, A]) Activate(k K, a A) bool {
	_, existed := t.active[k]
	if !existed {
		t.order = append(t.order, k)
	}
	delete(t.cleared, k)
	t.active[k] = a
	return !existed
}

// Clear 将身份从活跃移到已清除
func (t *Table[K, A]) Clear(k K, a A) {
	delete(t.active, k)
	t.cleared[k] = a
	t.compact()
}

// ActiveKeys 活跃身份（按首次激活顺序）
func (t *Table[K, A]) ActiveKeys() []K {
	keys := make([]K, 0, len(t.active))
	seen := make(map[K]struct{}, len(t.active))
	for _, k := range t.order {
		if _, dup := seen[k]; dup {
			continue
		}
		if _, ok := t.active[k]; ok {
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	return keys
}

// ActiveList 活跃告警列表（副本）
func (t *Table[K, A]) ActiveList() []A {
	out := make([]A, 0, len(t.active))
	for _, k := range t.ActiveKeys() {
		out = append(out, t.active[k])
	}
	return out
}

// ClearedList 已清除告警列表（副本）
func (t *Table[K, A]) ClearedList() []A {
	out := make([]A, 0, len(t.cleared))
	for _, a := range t.cleared {
		out = append(out, a)
	}
	return out
}

// ActiveLen 活跃数量
func (t *Table[K, A]) ActiveLen() int { return len(t.active) }

// ClearedLen 已清除数量
func (t *Table[K, A]) ClearedLen() int { return len(t.cleared) }

// Reset 清空
func (t *Table[K, A]) Reset() {
	t.active = make(map[K]A)
	t.cleared = make(map[K]A)
	t.order = nil
}

// compact 清理 order 中已不活跃的身份，避免无限增长
func (t *Table[K, A]) compact() {
	if len(t.order) <= 2*len(t.active)+16 {
		return
	}
	t.order = t.ActiveKeys()
}
