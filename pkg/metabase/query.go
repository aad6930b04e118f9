package metabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"vendormonitor/internal/framework"
	"vendormonitor/pkg/errorutil"
	"vendormonitor/pkg/logger"
)

// 行数偏差告警阈值：同时超过 50 行和 1%
const (
	mismatchRows  = 50
	mismatchRatio = 0.01
)

// Table 查询结果
type Table struct {
	Columns []string
	Rows    [][]interface{}
}

type datasetResponse struct {
	Status string      `json:"status"`
	Error  interface{} `json:"error"`
	Data   struct {
		Rows [][]interface{} `json:"rows"`
		Cols []struct {
			Name string `json:"name"`
		} `json:"cols"`
	} `json:"data"`
}

// Query 执行一条原生 SQL
func (c *Client) Query(ctx context.Context, sql string, databaseID, maxResults int) (*Table, error) {
	payload := map[string]interface{}{
		"type":     "native",
		"native":   map[string]string{"query": sql},
		"database": databaseID,
		"constraints": map[string]int{
			"max-results":           maxResults,
			"max-results-bare-rows": maxResults,
		},
	}

	var resp datasetResponse
	if err := c.do(ctx, http.MethodPost, "/api/dataset", payload, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "" && resp.Status != "completed" {
		return nil, errorutil.NonRetriableWithDetails(
			fmt.Sprintf("query failed with status %s", resp.Status), fmt.Sprint(resp.Error))
	}

	t := &Table{Columns: make([]string, 0, len(resp.Data.Cols)), Rows: resp.Data.Rows}
	for _, col := range resp.Data.Cols {
		t.Columns = append(t.Columns, col.Name)
	}
	return t, nil
}

// CountRows 子查询计数
func (c *Client) CountRows(ctx context.Context, sql string, databaseID int) (int, error) {
	countSQL := fmt.Sprintf("SELECT COUNT(*) AS total_rows FROM (%s) subq", trimSQL(sql))
	t, err := c.Query(ctx, countSQL, databaseID, 1)
	if err != nil {
		return 0, err
	}
	if len(t.Rows) == 0 || len(t.Rows[0]) == 0 {
		return 0, errorutil.Retriable("row count query returned no rows")
	}

	idx := 0
	for i, name := range t.Columns {
		if name == "total_rows" {
			idx = i
		}
	}
	switch v := t.Rows[0][idx].(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, errorutil.NonRetriableWithDetails("invalid row count", v.String())
		}
		return int(n), nil
	case float64:
		return int(v), nil
	default:
		return 0, errorutil.NonRetriableWithDetails("invalid row count", fmt.Sprint(v))
	}
}

// FetchQuestion 拉取问题的完整结果：先计数，再并发分页
func (c *Client) FetchQuestion(ctx context.Context, questionID int) (*Table, error) {
	sql, err := c.QuestionSQL(ctx, questionID)
	if err != nil {
		return nil, err
	}
	dbID, err := c.ResolveDatabase(ctx)
	if err != nil {
		return nil, err
	}

	total, err := c.CountRows(ctx, sql, dbID)
	if err != nil {
		return nil, fmt.Errorf("count rows of question %d: %w", questionID, err)
	}
	if total == 0 {
		return &Table{}, nil
	}

	pageSize := c.cfg.PageSize
	pages := (total + pageSize - 1) / pageSize
	c.logger.Infof(ctx, "[Metabase] Question %d: total_rows=%d pages=%d page_size=%d workers=%d",
		questionID, total, pages, pageSize, c.cfg.Workers)

	parts := make([]*Table, pages)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)
	for i := 0; i < pages; i++ {
		page := i
		g.Go(func() error {
			paged := fmt.Sprintf("%s LIMIT %d OFFSET %d", trimSQL(sql), pageSize, page*pageSize)
			t, err := c.Query(gctx, paged, dbID, pageSize)
			if err != nil {
				return fmt.Errorf("page %d/%d of question %d: %w", page+1, pages, questionID, err)
			}
			parts[page] = t
			c.logger.Debugf(ctx, "[Metabase] Question %d page %d/%d fetched (%d rows)", questionID, page+1, pages, len(t.Rows))
			return nil
		})
	}
	// 任一页失败则整次拉取失败，不返回部分数据
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Table{Columns: parts[0].Columns, Rows: make([][]interface{}, 0, total)}
	for _, p := range parts {
		out.Rows = append(out.Rows, p.Rows...)
	}

	diff := len(out.Rows) - total
	if diff < 0 {
		diff = -diff
	}
	if diff > mismatchRows && float64(diff)/float64(total) > mismatchRatio {
		c.logger.Warnf(ctx, "[Metabase] Question %d row mismatch: expected %d, got %d", questionID, total, len(out.Rows))
	}
	return out, nil
}

// Fetch 按数据域拉取数据集（实现 framework.TabularSource）
func (c *Client) Fetch(ctx context.Context, domain framework.Domain) (*framework.Dataset, error) {
	questionID, ok := c.cfg.Questions[string(domain)]
	if !ok {
		return nil, errorutil.NonRetriable(fmt.Sprintf("no question configured for domain %s", domain))
	}

	ctx = logger.WithDomain(ctx, string(domain))
	t, err := c.FetchQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}

	ds := &framework.Dataset{
		Domain:    domain,
		Columns:   t.Columns,
		Rows:      make([]framework.Row, 0, len(t.Rows)),
		FetchedAt: c.now(),
	}
	for _, raw := range t.Rows {
		row := make(framework.Row, len(t.Columns))
		for i, col := range t.Columns {
			if i < len(raw) {
				row[col] = raw[i]
			}
		}
		ds.Rows = append(ds.Rows, row)
	}
	return ds, nil
}

func trimSQL(sql string) string {
	return strings.TrimRight(strings.TrimSpace(sql), ";")
}
