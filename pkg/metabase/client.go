// Package metabase 分析数据源客户端。
//
// 登录令牌放在 TokenStore 中共享；请求遇到 401 时重新登录一次后重试。
// 问题（card）必须是原生 SQL，拉取时先查总行数，再按 LIMIT/OFFSET 并发分页。
package metabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"vendormonitor/pkg/errorutil"
	"vendormonitor/pkg/logger"
)

const sessionHeader = "X-Metabase-Session"

// 团队别名对应的数据库名
var teamDatabases = map[string]string{
	"growth":  "Growth Team Clickhouse Connection",
	"data":    "Data Team Clickhouse Connection",
	"product": "Product Team Clickhouse Connection",
}

// Config 客户端配置
type Config struct {
	URL            string
	Username       string
	Password       string
	Database       string // 数据库 id、团队别名或完整库名
	PageSize       int
	Workers        int
	RequestTimeout time.Duration
	Questions      map[string]int // 数据域 -> 问题 ID
}

// Client 分析数据源客户端，可并发使用
type Client struct {
	cfg    Config
	http   *http.Client
	tokens TokenStore
	logger logger.Logger
	now    func() time.Time

	authMu sync.Mutex
	dbMu   sync.Mutex
	dbIDs  map[string]int
}

// New 创建客户端；tokens 为空时使用内存存储
func New(cfg Config, tokens TokenStore, log logger.Logger) *Client {
	cfg.URL = strings.TrimSuffix(cfg.URL, "/")
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 300 * time.Second
	}
	if tokens == nil {
		tokens = NewMemoryTokenStore()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.RequestTimeout},
		tokens: tokens,
		logger: log,
		now:    time.Now,
		dbIDs:  make(map[string]int),
	}
}

// Login 登录并保存令牌
func (c *Client) Login(ctx context.Context) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	body := map[string]string{"username": c.cfg.Username, "password": c.cfg.Password}
	status, err := c.send(ctx, http.MethodPost, "/api/session", "", body, &resp)
	if err != nil {
		if status == http.StatusUnauthorized || status == http.StatusBadRequest {
			return "", errorutil.NonRetriableWithDetails("metabase authentication failed", err.Error())
		}
		return "", err
	}
	if resp.ID == "" {
		return "", errorutil.NonRetriable("metabase authentication returned no session id")
	}
	if err := c.tokens.Set(ctx, resp.ID); err != nil {
		c.logger.Warnf(ctx, "[Metabase] Failed to persist session token: %v", err)
	}
	c.logger.Infof(ctx, "[Metabase] Authenticated (new session)")
	return resp.ID, nil
}

// token 当前令牌，没有时登录
func (c *Client) token(ctx context.Context) (string, error) {
	if t, err := c.tokens.Get(ctx); err == nil && t != "" {
		return t, nil
	}
	c.authMu.Lock()
	defer c.authMu.Unlock()
	if t, err := c.tokens.Get(ctx); err == nil && t != "" {
		return t, nil
	}
	return c.Login(ctx)
}

// reauth 令牌失效后重新登录；其他调用方已换过新令牌时直接复用
func (c *Client) reauth(ctx context.Context, stale string) (string, error) {
	c.authMu.Lock()
	defer c.authMu.Unlock()

	if current, err := c.tokens.Get(ctx); err == nil && current != "" && current != stale {
		return current, nil
	}
	if err := c.tokens.Invalidate(ctx, stale); err != nil {
		c.logger.Warnf(ctx, "[Metabase] Failed to invalidate stale token: %v", err)
	}
	return c.Login(ctx)
}

// do 带认证的请求，401 时重新登录并重试一次
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	status, err := c.send(ctx, method, path, token, body, out)
	if status != http.StatusUnauthorized {
		return err
	}

	c.logger.Infof(ctx, "[Metabase] Session expired (401) on %s, reauthenticating", path)
	token, err = c.reauth(ctx, token)
	if err != nil {
		return err
	}
	_, err = c.send(ctx, method, path, token, body, out)
	return err
}

// send 发送单个请求并解码 JSON 响应
func (c *Client) send(ctx context.Context, method, path, token string, body, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, errorutil.NonRetriableWithDetails("failed to marshal request", err.Error())
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.URL+path, reader)
	if err != nil {
		return 0, errorutil.NonRetriableWithDetails("failed to build request", err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(sessionHeader, token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, errorutil.RetriableWithDetails(fmt.Sprintf("metabase %s %s failed", method, path), err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		e := errorutil.FromStatus(resp.StatusCode, fmt.Sprintf("metabase %s %s: status %d", method, path, resp.StatusCode))
		e.DevDetails = strings.TrimSpace(string(snippet))
		return resp.StatusCode, e
	}

	if out == nil {
		return resp.StatusCode, nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return resp.StatusCode, errorutil.RetriableWithDetails("failed to decode metabase response", err.Error())
	}
	return resp.StatusCode, nil
}

// QuestionSQL 读取问题的原生 SQL
func (c *Client) QuestionSQL(ctx context.Context, questionID int) (string, error) {
	var card struct {
		DatasetQuery struct {
			Native *struct {
				Query string `json:"query"`
			} `json:"native"`
		} `json:"dataset_query"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/card/%d", questionID), nil, &card); err != nil {
		return "", err
	}
	if card.DatasetQuery.Native == nil || strings.TrimSpace(card.DatasetQuery.Native.Query) == "" {
		return "", errorutil.NonRetriable(fmt.Sprintf("question %d is not a native SQL query", questionID))
	}
	return card.DatasetQuery.Native.Query, nil
}

// ResolveDatabase 将配置的数据库（id / 团队别名 / 完整库名）解析为 id，结果缓存
func (c *Client) ResolveDatabase(ctx context.Context) (int, error) {
	if id, err := strconv.Atoi(strings.TrimSpace(c.cfg.Database)); err == nil {
		return id, nil
	}

	name := c.cfg.Database
	if full, ok := teamDatabases[strings.ToLower(name)]; ok {
		name = full
	}

	c.dbMu.Lock()
	defer c.dbMu.Unlock()
	if id, ok := c.dbIDs[name]; ok {
		return id, nil
	}

	var list struct {
		Data []struct {
			ID   int    `json:"id"`
			Name string `json:"name"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/database", nil, &list); err != nil {
		return 0, err
	}
	for _, db := range list.Data {
		c.dbIDs[db.Name] = db.ID
	}

	id, ok := c.dbIDs[name]
	if !ok {
		return 0, errorutil.NonRetriable(fmt.Sprintf("database %q not found", name))
	}
	return id, nil
}
