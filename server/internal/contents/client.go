package contents

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
)

const (
	DefaultBaseURL = "https://api.github.com"
	mediaType      = "application/vnd.github.v3+json"
	errBodyLimit   = 4096
)

// File 是 GET contents/{path} 返回的文件描述，这里只保留用得到的字段。
type File struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	SHA      string `json:"sha"`
	Size     int    `json:"size"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
}

// UpdateRequest 是 PUT contents/{path} 的请求体。
// SHA 必须是读取时拿到的 blob sha，否则 GitHub 以 409 拒绝写入。
type UpdateRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

// UpdateResult 是写入成功后的新版本信息。
type UpdateResult struct {
	Content struct {
		SHA  string `json:"sha"`
		Path string `json:"path"`
	} `json:"content"`
	Commit struct {
		SHA     string `json:"sha"`
		Message string `json:"message"`
	} `json:"commit"`
}

// APIError 表示 GitHub 返回了非 2xx。Body 是截断后的原始响应体。
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github %s %s: status=%d body=%s", e.Method, e.URL, e.StatusCode, string(e.Body))
}

// StatusText 返回 HTTP 状态码对应的短语，例如 "Not Found"。
func (e *APIError) StatusText() string {
	return http.StatusText(e.StatusCode)
}

// Conflict 表示写入因 sha 过期被拒绝（409）。
func (e *APIError) Conflict() bool {
	return e.StatusCode == http.StatusConflict
}

// Client 封装 GitHub contents API 中读写单个文件的两个操作。
type Client struct {
	httpClient *http.Client
	baseURL    string
	owner      string
	repo       string
}

type Options struct {
	BaseURL string
	Owner   string
	Repo    string
	Token   string
	// Timeout 为 0 表示不设超时。
	Timeout time.Duration
}

func NewClient(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	// GitHub 同时接受 "token" 和 "Bearer"，这里沿用 "token" 前缀。
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token, TokenType: "token"})
	httpClient := oauth2.NewClient(context.Background(), ts)
	httpClient.Timeout = opts.Timeout

	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		owner:      opts.Owner,
		repo:       opts.Repo,
	}
}

// GetFile 读取 ref 分支上的文件内容和 sha。
func (c *Client) GetFile(ctx context.Context, path, ref string) (*File, error) {
	u := c.fileURL(path)
	if ref != "" {
		u += "?ref=" + url.QueryEscape(ref)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", mediaType)

	var out File
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateFile 以 req.SHA 为条件覆盖文件。
func (c *Client) UpdateFile(ctx context.Context, path string, body UpdateRequest) (*UpdateResult, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.fileURL(path), bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", mediaType)
	req.Header.Set("Content-Type", "application/json")

	var out UpdateResult
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("github request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		limited, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyLimit))
		return &APIError{
			Method:     req.Method,
			URL:        req.URL.Path,
			StatusCode: resp.StatusCode,
			Body:       bytes.TrimSpace(limited),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) fileURL(path string) string {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		c.baseURL, url.PathEscape(c.owner), url.PathEscape(c.repo), strings.Join(segs, "/"))
}
