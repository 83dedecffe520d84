package pinger

import (
	"context"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Pinger 向自身的公开地址发 HEAD 请求，防止托管平台因空闲而休眠实例。
// 失败只记日志，不影响调用方。
type Pinger struct {
	url    string
	client *http.Client
	logger *zap.SugaredLogger
}

// New 在 url 为空时返回 nil，nil *Pinger 的所有方法都是空操作。
func New(url string, timeout time.Duration, logger *zap.SugaredLogger) *Pinger {
	if url == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Pinger{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// URL 返回 ping 目标。
func (p *Pinger) URL() string {
	if p == nil {
		return ""
	}
	return p.url
}

// Ping 返回目标是否有响应。任何 HTTP 状态码都算响应，只有传输层错误算失败。
func (p *Pinger) Ping(ctx context.Context) bool {
	if p == nil {
		return true
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		p.logger.Warnw("self-ping failed (non-critical)", "url", p.url, "error", err)
		return false
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warnw("self-ping failed (non-critical)", "url", p.url, "error", err)
		return false
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()

	p.logger.Debugw("self-ping", "url", p.url, "status", resp.StatusCode)
	return true
}
