// Package contentstest 提供进程内的 GitHub contents API 替身，供测试使用。
package contentstest

import (
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"cron-counter/server/internal/contents"
)

// FakeGitHub 模拟单个文件的读写，并像真实 API 一样校验 sha。
type FakeGitHub struct {
	*httptest.Server

	mu      sync.Mutex
	path    string
	content string
	sha     string

	// GetStatus / PutStatus 非 0 时直接返回该状态码和 ErrorBody。
	GetStatus int
	PutStatus int
	ErrorBody string

	Gets     int
	Puts     int
	LastAuth string
	LastRef  string
	LastPut  *contents.UpdateRequest
}

// NewFakeGitHub 启动 fake，文件位于 repos/{owner}/{repo}/contents/{path}。
func NewFakeGitHub(owner, repo, path, content, sha string) *FakeGitHub {
	f := &FakeGitHub{
		path:    "/repos/" + owner + "/" + repo + "/contents/" + path,
		content: content,
		sha:     sha,
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	return f
}

// Content 返回当前存储的明文。
func (f *FakeGitHub) Content() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.content
}

// SHA 返回当前版本的 sha。
func (f *FakeGitHub) SHA() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sha
}

// Calls 返回 GET 与 PUT 的总次数。
func (f *FakeGitHub) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Gets + f.Puts
}

// SetStatus 设置之后请求的失败状态码。
func (f *FakeGitHub) SetStatus(get, put int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GetStatus, f.PutStatus, f.ErrorBody = get, put, body
}

func (f *FakeGitHub) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.LastAuth = r.Header.Get("Authorization")
	w.Header().Set("Content-Type", "application/json")

	if r.URL.Path != f.path {
		f.fail(w, http.StatusNotFound, `{"message":"Not Found"}`)
		return
	}

	switch r.Method {
	case http.MethodGet:
		f.Gets++
		f.LastRef = r.URL.Query().Get("ref")
		if f.GetStatus != 0 {
			f.fail(w, f.GetStatus, f.ErrorBody)
			return
		}
		_ = json.NewEncoder(w).Encode(contents.File{
			Name:     f.path[strings.LastIndex(f.path, "/")+1:],
			Path:     strings.SplitN(f.path, "/contents/", 2)[1],
			SHA:      f.sha,
			Size:     len(f.content),
			Encoding: "base64",
			Content:  base64.StdEncoding.EncodeToString([]byte(f.content)) + "\n",
		})
	case http.MethodPut:
		f.Puts++
		var req contents.UpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			f.fail(w, http.StatusBadRequest, `{"message":"Problems parsing JSON"}`)
			return
		}
		f.LastPut = &req
		if f.PutStatus != 0 {
			f.fail(w, f.PutStatus, f.ErrorBody)
			return
		}
		if req.SHA != f.sha {
			f.fail(w, http.StatusConflict, `{"message":"`+strings.TrimPrefix(f.path, "/")+` does not match `+req.SHA+`"}`)
			return
		}
		raw, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			f.fail(w, http.StatusUnprocessableEntity, `{"message":"content is not valid Base64"}`)
			return
		}
		f.content = string(raw)
		sum := sha1.Sum(raw)
		f.sha = hex.EncodeToString(sum[:])

		var out contents.UpdateResult
		out.Content.SHA = f.sha
		out.Content.Path = strings.SplitN(f.path, "/contents/", 2)[1]
		out.Commit.SHA = "c" + f.sha[:7]
		out.Commit.Message = req.Message
		_ = json.NewEncoder(w).Encode(out)
	default:
		f.fail(w, http.StatusMethodNotAllowed, `{"message":"Method Not Allowed"}`)
	}
}

func (f *FakeGitHub) fail(w http.ResponseWriter, status int, body string) {
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
