package counter

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"go.uber.org/zap"

	"cron-counter/server/internal/codec"
	"cron-counter/server/internal/contents"
)

var (
	ErrFetch = errors.New("failed to fetch file")
	ErrWrite = errors.New("failed to update file")
	// ErrOverflow 表示计数已达到或超出 int64 上限，无法再递增。
	ErrOverflow = errors.New("counter at maximum value")
)

// UpstreamError 描述一次失败的读或写。Op 是 ErrFetch 或 ErrWrite，
// Detail 是返回给调用方的说明（状态短语或上游错误体）。
type UpstreamError struct {
	Op     error
	Detail string
	Err    error
}

func (e *UpstreamError) Error() string {
	return e.Op.Error() + ": " + e.Detail
}

func (e *UpstreamError) Unwrap() []error {
	return []error{e.Op, e.Err}
}

// Conflict 表示写入因 sha 过期被拒绝。
func (e *UpstreamError) Conflict() bool {
	var apiErr *contents.APIError
	return errors.Is(e.Op, ErrWrite) && errors.As(e.Err, &apiErr) && apiErr.Conflict()
}

// Store 是计数文件所在的远端内容存储。
type Store interface {
	GetFile(ctx context.Context, path, ref string) (*contents.File, error)
	UpdateFile(ctx context.Context, path string, req contents.UpdateRequest) (*contents.UpdateResult, error)
}

// Target 指定计数文件的位置。
type Target struct {
	Path   string
	Branch string
}

// Result 是一次成功递增的结果。
type Result struct {
	PreviousCount int64
	NewCount      int64
	// Recovered 表示存储内容无法解析，按 0 处理。
	Recovered bool
	// PreviousSHA 是读取时的版本，CommitSHA 是写入生成的提交。
	PreviousSHA string
	CommitSHA   string
}

// Updater 负责一次完整的读-改-写。
//
// 契约：
// - 写入以读取时的 sha 为条件，远端拒绝即失败，不重试。
// - 任一步失败都终止本次调用，远端计数保持原值。
type Updater struct {
	store  Store
	codec  codec.Codec
	target Target
	logger *zap.SugaredLogger
}

func New(store Store, c codec.Codec, target Target, logger *zap.SugaredLogger) *Updater {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Updater{
		store:  store,
		codec:  c,
		target: target,
		logger: logger,
	}
}

// Increment 读取当前值，加一后写回。
func (u *Updater) Increment(ctx context.Context) (Result, error) {
	file, err := u.store.GetFile(ctx, u.target.Path, u.target.Branch)
	if err != nil {
		return Result{}, &UpstreamError{Op: ErrFetch, Detail: fetchDetail(err), Err: err}
	}

	text, err := u.codec.DecodeString(file.Content)
	if err != nil {
		return Result{}, fmt.Errorf("decode %s: %w", u.target.Path, err)
	}

	current, err := ParseCount(text)
	recovered := false
	switch {
	case errors.Is(err, ErrOverflow):
		return Result{}, fmt.Errorf("parse %s: %w", u.target.Path, err)
	case err != nil:
		// 内容损坏时按 0 继续，但在日志里留下原始内容。
		u.logger.Warnw("counter content unparseable, treating as zero",
			"path", u.target.Path, "branch", u.target.Branch, "sha", file.SHA, "content", text)
		recovered = true
	}
	if current == math.MaxInt64 {
		return Result{}, ErrOverflow
	}
	next := current + 1

	res, err := u.store.UpdateFile(ctx, u.target.Path, contents.UpdateRequest{
		Message: CommitMessage(next),
		Content: u.codec.EncodeString(strconv.FormatInt(next, 10)),
		SHA:     file.SHA,
		Branch:  u.target.Branch,
	})
	if err != nil {
		return Result{}, &UpstreamError{Op: ErrWrite, Detail: writeDetail(err), Err: err}
	}

	return Result{
		PreviousCount: current,
		NewCount:      next,
		Recovered:     recovered,
		PreviousSHA:   file.SHA,
		CommitSHA:     res.Commit.SHA,
	}, nil
}

// CommitMessage 是每次写入的提交说明。
func CommitMessage(n int64) string {
	return "Update counter to " + strconv.FormatInt(n, 10)
}

func fetchDetail(err error) string {
	var apiErr *contents.APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusText()
	}
	return err.Error()
}

func writeDetail(err error) string {
	var apiErr *contents.APIError
	if errors.As(err, &apiErr) {
		if len(apiErr.Body) > 0 {
			return string(apiErr.Body)
		}
		return apiErr.StatusText()
	}
	return err.Error()
}
