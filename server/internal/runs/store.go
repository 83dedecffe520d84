package runs

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("no run recorded")

type Outcome string

const (
	OutcomeSuccess    Outcome = "success"
	OutcomeFetchError Outcome = "fetch_error"
	OutcomeWriteError Outcome = "write_error"
	OutcomeConflict   Outcome = "conflict"
	OutcomeError      Outcome = "error"
)

// Record 是一次 cron 调用的结果快照，用于查询最近一次运行和推送给观察者。
// BaseSHA 是写入所依据的版本，CommitSHA 是写入生成的提交。
type Record struct {
	RunID         string    `json:"runId"`
	Outcome       Outcome   `json:"outcome"`
	PreviousCount int64     `json:"previousCount"`
	NewCount      int64     `json:"newCount"`
	Recovered     bool      `json:"recovered,omitempty"`
	BaseSHA       string    `json:"baseSha,omitempty"`
	CommitSHA     string    `json:"commitSha,omitempty"`
	Pinged        bool      `json:"pinged,omitempty"`
	Error         string    `json:"error,omitempty"`
	StartedAt     time.Time `json:"startedAt"`
	Duration      string    `json:"duration"`
}

type Store interface {
	Save(ctx context.Context, rec *Record) error
	// Last 返回最近一次保存的记录，没有记录时返回 ErrNotFound。
	Last(ctx context.Context) (*Record, error)
}
