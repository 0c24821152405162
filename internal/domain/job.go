package domain

import (
	"encoding/json"
	"errors"
	"time"
)

type Status string

const (
	Queued  Status = "queued"
	Running Status = "running"
	Done    Status = "done"
	Error   Status = "error"
)

var ErrNotFound = errors.New("not found")

// Job is the record persisted per lifecycle transition. Every write replaces
// the whole record; status only moves forward (queued -> running -> done|error)
// and each timestamp is set at most once.
type Job struct {
	ID            string          `json:"job_id"`
	CreatedAt     time.Time       `json:"created_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
	Status        Status          `json:"status"`
	Payload       json.RawMessage `json:"payload"`
	Result        json.RawMessage `json:"result,omitempty"`
	R2Key         string          `json:"r2_key,omitempty"`
	DownloadToken string          `json:"download_token,omitempty"`
	DownloadURL   string          `json:"download_url,omitempty"`
	Error         string          `json:"error,omitempty"`
	HTTP          int             `json:"http,omitempty"`
}
