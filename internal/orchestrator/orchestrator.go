// Package orchestrator owns the job lifecycle: admit a submission, persist
// queued state, hand the expensive work to the runner in the background, and
// reconcile the outcome into a terminal record that clients poll for.
package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/you/snapsize/internal/domain"
	"github.com/you/snapsize/internal/limit"
	"github.com/you/snapsize/internal/runner"
	"github.com/you/snapsize/internal/store"
)

type Orchestrator struct {
	jobs    *store.JobStore
	prober  *limit.Prober
	runner  *runner.Client
	disp    *Dispatcher
	baseURL string // canonical public origin; falls back to the request origin
	log     *zap.Logger
}

func New(jobs *store.JobStore, prober *limit.Prober, run *runner.Client, disp *Dispatcher, baseURL string, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		jobs:    jobs,
		prober:  prober,
		runner:  run,
		disp:    disp,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
	}
}

// Submit admits an already size-checked body, persists the queued record and
// schedules processing. It returns as soon as the record is written; callers
// learn the outcome by polling. A body that is not valid JSON is tolerated
// and stored as an empty payload, since image_url is optional at this layer.
func (o *Orchestrator) Submit(ctx context.Context, body []byte, requestOrigin string) (string, error) {
	payload := json.RawMessage(body)
	if len(body) == 0 || !json.Valid(body) {
		payload = json.RawMessage(`{}`)
	}

	job := &domain.Job{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Status:    domain.Queued,
		Payload:   payload,
	}
	if err := o.jobs.Put(ctx, job); err != nil {
		return "", errors.Wrap(err, "persist queued job")
	}
	o.log.Info("job queued", zap.String("job_id", job.ID))

	base := o.baseURL
	if base == "" {
		base = strings.TrimRight(requestOrigin, "/")
	}
	o.disp.Go(job.ID, func(ctx context.Context) { o.process(ctx, job, base) })
	return job.ID, nil
}

// process drives one job to a terminal state. Writes are ordered within this
// single goroutine, so the record never needs cross-writer arbitration.
func (o *Orchestrator) process(ctx context.Context, job *domain.Job, base string) {
	defer func() {
		if r := recover(); r != nil {
			o.fail(ctx, job, fmt.Sprintf("panic: %v", r), 0)
		}
	}()

	if url := imageURL(job.Payload); url != "" {
		if err := o.prober.CheckSize(ctx, url); err != nil {
			if errors.Is(err, limit.ErrTooLarge) {
				o.fail(ctx, job, "image exceeds size limit", http.StatusRequestEntityTooLarge)
			} else {
				o.fail(ctx, job, err.Error(), 0)
			}
			return
		}
	}

	now := time.Now().UTC()
	job.Status = domain.Running
	job.StartedAt = &now
	if err := o.jobs.Put(ctx, job); err != nil {
		o.fail(ctx, job, "persist running state: "+err.Error(), 0)
		return
	}

	raw, err := o.runner.Generate(ctx, runner.Request{
		JobID:     job.ID,
		CreatedAt: job.CreatedAt,
		Payload:   job.Payload,
	})
	if err != nil {
		var se *runner.StatusError
		if errors.As(err, &se) {
			o.fail(ctx, job, se.Body, se.Code)
		} else {
			o.fail(ctx, job, err.Error(), 0)
		}
		return
	}

	if json.Valid(raw) {
		job.Result = json.RawMessage(raw)
	} else {
		// Keep the raw text as the result value.
		quoted, _ := json.Marshal(string(raw))
		job.Result = quoted
	}

	if key := extractR2Key(job.Result); key != "" {
		token, err := mintToken()
		if err != nil {
			o.fail(ctx, job, "mint download token: "+err.Error(), 0)
			return
		}
		job.R2Key = key
		job.DownloadToken = token
		job.DownloadURL = fmt.Sprintf("%s/download/%s?token=%s", base, job.ID, token)
	}

	done := time.Now().UTC()
	job.Status = domain.Done
	job.FinishedAt = &done
	if err := o.jobs.Put(ctx, job); err != nil {
		o.log.Error("persist done state", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	o.log.Info("job done", zap.String("job_id", job.ID), zap.String("r2_key", job.R2Key))
}

// fail writes the terminal error record. httpCode is zero for transport-class
// failures, which carry no http field.
func (o *Orchestrator) fail(ctx context.Context, job *domain.Job, cause string, httpCode int) {
	now := time.Now().UTC()
	job.Status = domain.Error
	job.Error = cause
	job.HTTP = httpCode
	job.FinishedAt = &now
	if err := o.jobs.Put(ctx, job); err != nil {
		o.log.Error("persist error state", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	o.log.Warn("job failed",
		zap.String("job_id", job.ID),
		zap.Int("http", httpCode),
		zap.String("cause", cause),
	)
}

func imageURL(payload json.RawMessage) string {
	var p struct {
		ImageURL string `json:"image_url"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return ""
	}
	return p.ImageURL
}

// extractR2Key accepts the key at the top level or nested under "result".
func extractR2Key(result json.RawMessage) string {
	var p struct {
		R2Key  string `json:"r2_key"`
		Result struct {
			R2Key string `json:"r2_key"`
		} `json:"result"`
	}
	if err := json.Unmarshal(result, &p); err != nil {
		return ""
	}
	if p.R2Key != "" {
		return p.R2Key
	}
	return p.Result.R2Key
}

func mintToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
