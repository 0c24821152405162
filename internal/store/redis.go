package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	r "github.com/redis/go-redis/v9"

	"github.com/you/snapsize/internal/domain"
)

// JobStore keeps one TTL-bounded record per job. The TTL restarts on every
// write, so a record lives 72h (by default) past its last status change and
// an expired job is indistinguishable from one that never existed.
type JobStore struct {
	rdb *r.Client
	ttl time.Duration
}

func New(rdb *r.Client, ttl time.Duration) *JobStore { return &JobStore{rdb: rdb, ttl: ttl} }

func key(id string) string { return "job:" + id }

// Put replaces the whole record and restarts its TTL. There is no partial
// merge; the caller owns the complete record for each transition.
func (s *JobStore) Put(ctx context.Context, j *domain.Job) error {
	raw, err := json.Marshal(j)
	if err != nil {
		return errors.Wrap(err, "marshal job")
	}
	return errors.Wrap(s.rdb.Set(ctx, key(j.ID), raw, s.ttl).Err(), "set job")
}

func (s *JobStore) Get(ctx context.Context, id string) (*domain.Job, error) {
	raw, err := s.GetRaw(ctx, id)
	if err != nil {
		return nil, err
	}
	var j domain.Job
	if err := json.Unmarshal(raw, &j); err != nil {
		return nil, errors.Wrap(err, "unmarshal job")
	}
	return &j, nil
}

// GetRaw returns the stored record bytes verbatim, so status responses for a
// terminal job stay byte-identical across polls.
func (s *JobStore) GetRaw(ctx context.Context, id string) ([]byte, error) {
	raw, err := s.rdb.Get(ctx, key(id)).Bytes()
	if errors.Is(err, r.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get job")
	}
	return raw, nil
}
