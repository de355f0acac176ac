// MrMap Proxy - Secured OGC Web Service Proxy
// Copyright 2026 The MrMap Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mrmap-community/mrmap-proxy

// Package jobs runs background tasks such as service registration and
// reports their progress.
//
// Job state lives in memory and, when a Store is configured, in badger so
// that finished jobs remain queryable after a restart. Every state change is
// broadcast to websocket clients.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/mrmap-community/mrmap-proxy/internal/cache"
	"github.com/mrmap-community/mrmap-proxy/internal/config"
	"github.com/mrmap-community/mrmap-proxy/internal/logging"
	"github.com/mrmap-community/mrmap-proxy/internal/metrics"
	"github.com/mrmap-community/mrmap-proxy/internal/models"
	"github.com/mrmap-community/mrmap-proxy/internal/websocket"
)

var (
	// ErrNotFound is returned for unknown job ids.
	ErrNotFound = errors.New("job not found")

	// ErrQueueFull is returned when Submit cannot queue another job.
	ErrQueueFull = errors.New("job queue is full")
)

// Task is the work of a job. It reports progress through the tracker.
type Task func(ctx context.Context, t *Tracker) error

// Store persists job snapshots.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte, ttl time.Duration) error
}

// Publisher receives every job state change.
type Publisher interface {
	Broadcast(messageType string, data any)
}

type queued struct {
	id   string
	kind string
	task Task
}

// Runner executes submitted tasks on a fixed number of workers.
type Runner struct {
	cfg   config.JobsConfig
	store Store
	pub   Publisher
	queue chan queued

	mu   sync.RWMutex
	jobs map[string]*models.Job

	now func() time.Time
}

// NewRunner creates a runner. store and pub may be nil.
func NewRunner(cfg config.JobsConfig, store Store, pub Publisher) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	return &Runner{
		cfg:   cfg,
		store: store,
		pub:   pub,
		queue: make(chan queued, cfg.QueueSize),
		jobs:  make(map[string]*models.Job),
		now:   time.Now,
	}
}

// Submit queues a task and returns the pending job.
func (r *Runner) Submit(kind, createdBy string, task Task) (*models.Job, error) {
	now := r.now().UTC()
	job := &models.Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    models.JobPending,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}

	r.mu.Lock()
	select {
	case r.queue <- queued{id: job.ID, kind: kind, task: task}:
		r.jobs[job.ID] = job
	default:
		r.mu.Unlock()
		return nil, ErrQueueFull
	}
	snapshot := *job
	r.persist(&snapshot)
	r.mu.Unlock()

	r.broadcast(&snapshot)
	return &snapshot, nil
}

// Get returns a copy of a job, falling back to the store for jobs that are
// no longer in memory.
func (r *Runner) Get(id string) (*models.Job, error) {
	r.mu.RLock()
	job, ok := r.jobs[id]
	if ok {
		snapshot := *job
		r.mu.RUnlock()
		return &snapshot, nil
	}
	r.mu.RUnlock()

	if r.store == nil {
		return nil, ErrNotFound
	}
	raw, err := r.store.Get(id)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}
	var stored models.Job
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &stored, nil
}

// List returns the jobs held in memory, newest first.
func (r *Runner) List() []models.Job {
	r.mu.RLock()
	out := make([]models.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, *j)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, k int) bool {
		if out[i].CreatedAt.Equal(out[k].CreatedAt) {
			return out[i].ID > out[k].ID
		}
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	return out
}

// Serve runs the workers until ctx is cancelled. Running tasks see the
// cancellation through their context.
func (r *Runner) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.work(ctx)
		}()
	}

	interval := r.cfg.Retention / 4
	if interval <= 0 || interval > time.Hour {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			r.prune()
		}
	}
}

func (r *Runner) String() string { return "job-runner" }

func (r *Runner) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case q := <-r.queue:
			r.run(ctx, q)
		}
	}
}

func (r *Runner) run(ctx context.Context, q queued) {
	logger := logging.CtxWith(ctx).Str("job_id", q.id).Str("kind", q.kind).Logger()
	t := &Tracker{r: r, id: q.id}
	t.update(func(j *models.Job) { j.Status = models.JobRunning })

	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("job panicked: %v", p)
			}
		}()
		return q.task(logging.ContextWithLogger(ctx, logger), t)
	}()

	status := models.JobSucceeded
	if err != nil {
		status = models.JobFailed
		logger.Warn().Err(err).Msg("Job failed")
	} else {
		logger.Info().Msg("Job finished")
	}
	metrics.JobsTotal.WithLabelValues(q.kind, string(status)).Inc()

	t.update(func(j *models.Job) {
		j.Status = status
		if err != nil {
			j.Error = err.Error()
			return
		}
		j.Progress = 100
	})
}

// prune drops finished jobs older than the retention from memory. They stay
// readable from the store until its TTL expires.
func (r *Runner) prune() {
	cutoff := r.now().Add(-r.cfg.Retention)
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, j := range r.jobs {
		if j.Done() && j.UpdatedAt.Before(cutoff) {
			delete(r.jobs, id)
		}
	}
}

// persist is called with mu held so snapshots reach the store in order.
func (r *Runner) persist(job *models.Job) {
	if r.store == nil {
		return
	}
	raw, err := json.Marshal(job)
	if err == nil {
		err = r.store.Set(job.ID, raw, r.cfg.Retention)
	}
	if err != nil {
		logging.Warn().Err(err).Str("job_id", job.ID).Msg("Job snapshot not persisted")
	}
}

func (r *Runner) broadcast(job *models.Job) {
	if r.pub != nil {
		r.pub.Broadcast(websocket.MessageTypeJobProgress, job)
	}
}

// Tracker lets a running task report progress.
type Tracker struct {
	r  *Runner
	id string
}

// Progress sets the completion percentage and a status message.
func (t *Tracker) Progress(percent int, message string) {
	if percent < 0 {
		percent = 0
	}
	if percent > 99 {
		percent = 99
	}
	t.update(func(j *models.Job) {
		j.Progress = percent
		j.Message = message
	})
}

// SetService records the service a job created.
func (t *Tracker) SetService(id int64) {
	t.update(func(j *models.Job) { j.ServiceID = &id })
}

func (t *Tracker) update(fn func(*models.Job)) {
	t.r.mu.Lock()
	job, ok := t.r.jobs[t.id]
	if !ok {
		t.r.mu.Unlock()
		return
	}
	fn(job)
	job.UpdatedAt = t.r.now().UTC()
	snapshot := *job
	t.r.persist(&snapshot)
	t.r.mu.Unlock()
	t.r.broadcast(&snapshot)
}
