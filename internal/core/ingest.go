package core

// ingest.go runs uploads through detection, parsing and the snapshot swap in
// the background.
//
// Every dataset with pending work has a FIFO queue and exactly one drain
// goroutine, so mutations of one dataset never interleave while different
// datasets proceed in parallel up to the EtlLimiter capacity. A job stays at
// the head of its queue until it finishes; the presence of a queue is what
// marks a dataset as busy.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultEtlTimeout bounds a single ingestion job when none is configured.
const DefaultEtlTimeout = 10 * time.Minute

// IngestMode selects how parsed rows are applied to a dataset.
type IngestMode int

const (
	ModeCreate IngestMode = iota
	ModeAppend
	ModeReplace
)

func (m IngestMode) String() string {
	switch m {
	case ModeAppend:
		return "append"
	case ModeReplace:
		return "replace"
	default:
		return "create"
	}
}

type ingestJob struct {
	ctx       context.Context
	datasetID string
	mode      IngestMode
	data      []byte
	charset   string
}

// Scheduler serializes ingestion per dataset.
type Scheduler struct {
	store   *Store
	limiter *EtlLimiter
	persist Persister
	metrics *serviceMetrics
	timeout time.Duration

	// rootCtx is cancelled on shutdown; jobs still waiting for a slot fail.
	rootCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	queues map[string][]*ingestJob
	closed bool
	wg     sync.WaitGroup
}

func newScheduler(store *Store, limiter *EtlLimiter, persist Persister, metrics *serviceMetrics, timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = DefaultEtlTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:   store,
		limiter: limiter,
		persist: persist,
		metrics: metrics,
		timeout: timeout,
		rootCtx: ctx,
		cancel:  cancel,
		queues:  make(map[string][]*ingestJob),
	}
}

// Submit queues an upload for datasetID and returns the dataset as it stands
// after acceptance. The status moves to Queued unless a pending job has
// already moved it on, in which case that job's status is kept.
//
// ctx is detached from cancellation, so the job outlives the request while
// its log entries keep the request id.
func (s *Scheduler) Submit(ctx context.Context, datasetID string, mode IngestMode, data []byte, charset string) (*Dataset, error) {
	job := &ingestJob{
		ctx:       DetachContext(ctx),
		datasetID: datasetID,
		mode:      mode,
		data:      data,
		charset:   charset,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrShuttingDown
	}

	queue, busy := s.queues[datasetID]

	ds, err := s.store.Update(datasetID, func(cur *Dataset) *Dataset {
		if busy && !cur.Status.Terminal() {
			return cur
		}
		return cur.withStatus(StatusQueued, "")
	})
	if err != nil {
		return nil, err
	}

	s.queues[datasetID] = append(queue, job)
	if !busy {
		s.wg.Add(1)
		go s.drain(datasetID)
	}

	jobLogger(ctx, datasetID, mode).Info("ingestion queued",
		"bytes", len(data),
		"queue_depth", len(queue)+1,
	)
	return ds, nil
}

// Busy reports whether datasetID has queued or running jobs.
func (s *Scheduler) Busy(datasetID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.queues[datasetID]
	return ok
}

// whenIdle runs fn while no job can be submitted, provided datasetID has no
// pending work. Otherwise it returns a *DatasetLockedError.
func (s *Scheduler) whenIdle(datasetID string, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.queues[datasetID]; busy {
		status := StatusQueued
		if ds, ok := s.store.Get(datasetID); ok {
			status = ds.Status
		}
		return &DatasetLockedError{ID: datasetID, Status: status}
	}
	return fn()
}

func (s *Scheduler) drain(datasetID string) {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		job := s.queues[datasetID][0]
		s.mu.Unlock()

		final := s.run(job)

		// Publishing the result and leaving the queue happen together, so a
		// client that observes a terminal status can submit or delete at once.
		s.mu.Lock()
		if final != nil {
			if _, err := s.store.Update(datasetID, func(*Dataset) *Dataset { return final }); err != nil {
				slog.Error("publish ingestion result", "dataset_id", datasetID, "error", err)
			}
		}
		rest := s.queues[datasetID][1:]
		if len(rest) == 0 {
			delete(s.queues, datasetID)
			s.mu.Unlock()
			return
		}
		s.queues[datasetID] = rest
		s.mu.Unlock()
	}
}

// run executes job and returns the persisted terminal snapshot for drain to
// publish, or nil when the dataset no longer exists.
func (s *Scheduler) run(job *ingestJob) *Dataset {
	logger := jobLogger(job.ctx, job.datasetID, job.mode)

	if err := s.limiter.Acquire(s.rootCtx); err != nil {
		logger.Warn("ingestion cancelled before start", "error", ErrShuttingDown)
		return s.failed(job, logger, ErrShuttingDown)
	}
	defer s.limiter.Release()

	start := time.Now()
	cur, err := s.store.Update(job.datasetID, func(cur *Dataset) *Dataset {
		return cur.withStatus(StatusProcessing, "")
	})
	if err != nil {
		logger.Error("dataset vanished before ingestion", "error", err)
		return nil
	}
	s.save(job, logger, "save status", func(ctx context.Context) error {
		return s.persist.SaveStatus(ctx, cur)
	})

	ctx, cancel := context.WithTimeout(job.ctx, s.timeout)
	defer cancel()

	next, appendedFrom, err := s.process(ctx, job, cur)

	elapsed := time.Since(start)
	s.metrics.etlJobs.WithLabelValues(job.mode.String(), outcome(err)).Inc()
	s.metrics.etlDuration.WithLabelValues(job.mode.String()).Observe(elapsed.Seconds())

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("ingestion timed out after %s", s.timeout)
		}
		logger.Warn("ingestion failed", "error", err, "duration_ms", elapsed.Milliseconds())
		return s.failed(job, logger, err)
	}

	logger.Info("ingestion completed",
		"rows", next.RowCount(),
		"columns", len(next.Columns),
		"encoding", next.Encoding,
		"delimiter", next.DelimiterString(),
		"duration_ms", elapsed.Milliseconds(),
	)

	if appendedFrom >= 0 {
		s.save(job, logger, "append rows", func(ctx context.Context) error {
			return s.persist.AppendRows(ctx, next, appendedFrom)
		})
	} else {
		s.save(job, logger, "save dataset", func(ctx context.Context) error {
			return s.persist.SaveDataset(ctx, next)
		})
	}
	return next
}

// process parses the job and builds the next snapshot from cur. Only the
// job running for a dataset changes its table, so cur stays current.
// appendedFrom is the index of the first new row for appends, -1 otherwise.
func (s *Scheduler) process(ctx context.Context, job *ingestJob, cur *Dataset) (next *Dataset, appendedFrom int, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in ingestion",
				"dataset_id", job.datasetID,
				"mode", job.mode.String(),
				"panic", r,
			)
			next, appendedFrom, err = nil, -1, fmt.Errorf("internal error: %v", r)
		}
	}()

	text, strategy, err := Detect(job.data, job.charset)
	if err != nil {
		return nil, -1, err
	}

	table, err := ParseCSV(ctx, text, strategy.Delimiter)
	if err != nil {
		return nil, -1, err
	}

	if job.mode != ModeAppend || len(cur.Columns) == 0 {
		return cur.withTable(table.Columns, table.Rows, strategy.Charset, strategy.Delimiter), -1, nil
	}
	if len(table.Columns) != len(cur.Columns) {
		return nil, -1, &IncompatibleColumnsError{Got: len(table.Columns), Want: len(cur.Columns)}
	}

	rows := make([][]string, 0, len(cur.Rows)+len(table.Rows))
	rows = append(rows, cur.Rows...)
	rows = append(rows, table.Rows...)
	return cur.withTable(cur.Columns, rows, strategy.Charset, strategy.Delimiter), len(cur.Rows), nil
}

// failed persists a Failed snapshot that keeps the previous columns and rows.
func (s *Scheduler) failed(job *ingestJob, logger *slog.Logger, cause error) *Dataset {
	cur, ok := s.store.Get(job.datasetID)
	if !ok {
		logger.Error("dataset vanished before failure was recorded", "error", cause)
		return nil
	}
	next := cur.withStatus(StatusFailed, cause.Error())
	s.save(job, logger, "save status", func(ctx context.Context) error {
		return s.persist.SaveStatus(ctx, next)
	})
	return next
}

// save runs a persistence write. Failures are logged and counted but never
// roll back the in-memory state.
func (s *Scheduler) save(job *ingestJob, logger *slog.Logger, op string, write func(context.Context) error) {
	ctx, cancel := context.WithTimeout(job.ctx, s.timeout)
	defer cancel()

	if err := write(ctx); err != nil {
		s.metrics.persistErrs.Inc()
		logger.Error("persist failed", "op", op, "error", err)
	}
}

// Shutdown stops accepting jobs, fails every job still waiting for a slot
// and waits for running jobs to finish.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	if err := s.limiter.WaitForDrain(ctx); err != nil {
		return fmt.Errorf("wait for running jobs: %w", err)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for job queues: %w", ctx.Err())
	}
}
