package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// recordingPersister records every write and optionally fails them.
type recordingPersister struct {
	nopPersister

	mu  sync.Mutex
	ops []string
	err error
}

func (p *recordingPersister) record(op string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = append(p.ops, op)
	return p.err
}

func (p *recordingPersister) Ops() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ops...)
}

func (p *recordingPersister) SaveDataset(_ context.Context, ds *Dataset) error {
	return p.record("save " + ds.Status.String())
}

func (p *recordingPersister) AppendRows(_ context.Context, _ *Dataset, from int) error {
	return p.record(fmt.Sprintf("append from %d", from))
}

func (p *recordingPersister) SaveStatus(_ context.Context, ds *Dataset) error {
	return p.record("status " + ds.Status.String())
}

func (p *recordingPersister) DeleteDataset(_ context.Context, id string) error {
	return p.record("delete")
}

func (p *recordingPersister) SaveAliases(_ context.Context, _ string, aliases []string) error {
	return p.record(fmt.Sprintf("aliases %v", aliases))
}

func newTestScheduler(t *testing.T, persist Persister, slots int) (*Scheduler, *Store, *EtlLimiter) {
	t.Helper()
	store := NewStore()
	limiter := NewEtlLimiter(slots)
	metrics := newServiceMetrics(
		func() float64 { return float64(limiter.ActiveCount()) },
		func() float64 { return float64(store.Len()) },
	)
	s := newScheduler(store, limiter, persist, metrics, time.Minute)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s, store, limiter
}

func waitIdle(t *testing.T, s *Scheduler, id string) *Dataset {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for s.Busy(id) {
		if time.Now().After(deadline) {
			t.Fatalf("dataset %s still busy after 5s", id)
		}
		time.Sleep(5 * time.Millisecond)
	}
	ds, ok := s.store.Get(id)
	if !ok {
		t.Fatalf("dataset %s not found", id)
	}
	return ds
}

func waitForStatus(t *testing.T, store *Store, id string, want Status) *Dataset {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		ds, ok := store.Get(id)
		if ok && ds.Status == want {
			return ds
		}
		if time.Now().After(deadline) {
			t.Fatalf("dataset %s did not reach %s", id, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func submit(t *testing.T, s *Scheduler, id string, mode IngestMode, csv string) *Dataset {
	t.Helper()
	ds, err := s.Submit(context.Background(), id, mode, []byte(csv), "")
	if err != nil {
		t.Fatalf("Submit(%s) error = %v", mode, err)
	}
	return ds
}

func TestIngestMode_String(t *testing.T) {
	tests := []struct {
		mode IngestMode
		want string
	}{
		{ModeCreate, "create"},
		{ModeAppend, "append"},
		{ModeReplace, "replace"},
	}
	for _, tt := range tests {
		if got := tt.mode.String(); got != tt.want {
			t.Errorf("IngestMode(%d).String() = %q, want %q", tt.mode, got, tt.want)
		}
	}
}

func TestScheduler_CreateBecomesReady(t *testing.T) {
	persist := &recordingPersister{}
	s, store, limiter := newTestScheduler(t, persist, 2)

	ds := store.Create(time.Now())
	submit(t, s, ds.ID, ModeCreate, "Name;City\nÅkesson;Malmö\nSmith;London\n")

	got := waitIdle(t, s, ds.ID)
	if got.Status != StatusReady {
		t.Fatalf("Status = %s, want ready (error %q)", got.Status, got.Error)
	}
	if diff := cmp.Diff([]string{"name", "city"}, got.Columns); diff != "" {
		t.Errorf("Columns mismatch (-want +got):\n%s", diff)
	}
	if got.RowCount() != 2 {
		t.Errorf("RowCount() = %d, want 2", got.RowCount())
	}
	if got.Delimiter != ';' {
		t.Errorf("Delimiter = %q, want ';'", got.Delimiter)
	}
	if !got.Created.Equal(ds.Created) {
		t.Errorf("Created = %v, want %v", got.Created, ds.Created)
	}
	if limiter.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d after completion, want 0", limiter.ActiveCount())
	}

	want := []string{"status processing", "save ready"}
	if diff := cmp.Diff(want, persist.Ops()); diff != "" {
		t.Errorf("persisted ops mismatch (-want +got):\n%s", diff)
	}
}

func TestScheduler_JobsRunInOrder(t *testing.T) {
	persist := &recordingPersister{}
	s, store, limiter := newTestScheduler(t, persist, 1)

	// Hold the only slot so both jobs stay queued.
	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	ds := store.Create(time.Now())
	if got := submit(t, s, ds.ID, ModeCreate, "name\nfirst\n"); got.Status != StatusQueued {
		t.Errorf("Status after create = %s, want queued", got.Status)
	}
	submit(t, s, ds.ID, ModeAppend, "name\nsecond\nthird\n")

	if !s.Busy(ds.ID) {
		t.Error("Busy() = false with queued jobs")
	}
	err := s.whenIdle(ds.ID, func() error { return nil })
	var locked *DatasetLockedError
	if !errors.As(err, &locked) {
		t.Errorf("whenIdle() error = %v, want *DatasetLockedError", err)
	}

	limiter.Release()
	got := waitIdle(t, s, ds.ID)

	var values []string
	for _, row := range got.Rows {
		values = append(values, row[0])
	}
	if diff := cmp.Diff([]string{"first", "second", "third"}, values); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	want := []string{
		"status processing", "save ready",
		"status processing", "append from 1",
	}
	if diff := cmp.Diff(want, persist.Ops()); diff != "" {
		t.Errorf("persisted ops mismatch (-want +got):\n%s", diff)
	}
}

func TestScheduler_TerminalStatusMeansIdle(t *testing.T) {
	s, store, _ := newTestScheduler(t, &recordingPersister{}, 1)

	ds := store.Create(time.Now())
	for i := 0; i < 20; i++ {
		submit(t, s, ds.ID, ModeReplace, "a\n1\n")
		waitForStatus(t, store, ds.ID, StatusReady)

		if s.Busy(ds.ID) {
			t.Fatalf("iteration %d: Busy() = true once the result is visible", i)
		}
		if got := submit(t, s, ds.ID, ModeAppend, "a\n2\n"); got.Status != StatusQueued {
			t.Fatalf("iteration %d: Status after resubmit = %s, want queued", i, got.Status)
		}
		waitIdle(t, s, ds.ID)
	}
}

func TestScheduler_FailuresKeepPreviousData(t *testing.T) {
	tests := []struct {
		name       string
		mode       IngestMode
		csv        string
		wantDetail string
	}{
		{
			name:       "append with different column count",
			mode:       ModeAppend,
			csv:        "a,b,c\n1,2,3\n",
			wantDetail: "incompatible columns",
		},
		{
			name:       "replace with ragged rows",
			mode:       ModeReplace,
			csv:        "a,b\n1,2\n3\n",
			wantDetail: "malformed csv: line 3",
		},
		{
			name:       "replace with empty body",
			mode:       ModeReplace,
			csv:        "\n\n",
			wantDetail: "empty upload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, store, _ := newTestScheduler(t, &recordingPersister{}, 1)

			ds := store.Create(time.Now())
			submit(t, s, ds.ID, ModeCreate, "name,phone\nSmith,0123\nJones,0456\n")
			waitIdle(t, s, ds.ID)

			submit(t, s, ds.ID, tt.mode, tt.csv)
			got := waitIdle(t, s, ds.ID)

			if got.Status != StatusFailed {
				t.Fatalf("Status = %s, want failed", got.Status)
			}
			if !strings.Contains(strings.ToLower(got.Error), tt.wantDetail) {
				t.Errorf("Error = %q, want it to contain %q", got.Error, tt.wantDetail)
			}
			if got.RowCount() != 2 {
				t.Errorf("RowCount() = %d, want previous 2", got.RowCount())
			}
			if diff := cmp.Diff([]string{"name", "phone"}, got.Columns); diff != "" {
				t.Errorf("Columns mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestScheduler_AppendToEmptyDataset(t *testing.T) {
	s, store, _ := newTestScheduler(t, &recordingPersister{}, 1)

	ds := store.Create(time.Now())
	submit(t, s, ds.ID, ModeCreate, "a,b\n1\n")
	if got := waitIdle(t, s, ds.ID); got.Status != StatusFailed {
		t.Fatalf("Status after bad create = %s, want failed", got.Status)
	}

	submit(t, s, ds.ID, ModeAppend, "x,y,z\n1,2,3\n")
	got := waitIdle(t, s, ds.ID)

	if got.Status != StatusReady {
		t.Fatalf("Status = %s, want ready (error %q)", got.Status, got.Error)
	}
	if got.Error != "" {
		t.Errorf("Error = %q, want cleared", got.Error)
	}
	if diff := cmp.Diff([]string{"x", "y", "z"}, got.Columns); diff != "" {
		t.Errorf("Columns mismatch (-want +got):\n%s", diff)
	}
}

func TestScheduler_ReplaceSwapsTable(t *testing.T) {
	s, store, _ := newTestScheduler(t, &recordingPersister{}, 1)

	ds := store.Create(time.Now())
	submit(t, s, ds.ID, ModeCreate, "a,b\n1,2\n3,4\n")
	waitIdle(t, s, ds.ID)

	submit(t, s, ds.ID, ModeReplace, "only\nx\n")
	got := waitIdle(t, s, ds.ID)

	if got.Status != StatusReady {
		t.Fatalf("Status = %s, want ready", got.Status)
	}
	if diff := cmp.Diff([][]string{{"x"}}, got.Rows); diff != "" {
		t.Errorf("Rows mismatch (-want +got):\n%s", diff)
	}
	if _, ok := got.ColumnIndex("a"); ok {
		t.Error("ColumnIndex(a) found a replaced column")
	}
}

func TestScheduler_PersistFailureKeepsMemoryState(t *testing.T) {
	persist := &recordingPersister{err: errors.New("connection refused")}
	s, store, _ := newTestScheduler(t, persist, 1)

	ds := store.Create(time.Now())
	submit(t, s, ds.ID, ModeCreate, "a\n1\n")
	got := waitIdle(t, s, ds.ID)

	if got.Status != StatusReady {
		t.Errorf("Status = %s, want ready", got.Status)
	}
	if n := testutil.ToFloat64(s.metrics.persistErrs); n != 2 {
		t.Errorf("persist errors = %v, want 2", n)
	}
	if n := testutil.ToFloat64(s.metrics.etlJobs.WithLabelValues("create", resultOK)); n != 1 {
		t.Errorf("etl jobs ok = %v, want 1", n)
	}
}

func TestScheduler_ShutdownFailsQueuedJobs(t *testing.T) {
	s, store, limiter := newTestScheduler(t, &recordingPersister{}, 1)

	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	first := store.Create(time.Now())
	second := store.Create(time.Now())
	submit(t, s, first.ID, ModeCreate, "a\n1\n")
	submit(t, s, second.ID, ModeCreate, "a\n2\n")

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- s.Shutdown(ctx)
	}()

	for _, id := range []string{first.ID, second.ID} {
		got := waitForStatus(t, store, id, StatusFailed)
		if got.Error != ErrShuttingDown.Error() {
			t.Errorf("Error = %q, want %q", got.Error, ErrShuttingDown.Error())
		}
	}

	limiter.Release()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown() did not return")
	}

	if _, err := s.Submit(context.Background(), first.ID, ModeReplace, []byte("a\n1\n"), ""); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("Submit() after shutdown error = %v, want ErrShuttingDown", err)
	}
}

func TestScheduler_SubmitUnknownDataset(t *testing.T) {
	s, _, _ := newTestScheduler(t, &recordingPersister{}, 1)

	_, err := s.Submit(context.Background(), "missing", ModeAppend, []byte("a\n1\n"), "")
	if !errors.Is(err, ErrDatasetNotFound) {
		t.Errorf("Submit() error = %v, want ErrDatasetNotFound", err)
	}
	if s.Busy("missing") {
		t.Error("Busy() = true for a rejected submission")
	}
}
