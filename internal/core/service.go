package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JonMunkholm/rowstore/internal/config"
	"github.com/JonMunkholm/rowstore/internal/logging"
)

// ServiceName is reported by the status resource.
const ServiceName = "RowStore"

// Version is the service version reported by the status resource.
var Version = "dev"

// acceptedMediaTypes are the upload content types treated as CSV.
var acceptedMediaTypes = map[string]bool{
	"text/csv":                 true,
	"application/csv":          true,
	"text/plain":               true,
	"application/vnd.ms-excel": true,
}

// Service owns every dataset, alias and ingestion job. It is the single
// entry point for the transport layer.
type Service struct {
	store     *Store
	aliases   *AliasRegistry
	limiter   *EtlLimiter
	scheduler *Scheduler
	queries   *QueryEngine
	persist   Persister
	metrics   *serviceMetrics
	registry  *prometheus.Registry

	maxFileSize int64
	now         func() time.Time
}

// NewService creates a Service. A nil pool keeps all state in memory.
func NewService(ctx context.Context, pool *pgxpool.Pool, cfg *config.Config) (*Service, error) {
	mode, err := ParseRegexpMode(cfg.Query.Regexp)
	if err != nil {
		return nil, err
	}

	var persist Persister = nopPersister{}
	if pool != nil {
		if persist, err = NewPgPersister(ctx, pool); err != nil {
			return nil, fmt.Errorf("init persistence: %w", err)
		}
	}

	s := &Service{
		store:       NewStore(),
		limiter:     NewEtlLimiter(cfg.ETL.MaxProcesses),
		queries:     NewQueryEngine(cfg.Query.MaxLimit, cfg.Query.Timeout, mode),
		persist:     persist,
		registry:    prometheus.NewRegistry(),
		maxFileSize: cfg.ETL.MaxFileSize,
		now:         time.Now,
	}
	s.aliases = NewAliasRegistry(s.store.Exists)
	s.metrics = newServiceMetrics(
		func() float64 { return float64(s.limiter.ActiveCount()) },
		func() float64 { return float64(s.store.Len()) },
	)
	s.registry.MustRegister(s.metrics.PrometheusCollectors()...)
	s.scheduler = newScheduler(s.store, s.limiter, s.persist, s.metrics, cfg.ETL.Timeout)

	return s, nil
}

// Load restores persisted datasets and aliases into memory.
func (s *Service) Load(ctx context.Context) error {
	datasets, aliases, err := s.persist.Load(ctx)
	if err != nil {
		return fmt.Errorf("load datasets: %w", err)
	}
	for _, ds := range datasets {
		s.store.Put(ds)
	}
	for id, names := range aliases {
		s.aliases.Restore(id, names)
	}
	if len(datasets) > 0 {
		slog.Info("datasets restored", "datasets", len(datasets), "aliased", len(aliases))
	}
	return nil
}

// Registry returns the Prometheus registry holding the service metrics.
func (s *Service) Registry() *prometheus.Registry {
	return s.registry
}

// ServiceStatus is the payload of the status resource.
type ServiceStatus struct {
	Service            string `json:"service"`
	Version            string `json:"version"`
	Datasets           int    `json:"datasets"`
	ActiveEtlProcesses int    `json:"activeEtlProcesses"`
}

// Status reports the dataset count and the number of running ingestion jobs.
func (s *Service) Status() ServiceStatus {
	return ServiceStatus{
		Service:            ServiceName,
		Version:            Version,
		Datasets:           s.store.Len(),
		ActiveEtlProcesses: s.limiter.ActiveCount(),
	}
}

// EtlStatus reports the ingestion slot usage.
func (s *Service) EtlStatus() EtlLimiterStatus {
	return s.limiter.Status()
}

// ListDatasets returns dataset ids in creation order.
func (s *Service) ListDatasets() []string {
	return s.store.IDs()
}

// Dataset returns the current snapshot of the dataset named by id or alias.
func (s *Service) Dataset(idOrAlias string) (*Dataset, error) {
	id, err := s.resolve(idOrAlias)
	if err != nil {
		return nil, err
	}
	ds, ok := s.store.Get(id)
	if !ok {
		return nil, ErrDatasetNotFound
	}
	return ds, nil
}

// CreateDataset reads an upload, registers a new dataset and queues its
// ingestion. The returned snapshot is Queued.
func (s *Service) CreateDataset(ctx context.Context, body io.Reader, contentType string) (*Dataset, error) {
	data, charset, err := s.readUpload(body, contentType)
	if err != nil {
		return nil, err
	}

	ds := s.store.Create(s.now())
	queued, err := s.scheduler.Submit(ctx, ds.ID, ModeCreate, data, charset)
	if err != nil {
		s.store.Delete(ds.ID)
		return nil, err
	}
	return queued, nil
}

// AppendDataset queues rows to be appended to an existing dataset.
func (s *Service) AppendDataset(ctx context.Context, idOrAlias string, body io.Reader, contentType string) (*Dataset, error) {
	return s.mutate(ctx, idOrAlias, ModeAppend, body, contentType)
}

// ReplaceDataset queues a full replacement of a dataset's columns and rows.
func (s *Service) ReplaceDataset(ctx context.Context, idOrAlias string, body io.Reader, contentType string) (*Dataset, error) {
	return s.mutate(ctx, idOrAlias, ModeReplace, body, contentType)
}

func (s *Service) mutate(ctx context.Context, idOrAlias string, mode IngestMode, body io.Reader, contentType string) (*Dataset, error) {
	id, err := s.resolve(idOrAlias)
	if err != nil {
		return nil, err
	}
	data, charset, err := s.readUpload(body, contentType)
	if err != nil {
		return nil, err
	}
	return s.scheduler.Submit(ctx, id, mode, data, charset)
}

// readUpload validates the content type and reads the body within the size limit.
func (s *Service) readUpload(body io.Reader, contentType string) ([]byte, string, error) {
	var charset string
	if contentType != "" {
		mediaType, params, err := mime.ParseMediaType(contentType)
		if err != nil || !acceptedMediaTypes[mediaType] {
			return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedMediaType, contentType)
		}
		charset = params["charset"]
	}

	data, err := ReadUpload(body, s.maxFileSize)
	if err != nil {
		return nil, "", err
	}
	return data, charset, nil
}

// DeleteDataset removes a dataset and its aliases. Datasets with pending
// ingestion work cannot be deleted.
func (s *Service) DeleteDataset(ctx context.Context, idOrAlias string) error {
	id, err := s.resolve(idOrAlias)
	if err != nil {
		return err
	}

	err = s.scheduler.whenIdle(id, func() error {
		ds, ok := s.store.Get(id)
		if !ok {
			return ErrDatasetNotFound
		}
		if !ds.Status.Terminal() {
			return &DatasetLockedError{ID: id, Status: ds.Status}
		}
		// Dropping the dataset first means an alias update racing with
		// this delete either lands before DeleteAll or sees no dataset.
		s.store.Delete(id)
		s.aliases.DeleteAll(id)
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.persist.DeleteDataset(ctx, id); err != nil {
		s.persistFailed(ctx, "delete dataset", id, err)
	}
	return nil
}

// Query filters and paginates the rows of a Ready dataset.
func (s *Service) Query(ctx context.Context, idOrAlias string, values url.Values) (*QueryResult, error) {
	result, err := s.query(ctx, idOrAlias, values)
	s.metrics.queries.WithLabelValues(outcome(err)).Inc()
	return result, err
}

func (s *Service) query(ctx context.Context, idOrAlias string, values url.Values) (*QueryResult, error) {
	ds, err := s.Dataset(idOrAlias)
	if err != nil {
		return nil, err
	}
	if err := checkQueryable(ds); err != nil {
		return nil, err
	}
	q, err := s.queries.Parse(values)
	if err != nil {
		return nil, err
	}
	return s.queries.Execute(ctx, ds, q)
}

// ExportCSV writes a Ready dataset to w as CSV.
func (s *Service) ExportCSV(idOrAlias string, w io.Writer) error {
	ds, err := s.Dataset(idOrAlias)
	if err != nil {
		return err
	}
	return WriteCSV(w, ds)
}

// DatasetInfo describes a dataset without its rows.
type DatasetInfo struct {
	ID          string    `json:"id"`
	Status      Status    `json:"status"`
	Created     time.Time `json:"created"`
	ColumnNames []string  `json:"columnnames"`
	RowCount    int       `json:"rowcount"`
	Encoding    string    `json:"encoding,omitempty"`
	Delimiter   string    `json:"delimiter,omitempty"`
	Aliases     []string  `json:"aliases"`
	Error       string    `json:"error,omitempty"`
}

// Info returns the metadata of a dataset together with its aliases.
func (s *Service) Info(idOrAlias string) (*DatasetInfo, error) {
	ds, err := s.Dataset(idOrAlias)
	if err != nil {
		return nil, err
	}
	columns := ds.Columns
	if columns == nil {
		columns = []string{}
	}
	return &DatasetInfo{
		ID:          ds.ID,
		Status:      ds.Status,
		Created:     ds.Created,
		ColumnNames: columns,
		RowCount:    ds.RowCount(),
		Encoding:    ds.Encoding,
		Delimiter:   ds.DelimiterString(),
		Aliases:     s.aliases.List(ds.ID),
		Error:       ds.Error,
	}, nil
}

// Aliases lists the aliases of a dataset.
func (s *Service) Aliases(idOrAlias string) ([]string, error) {
	id, err := s.resolve(idOrAlias)
	if err != nil {
		return nil, err
	}
	return s.aliases.List(id), nil
}

// AddAliases binds additional aliases to a dataset.
func (s *Service) AddAliases(ctx context.Context, idOrAlias string, names []string) ([]string, error) {
	return s.updateAliases(ctx, idOrAlias, names, s.aliases.Add)
}

// ReplaceAliases swaps the full alias set of a dataset.
func (s *Service) ReplaceAliases(ctx context.Context, idOrAlias string, names []string) ([]string, error) {
	return s.updateAliases(ctx, idOrAlias, names, s.aliases.Replace)
}

// DeleteAliases removes every alias of a dataset.
func (s *Service) DeleteAliases(ctx context.Context, idOrAlias string) error {
	id, err := s.resolve(idOrAlias)
	if err != nil {
		return err
	}
	s.aliases.DeleteAll(id)
	s.saveAliases(ctx, id, nil)
	return nil
}

func (s *Service) updateAliases(ctx context.Context, idOrAlias string, names []string, apply func(string, []string) ([]string, error)) ([]string, error) {
	id, err := s.resolve(idOrAlias)
	if err != nil {
		return nil, err
	}
	bound, err := apply(id, names)
	if err != nil {
		return nil, err
	}
	s.saveAliases(ctx, id, bound)
	return bound, nil
}

func (s *Service) saveAliases(ctx context.Context, id string, names []string) {
	if err := s.persist.SaveAliases(ctx, id, names); err != nil {
		s.persistFailed(ctx, "save aliases", id, err)
	}
}

func (s *Service) persistFailed(ctx context.Context, op, id string, err error) {
	s.metrics.persistErrs.Inc()
	logging.FromContext(ctx).Error("persist failed", "op", op, "dataset_id", id, "error", err)
}

// resolve maps an id or alias to a dataset id. Direct ids take precedence.
func (s *Service) resolve(idOrAlias string) (string, error) {
	if s.store.Exists(idOrAlias) {
		return idOrAlias, nil
	}
	if id, ok := s.aliases.Resolve(idOrAlias); ok && s.store.Exists(id) {
		return id, nil
	}
	return "", ErrDatasetNotFound
}

// ResolveID returns the dataset id named by idOrAlias, or idOrAlias itself
// when it does not resolve.
func (s *Service) ResolveID(idOrAlias string) string {
	if id, err := s.resolve(idOrAlias); err == nil {
		return id
	}
	return idOrAlias
}

// Shutdown stops accepting uploads, fails queued jobs and waits for running
// jobs within ctx.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.scheduler.Shutdown(ctx)
}
