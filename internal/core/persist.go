package core

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	db "github.com/JonMunkholm/rowstore/internal/database"
)

// interruptedDetail is recorded on datasets whose job was cut short by a restart.
const interruptedDetail = "ingestion interrupted by service restart"

// loadConcurrency bounds parallel row loading at startup.
const loadConcurrency = 4

// Persister writes dataset state to durable storage. Reads are always served
// from memory; a Persister is only read from at startup.
type Persister interface {
	// SaveDataset writes the snapshot metadata and replaces all stored rows.
	SaveDataset(ctx context.Context, ds *Dataset) error
	// AppendRows writes the snapshot metadata and stores ds.Rows[from:].
	AppendRows(ctx context.Context, ds *Dataset, from int) error
	// SaveStatus writes the snapshot metadata only.
	SaveStatus(ctx context.Context, ds *Dataset) error
	DeleteDataset(ctx context.Context, id string) error
	SaveAliases(ctx context.Context, id string, aliases []string) error
	// Load returns every stored dataset in creation order and the aliases
	// keyed by dataset id.
	Load(ctx context.Context) ([]*Dataset, map[string][]string, error)
}

type nopPersister struct{}

func (nopPersister) SaveDataset(context.Context, *Dataset) error { return nil }
func (nopPersister) AppendRows(context.Context, *Dataset, int) error { return nil }
func (nopPersister) SaveStatus(context.Context, *Dataset) error { return nil }
func (nopPersister) DeleteDataset(context.Context, string) error { return nil }
func (nopPersister) SaveAliases(context.Context, string, []string) error { return nil }
func (nopPersister) Load(context.Context) ([]*Dataset, map[string][]string, error) {
	return nil, nil, nil
}

// pgPersister stores datasets in PostgreSQL.
type pgPersister struct {
	pool    *pgxpool.Pool
	queries *db.Queries
}

// NewPgPersister creates a PostgreSQL persister and ensures the schema exists.
func NewPgPersister(ctx context.Context, pool *pgxpool.Pool) (Persister, error) {
	if err := db.Migrate(ctx, pool); err != nil {
		return nil, err
	}
	return &pgPersister{
		pool:    pool,
		queries: db.New(pool),
	}, nil
}

func (p *pgPersister) SaveDataset(ctx context.Context, ds *Dataset) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		q := p.queries.WithTx(tx)
		if err := upsertDataset(ctx, q, ds); err != nil {
			return err
		}
		if err := q.DeleteRows(ctx, db.ToPgUUID(ds.ID)); err != nil {
			return fmt.Errorf("delete rows: %w", err)
		}
		return copyRows(ctx, q, ds, 0)
	})
}

func (p *pgPersister) AppendRows(ctx context.Context, ds *Dataset, from int) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		q := p.queries.WithTx(tx)
		if err := upsertDataset(ctx, q, ds); err != nil {
			return err
		}
		return copyRows(ctx, q, ds, from)
	})
}

func (p *pgPersister) SaveStatus(ctx context.Context, ds *Dataset) error {
	return upsertDataset(ctx, p.queries, ds)
}

func (p *pgPersister) DeleteDataset(ctx context.Context, id string) error {
	if err := p.queries.DeleteDataset(ctx, db.ToPgUUID(id)); err != nil {
		return fmt.Errorf("delete dataset %s: %w", id, err)
	}
	return nil
}

func (p *pgPersister) SaveAliases(ctx context.Context, id string, aliases []string) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		q := p.queries.WithTx(tx)
		pgID := db.ToPgUUID(id)
		if err := q.DeleteAliases(ctx, pgID); err != nil {
			return fmt.Errorf("delete aliases: %w", err)
		}
		if len(aliases) == 0 {
			return nil
		}
		if err := q.InsertAliases(ctx, db.InsertAliasesParams{DatasetID: pgID, Aliases: aliases}); err != nil {
			return fmt.Errorf("insert aliases: %w", err)
		}
		return nil
	})
}

func (p *pgPersister) Load(ctx context.Context) ([]*Dataset, map[string][]string, error) {
	rows, err := p.queries.ListDatasets(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list datasets: %w", err)
	}

	datasets := make([]*Dataset, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)

	for i, row := range rows {
		i, row := i, row
		g.Go(func() error {
			ds, err := p.loadDataset(gctx, row)
			if err != nil {
				return err
			}
			datasets[i] = ds
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	aliasRows, err := p.queries.ListAliases(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list aliases: %w", err)
	}
	return datasets, groupAliases(aliasRows), nil
}

// groupAliases keys stored alias rows by dataset id.
func groupAliases(rows []db.Alias) map[string][]string {
	aliases := make(map[string][]string)
	for _, a := range rows {
		id := db.UUIDString(a.DatasetID)
		aliases[id] = append(aliases[id], a.Alias)
	}
	return aliases
}

func (p *pgPersister) loadDataset(ctx context.Context, row db.Dataset) (*Dataset, error) {
	stored, err := p.queries.ListRows(ctx, row.ID)
	if err != nil {
		return nil, fmt.Errorf("list rows of %s: %w", db.UUIDString(row.ID), err)
	}

	ds, interrupted, err := restoreDataset(row, stored)
	if err != nil {
		return nil, err
	}
	if interrupted {
		if err := upsertDataset(ctx, p.queries, ds); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// restoreDataset rebuilds a snapshot from its stored metadata and rows.
// A dataset stored as Queued or Processing had its job cut short by a
// restart; it comes back Failed, with interrupted set so the caller can
// write the new status back.
func restoreDataset(row db.Dataset, stored []db.DatasetRow) (ds *Dataset, interrupted bool, err error) {
	id := db.UUIDString(row.ID)

	var columns []string
	if err := json.Unmarshal(row.Columns, &columns); err != nil {
		return nil, false, fmt.Errorf("decode columns of %s: %w", id, err)
	}

	data := make([][]string, 0, len(stored))
	for _, r := range stored {
		var values []string
		if err := json.Unmarshal(r.Data, &values); err != nil {
			return nil, false, fmt.Errorf("decode row %d of %s: %w", r.Rownr, id, err)
		}
		if len(values) != len(columns) {
			return nil, false, fmt.Errorf("row %d of %s has %d values, want %d", r.Rownr, id, len(values), len(columns))
		}
		data = append(data, values)
	}

	delim, _ := utf8.DecodeRuneInString(row.Delimiter)
	if delim == utf8.RuneError {
		delim = 0
	}

	ds = &Dataset{
		ID:        id,
		Status:    Status(row.Status),
		Created:   row.Created.Time.UTC(),
		Columns:   columns,
		Rows:      data,
		Encoding:  row.Encoding,
		Delimiter: delim,
		Error:     row.Error.String,
		index:     buildColumnIndex(columns),
	}

	if !ds.Status.Terminal() {
		return ds.withStatus(StatusFailed, interruptedDetail), true, nil
	}
	return ds, false, nil
}

func upsertDataset(ctx context.Context, q *db.Queries, ds *Dataset) error {
	columns := ds.Columns
	if columns == nil {
		columns = []string{}
	}
	encoded, err := json.Marshal(columns)
	if err != nil {
		return fmt.Errorf("encode columns: %w", err)
	}

	err = q.UpsertDataset(ctx, db.UpsertDatasetParams{
		ID:        db.ToPgUUID(ds.ID),
		Status:    int32(ds.Status),
		Created:   db.ToPgTimestamptz(ds.Created),
		Columns:   encoded,
		Encoding:  ds.Encoding,
		Delimiter: ds.DelimiterString(),
		Error:     db.ToPgText(ds.Error),
	})
	if err != nil {
		return fmt.Errorf("upsert dataset %s: %w", ds.ID, err)
	}
	return nil
}

func copyRows(ctx context.Context, q *db.Queries, ds *Dataset, from int) error {
	if from >= len(ds.Rows) {
		return nil
	}

	params := make([]db.CopyRowsParams, 0, len(ds.Rows)-from)
	pgID := db.ToPgUUID(ds.ID)
	for i := from; i < len(ds.Rows); i++ {
		encoded, err := json.Marshal(ds.Rows[i])
		if err != nil {
			return fmt.Errorf("encode row %d: %w", i+1, err)
		}
		params = append(params, db.CopyRowsParams{
			DatasetID: pgID,
			Rownr:     int32(i + 1),
			Data:      encoded,
		})
	}

	if _, err := q.CopyRows(ctx, params); err != nil {
		return fmt.Errorf("copy rows: %w", err)
	}
	return nil
}
