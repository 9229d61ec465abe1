package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const upsertDataset = `-- name: UpsertDataset :exec
INSERT INTO datasets (id, status, created, columns, encoding, delimiter, error)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
    status = EXCLUDED.status,
    columns = EXCLUDED.columns,
    encoding = EXCLUDED.encoding,
    delimiter = EXCLUDED.delimiter,
    error = EXCLUDED.error
`

type UpsertDatasetParams struct {
	ID        pgtype.UUID
	Status    int32
	Created   pgtype.Timestamptz
	Columns   []byte
	Encoding  string
	Delimiter string
	Error     pgtype.Text
}

func (q *Queries) UpsertDataset(ctx context.Context, arg UpsertDatasetParams) error {
	_, err := q.db.Exec(ctx, upsertDataset,
		arg.ID,
		arg.Status,
		arg.Created,
		arg.Columns,
		arg.Encoding,
		arg.Delimiter,
		arg.Error,
	)
	return err
}

const deleteDataset = `-- name: DeleteDataset :exec
DELETE FROM datasets WHERE id = $1
`

func (q *Queries) DeleteDataset(ctx context.Context, id pgtype.UUID) error {
	_, err := q.db.Exec(ctx, deleteDataset, id)
	return err
}

const listDatasets = `-- name: ListDatasets :many
SELECT id, status, created, columns, encoding, delimiter, error
FROM datasets
ORDER BY created, id
`

func (q *Queries) ListDatasets(ctx context.Context) ([]Dataset, error) {
	rows, err := q.db.Query(ctx, listDatasets)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Dataset
	for rows.Next() {
		var i Dataset
		if err := rows.Scan(
			&i.ID,
			&i.Status,
			&i.Created,
			&i.Columns,
			&i.Encoding,
			&i.Delimiter,
			&i.Error,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteRows = `-- name: DeleteRows :exec
DELETE FROM dataset_rows WHERE dataset_id = $1
`

func (q *Queries) DeleteRows(ctx context.Context, datasetID pgtype.UUID) error {
	_, err := q.db.Exec(ctx, deleteRows, datasetID)
	return err
}

type CopyRowsParams struct {
	DatasetID pgtype.UUID
	Rownr     int32
	Data      []byte
}

// CopyRows bulk-loads rows with the COPY protocol.
func (q *Queries) CopyRows(ctx context.Context, arg []CopyRowsParams) (int64, error) {
	return q.db.CopyFrom(ctx,
		pgx.Identifier{"dataset_rows"},
		[]string{"dataset_id", "rownr", "data"},
		pgx.CopyFromSlice(len(arg), func(i int) ([]any, error) {
			return []any{arg[i].DatasetID, arg[i].Rownr, arg[i].Data}, nil
		}),
	)
}

const listRows = `-- name: ListRows :many
SELECT dataset_id, rownr, data
FROM dataset_rows
WHERE dataset_id = $1
ORDER BY rownr
`

func (q *Queries) ListRows(ctx context.Context, datasetID pgtype.UUID) ([]DatasetRow, error) {
	rows, err := q.db.Query(ctx, listRows, datasetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []DatasetRow
	for rows.Next() {
		var i DatasetRow
		if err := rows.Scan(&i.DatasetID, &i.Rownr, &i.Data); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
