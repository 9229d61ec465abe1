package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const deleteAliases = `-- name: DeleteAliases :exec
DELETE FROM aliases WHERE dataset_id = $1
`

func (q *Queries) DeleteAliases(ctx context.Context, datasetID pgtype.UUID) error {
	_, err := q.db.Exec(ctx, deleteAliases, datasetID)
	return err
}

const insertAliases = `-- name: InsertAliases :exec
INSERT INTO aliases (alias, dataset_id)
SELECT unnest($2::text[]), $1::uuid
`

type InsertAliasesParams struct {
	DatasetID pgtype.UUID
	Aliases   []string
}

func (q *Queries) InsertAliases(ctx context.Context, arg InsertAliasesParams) error {
	_, err := q.db.Exec(ctx, insertAliases, arg.DatasetID, arg.Aliases)
	return err
}

const listAliases = `-- name: ListAliases :many
SELECT alias, dataset_id FROM aliases ORDER BY dataset_id, alias
`

func (q *Queries) ListAliases(ctx context.Context) ([]Alias, error) {
	rows, err := q.db.Query(ctx, listAliases)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Alias
	for rows.Next() {
		var i Alias
		if err := rows.Scan(&i.Alias, &i.DatasetID); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
