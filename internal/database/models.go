package database

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type Alias struct {
	Alias     string
	DatasetID pgtype.UUID
}

type Dataset struct {
	ID        pgtype.UUID
	Status    int32
	Created   pgtype.Timestamptz
	Columns   []byte
	Encoding  string
	Delimiter string
	Error     pgtype.Text
}

type DatasetRow struct {
	DatasetID pgtype.UUID
	Rownr     int32
	Data      []byte
}
