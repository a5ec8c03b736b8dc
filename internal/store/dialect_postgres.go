package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresDialect: pgx через database/sql
type PostgresDialect struct{}

func (PostgresDialect) Name() string       { return "postgres" }
func (PostgresDialect) DriverName() string { return "pgx" }
func (PostgresDialect) BodyType() string   { return "jsonb" }

func (PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

// 42P07 duplicate_table, 42710 duplicate_object
func (PostgresDialect) DuplicateObject(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42710" || pgErr.Code == "42P07"
	}
	return false
}

// NextSeq берёт значение общей последовательности: параллельные писатели
// из разных процессов получают разные seq.
func (PostgresDialect) NextSeq(string) string { return "nextval('documents_seq')" }

func (PostgresDialect) SeqDDL() []string {
	return []string{`create sequence if not exists documents_seq`}
}
