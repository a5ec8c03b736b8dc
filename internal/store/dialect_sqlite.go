package store

import (
	"fmt"
	"strings"
)

// SQLiteDialect: modernc.org/sqlite
type SQLiteDialect struct{}

func (SQLiteDialect) Name() string       { return "sqlite" }
func (SQLiteDialect) DriverName() string { return "sqlite" }
func (SQLiteDialect) BodyType() string   { return "text" }

func (SQLiteDialect) Placeholder(index int) string {
	return fmt.Sprintf("?%d", index)
}

func (SQLiteDialect) DuplicateObject(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "already exists")
}

// NextSeq: max+1 внутри коллекции; запись в sqlite идёт под единственной блокировкой БД.
func (SQLiteDialect) NextSeq(coll string) string {
	return fmt.Sprintf("(select coalesce(max(seq), 0) + 1 from documents where collection = %s)", coll)
}

func (SQLiteDialect) SeqDDL() []string { return nil }
