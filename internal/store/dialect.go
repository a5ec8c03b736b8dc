package store

import "fmt"

// Dialect прячет различия postgres/sqlite в SQL документного хранилища.
type Dialect interface {
	// Name: "postgres" | "sqlite"
	Name() string
	// DriverName: имя database/sql драйвера ("pgx" | "sqlite")
	DriverName() string
	// Placeholder: плейсхолдер параметра по 1-based индексу
	Placeholder(index int) string
	// BodyType: DDL-тип колонки с JSON-телом
	BodyType() string
	// DuplicateObject сообщает, что ошибка DDL означает «уже существует»
	DuplicateObject(err error) bool
	// NextSeq: SQL-выражение следующего seq для коллекции в параметре coll
	NextSeq(coll string) string
	// SeqDDL: объекты, нужные NextSeq
	SeqDDL() []string
}

func NewDialect(driver string) Dialect {
	switch driver {
	case "sqlite":
		return SQLiteDialect{}
	default:
		return PostgresDialect{}
	}
}

// schemaDDL: одна таблица documents; seq задаёт порядок вставки внутри коллекции
// и уникален в ней, так что порядок List однозначен при нескольких писателях.
func schemaDDL(d Dialect) []string {
	return append(d.SeqDDL(),
		fmt.Sprintf(`create table if not exists documents (
  collection text not null,
  id text not null,
  seq bigint not null,
  body %s not null,
  updated_at text not null,
  primary key (collection, id)
)`, d.BodyType()),
		`create unique index if not exists documents_collection_seq_uidx on documents (collection, seq)`,
	)
}
