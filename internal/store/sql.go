package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // driver: sqlite
)

// SQL: документное хранилище поверх postgres/sqlite (таблица documents)
type SQL struct {
	DB      *sql.DB
	Dialect Dialect
	log     *zap.Logger
}

var _ Store = (*SQL)(nil)

// OpenSQL открывает соединение, пингует и применяет DDL.
func OpenSQL(ctx context.Context, d Dialect, dsn string, log *zap.Logger) (*SQL, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.Name(), err)
	}
	switch d.Name() {
	case "sqlite":
		// один писатель, WAL для чтения параллельно
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	default:
		db.SetConnMaxLifetime(30 * time.Minute)
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.Name(), err)
	}

	s := &SQL{DB: db, Dialect: d, log: log}
	if err := s.ApplyDDL(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// ApplyDDL выполняет идемпотентный DDL; «уже существует» пропускаем.
func (s *SQL) ApplyDDL(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	for _, stmt := range schemaDDL(s.Dialect) {
		stmt = strings.TrimSpace(stmt)
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			if s.Dialect.DuplicateObject(err) {
				s.log.Info("DDL skipped (already exists)", zap.Error(err))
				continue
			}
			return fmt.Errorf("DDL apply failed: %w", err)
		}
	}
	return nil
}

func (s *SQL) ph(i int) string { return s.Dialect.Placeholder(i) }

func (s *SQL) Get(ctx context.Context, c Collection, id string) (json.RawMessage, error) {
	q := fmt.Sprintf("select body from documents where collection = %s and id = %s", s.ph(1), s.ph(2))
	var body []byte
	err := s.DB.QueryRowContext(ctx, q, string(c), id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", c, id, err)
	}
	return json.RawMessage(body), nil
}

// execer: *sql.DB или *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// putStmt: upsert; при конфликте seq не меняется, позиция в List сохраняется
func (s *SQL) putStmt() string {
	return fmt.Sprintf(`insert into documents (collection, id, seq, body, updated_at)
values (%[1]s, %[2]s, %[5]s, %[3]s, %[4]s)
on conflict (collection, id) do update set body = excluded.body, updated_at = excluded.updated_at`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.Dialect.NextSeq(s.ph(1)))
}

func (s *SQL) put(ctx context.Context, ex execer, c Collection, id string, body json.RawMessage, now string) error {
	if _, err := ex.ExecContext(ctx, s.putStmt(), string(c), id, string(body), now); err != nil {
		return fmt.Errorf("put %s/%s: %w", c, id, err)
	}
	return nil
}

func (s *SQL) del(ctx context.Context, ex execer, c Collection, id string) (bool, error) {
	q := fmt.Sprintf("delete from documents where collection = %s and id = %s", s.ph(1), s.ph(2))
	res, err := ex.ExecContext(ctx, q, string(c), id)
	if err != nil {
		return false, fmt.Errorf("delete %s/%s: %w", c, id, err)
	}
	n, err := res.RowsAffected()
	return err != nil || n > 0, nil
}

func stamp() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func (s *SQL) Put(ctx context.Context, c Collection, id string, body json.RawMessage) error {
	return s.put(ctx, s.DB, c, id, body, stamp())
}

func (s *SQL) List(ctx context.Context, c Collection) ([]Document, error) {
	q := fmt.Sprintf("select id, body from documents where collection = %s order by seq", s.ph(1))
	rows, err := s.DB.QueryContext(ctx, q, string(c))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c, err)
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var (
			id   string
			body []byte
		)
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scan %s: %w", c, err)
		}
		out = append(out, Document{ID: id, Body: json.RawMessage(body)})
	}
	return out, rows.Err()
}

func (s *SQL) Delete(ctx context.Context, c Collection, id string) error {
	found, err := s.del(ctx, s.DB, c, id)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	return nil
}

func (s *SQL) Batch(ctx context.Context, ops []Op) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := stamp()
	for _, op := range ops {
		if op.Delete {
			if _, err := s.del(ctx, tx, op.Coll, op.ID); err != nil {
				return err
			}
			continue
		}
		if err := s.put(ctx, tx, op.Coll, op.ID, op.Body, now); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Replace чистит таблицу и вставляет документы по порядку тем же upsert,
// что и Put, поэтому seq берётся из того же источника.
func (s *SQL) Replace(ctx context.Context, docs map[Collection][]Document) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "delete from documents"); err != nil {
		return fmt.Errorf("clear documents: %w", err)
	}
	now := stamp()
	for c, list := range docs {
		for _, d := range list {
			if err := s.put(ctx, tx, c, d.ID, d.Body, now); err != nil {
				return err
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQL) Close() error { return s.DB.Close() }
