package store

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Options: выбор бэкенда
type Options struct {
	Driver     string // memory | file | postgres | sqlite
	DataFile   string // file
	DBURL      string // postgres
	SQLitePath string // sqlite
}

func Open(ctx context.Context, o Options, log *zap.Logger) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(o.Driver)) {
	case "", "memory":
		return NewMemory(), nil
	case "file":
		if o.DataFile == "" {
			return nil, fmt.Errorf("file store: data file path is empty")
		}
		f, err := OpenFile(o.DataFile)
		if err != nil {
			return nil, err
		}
		return f, nil
	case "postgres":
		if o.DBURL == "" {
			return nil, fmt.Errorf("postgres store: db url is empty")
		}
		return openSQL(ctx, NewDialect("postgres"), o.DBURL, log)
	case "sqlite":
		if o.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite store: path is empty")
		}
		return openSQL(ctx, NewDialect("sqlite"), o.SQLitePath, log)
	default:
		return nil, fmt.Errorf("unknown store driver %q (allowed: memory|file|postgres|sqlite)", o.Driver)
	}
}

func openSQL(ctx context.Context, d Dialect, dsn string, log *zap.Logger) (Store, error) {
	s, err := OpenSQL(ctx, d, dsn, log)
	if err != nil {
		return nil, err
	}
	return s, nil
}
