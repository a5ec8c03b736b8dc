package transfer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"datalogger/internal/model"
)

// Object: сохранённый архив выгрузки
type Object struct {
	Key    string `json:"key"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
	Driver string `json:"driver"`
}

// BlobStore хранит архивы выгрузок (локальная папка или S3).
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (Object, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

var ErrBadKey = errors.New("invalid blob key")

// cleanKey запрещает абсолютные пути и выход за корень.
func cleanKey(key string) (string, error) {
	k := filepath.ToSlash(filepath.Clean("/" + strings.TrimSpace(key)))
	k = strings.TrimPrefix(k, "/")
	if k == "" || k == "." {
		return "", ErrBadKey
	}
	return k, nil
}

type LocalBlobStore struct {
	Root string // например, "./exports"
}

func (s *LocalBlobStore) path(key string) (string, string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", "", err
	}
	return k, filepath.Join(s.Root, filepath.FromSlash(k)), nil
}

func (s *LocalBlobStore) Put(ctx context.Context, key string, r io.Reader, _ int64, _ string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	k, full, err := s.path(key)
	if err != nil {
		return Object{}, err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return Object{}, err
	}
	f, err := os.Create(full)
	if err != nil {
		return Object{}, err
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(f, h), r)
	if err != nil {
		return Object{}, err
	}
	return Object{Key: k, Size: n, SHA256: hex.EncodeToString(h.Sum(nil)), Driver: "local"}, f.Sync()
}

func (s *LocalBlobStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	_, full, err := s.path(key)
	if err != nil {
		return nil, err
	}
	return os.Open(full)
}

func (s *LocalBlobStore) Delete(_ context.Context, key string) error {
	_, full, err := s.path(key)
	if err != nil {
		return err
	}
	return os.Remove(full)
}

// Archive сериализует снимок в JSON и кладёт его в blob под именем FileName.
func Archive(ctx context.Context, bs BlobStore, snap model.Snapshot, now time.Time) (Object, error) {
	var buf bytes.Buffer
	if err := ExportJSON(&buf, snap); err != nil {
		return Object{}, fmt.Errorf("encode export: %w", err)
	}
	key := now.UTC().Format("2006/01/") + FileName(DefaultPrefix, "json", now)
	obj, err := bs.Put(ctx, key, &buf, int64(buf.Len()), "application/json")
	if err != nil {
		return Object{}, fmt.Errorf("store export %s: %w", key, err)
	}
	return obj, nil
}
