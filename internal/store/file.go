package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// fileLayout: один JSON-блоб: { config, entities, fields, records }.
// availableFields/productionLogs: старые имена ключей, читаются при загрузке.
type fileLayout struct {
	Config          json.RawMessage            `json:"config,omitempty"`
	Entities        []json.RawMessage          `json:"entities"`
	Fields          []json.RawMessage          `json:"fields"`
	Records         []json.RawMessage          `json:"records"`
	Data            map[string]json.RawMessage `json:"data,omitempty"`
	AvailableFields []json.RawMessage          `json:"availableFields,omitempty"`
	ProductionLogs  []json.RawMessage          `json:"productionLogs,omitempty"`
}

// File: Memory, сбрасываемый целиком в файл после каждой мутации
type File struct {
	path string
	mu   sync.Mutex // сериализует мутацию + запись файла
	mem  *Memory
}

var _ Store = (*File)(nil)

// OpenFile читает файл, если он есть; отсутствие файла: пустое состояние.
func OpenFile(path string) (*File, error) {
	f := &File{path: path, mem: NewMemory()}
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return f, nil
	}
	docs, err := decodeLayout(b)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := f.mem.Replace(context.Background(), docs); err != nil {
		return nil, err
	}
	return f, nil
}

func decodeLayout(b []byte) (map[Collection][]Document, error) {
	var l fileLayout
	if err := json.Unmarshal(b, &l); err != nil {
		return nil, err
	}
	fields := l.Fields
	if len(fields) == 0 {
		fields = l.AvailableFields
	}
	records := l.Records
	if len(records) == 0 {
		records = l.ProductionLogs
	}
	fieldDocs := withIDs(Fields, fields)
	out := map[Collection][]Document{
		Entities: withIDs(Entities, l.Entities),
		Fields:   fieldDocs,
		Records:  normalizeRecords(fieldDocs, withIDs(Records, records)),
	}
	var data []Document
	if len(l.Config) > 0 && string(l.Config) != "null" {
		data = append(data, Document{ID: ConfigDocID, Body: l.Config})
	}
	for id, body := range l.Data {
		if id == ConfigDocID {
			continue
		}
		data = append(data, Document{ID: id, Body: body})
	}
	out[Data] = data
	return out, nil
}

func encodeLayout(docs map[Collection][]Document) ([]byte, error) {
	l := fileLayout{
		Entities: bodies(docs[Entities]),
		Fields:   bodies(docs[Fields]),
		Records:  bodies(docs[Records]),
	}
	for _, d := range docs[Data] {
		if d.ID == ConfigDocID {
			l.Config = d.Body
			continue
		}
		if l.Data == nil {
			l.Data = map[string]json.RawMessage{}
		}
		l.Data[d.ID] = d.Body
	}
	return json.MarshalIndent(l, "", "  ")
}

func bodies(docs []Document) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Body)
	}
	return out
}

// flush пишет атомарно: временный файл + rename
func (f *File) flush() error {
	b, err := encodeLayout(f.mem.snapshot())
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".datalogger-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

// mutate применяет fn и сбрасывает файл; при ошибке записи состояние откатывается
func (f *File) mutate(ctx context.Context, fn func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev := f.mem.snapshot()
	if err := fn(); err != nil {
		return err
	}
	if err := f.flush(); err != nil {
		_ = f.mem.Replace(ctx, prev)
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	return nil
}

func (f *File) Get(ctx context.Context, c Collection, id string) (json.RawMessage, error) {
	return f.mem.Get(ctx, c, id)
}

func (f *File) List(ctx context.Context, c Collection) ([]Document, error) {
	return f.mem.List(ctx, c)
}

func (f *File) Put(ctx context.Context, c Collection, id string, body json.RawMessage) error {
	return f.mutate(ctx, func() error { return f.mem.Put(ctx, c, id, body) })
}

func (f *File) Delete(ctx context.Context, c Collection, id string) error {
	return f.mutate(ctx, func() error { return f.mem.Delete(ctx, c, id) })
}

func (f *File) Batch(ctx context.Context, ops []Op) error {
	return f.mutate(ctx, func() error { return f.mem.Batch(ctx, ops) })
}

func (f *File) Replace(ctx context.Context, docs map[Collection][]Document) error {
	return f.mutate(ctx, func() error { return f.mem.Replace(ctx, docs) })
}

func (f *File) Close() error { return nil }
