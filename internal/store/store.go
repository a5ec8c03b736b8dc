// Package store хранит документы (сущности, поля, записи, конфиг) по коллекциям.
// Любой бэкенд (память, файл, postgres, sqlite) реализует Store.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

type Collection string

const (
	Entities Collection = "entities"
	Fields   Collection = "fields"
	Records  Collection = "records"
	Data     Collection = "data" // служебные документы: data/config
)

// ConfigDocID: id документа конфигурации в коллекции data
const ConfigDocID = "config"

var AllCollections = []Collection{Entities, Fields, Records, Data}

var ErrNotFound = errors.New("not found")

// Document: сырое JSON-тело с id
type Document struct {
	ID   string
	Body json.RawMessage
}

// Op: одна операция пакета Batch; Delete=true удаляет документ, иначе Put
type Op struct {
	Coll   Collection
	ID     string
	Body   json.RawMessage
	Delete bool
}

// PutOp и DeleteOp собирают операции пакета.
func PutOp(c Collection, id string, body json.RawMessage) Op {
	return Op{Coll: c, ID: id, Body: body}
}

func DeleteOp(c Collection, id string) Op {
	return Op{Coll: c, ID: id, Delete: true}
}

type Store interface {
	Get(ctx context.Context, coll Collection, id string) (json.RawMessage, error)
	// Put: upsert; при обновлении позиция документа в List сохраняется
	Put(ctx context.Context, coll Collection, id string, body json.RawMessage) error
	// List возвращает документы в порядке вставки
	List(ctx context.Context, coll Collection) ([]Document, error)
	Delete(ctx context.Context, coll Collection, id string) error
	// Batch применяет операции по порядку и атомарно: либо все, либо ни одной.
	// Удаление отсутствующего документа в пакете не ошибка.
	Batch(ctx context.Context, ops []Op) error
	// Replace атомарно перезаписывает все коллекции
	Replace(ctx context.Context, docs map[Collection][]Document) error
	Close() error
}

// Repo: типизированная обёртка над коллекцией
type Repo[T any] struct {
	Store Store
	Coll  Collection
}

func NewRepo[T any](s Store, coll Collection) Repo[T] {
	return Repo[T]{Store: s, Coll: coll}
}

func (r Repo[T]) Get(ctx context.Context, id string) (T, error) {
	var out T
	raw, err := r.Store.Get(ctx, r.Coll, id)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s/%s: %w", r.Coll, id, err)
	}
	return out, nil
}

// GetMany возвращает найденные документы в порядке ids; отсутствующие пропускаются молча.
func (r Repo[T]) GetMany(ctx context.Context, ids []string) ([]T, error) {
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		v, err := r.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (r Repo[T]) List(ctx context.Context) ([]T, error) {
	docs, err := r.Store.List(ctx, r.Coll)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := json.Unmarshal(d.Body, &v); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", r.Coll, d.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (r Repo[T]) Put(ctx context.Context, id string, v T) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", r.Coll, id, err)
	}
	return r.Store.Put(ctx, r.Coll, id, b)
}

func (r Repo[T]) Delete(ctx context.Context, id string) error {
	return r.Store.Delete(ctx, r.Coll, id)
}

// PutOp кодирует значение в операцию пакета.
func (r Repo[T]) PutOp(id string, v T) (Op, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Op{}, fmt.Errorf("encode %s/%s: %w", r.Coll, id, err)
	}
	return PutOp(r.Coll, id, b), nil
}

func (r Repo[T]) DeleteOp(id string) Op {
	return DeleteOp(r.Coll, id)
}

// EncodeAll превращает срез значений в документы; id берётся через idOf.
func EncodeAll[T any](items []T, idOf func(T) string) ([]Document, error) {
	out := make([]Document, 0, len(items))
	for _, it := range items {
		b, err := json.Marshal(it)
		if err != nil {
			return nil, err
		}
		out = append(out, Document{ID: idOf(it), Body: b})
	}
	return out, nil
}
