package store

import (
	"context"
	"encoding/json"
	"sync"
)

type collection struct {
	byID  map[string]json.RawMessage
	order []string
}

func newCollection() *collection {
	return &collection{byID: make(map[string]json.RawMessage)}
}

// Memory: in-memory хранилище; порядок вставки хранится отдельным срезом
type Memory struct {
	mu    sync.RWMutex
	colls map[Collection]*collection
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	m := &Memory{colls: make(map[Collection]*collection, len(AllCollections))}
	for _, c := range AllCollections {
		m.colls[c] = newCollection()
	}
	return m
}

// coll вызывается под mu
func (m *Memory) coll(c Collection) *collection {
	cc := m.colls[c]
	if cc == nil {
		cc = newCollection()
		m.colls[c] = cc
	}
	return cc
}

func (m *Memory) Get(_ context.Context, c Collection, id string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cc := m.colls[c]
	if cc == nil {
		return nil, ErrNotFound
	}
	b, ok := cc.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(b), nil
}

func (m *Memory) Put(_ context.Context, c Collection, id string, body json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putLocked(c, id, body)
	return nil
}

func (m *Memory) putLocked(c Collection, id string, body json.RawMessage) {
	cc := m.coll(c)
	if _, exists := cc.byID[id]; !exists {
		cc.order = append(cc.order, id)
	}
	cc.byID[id] = clone(body)
}

func (m *Memory) List(_ context.Context, c Collection) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cc := m.colls[c]
	if cc == nil {
		return nil, nil
	}
	out := make([]Document, 0, len(cc.order))
	for _, id := range cc.order {
		out = append(out, Document{ID: id, Body: clone(cc.byID[id])})
	}
	return out, nil
}

func (m *Memory) Delete(_ context.Context, c Collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.deleteLocked(c, id) {
		return ErrNotFound
	}
	return nil
}

// deleteLocked сообщает, был ли документ
func (m *Memory) deleteLocked(c Collection, id string) bool {
	cc := m.colls[c]
	if cc == nil {
		return false
	}
	if _, ok := cc.byID[id]; !ok {
		return false
	}
	delete(cc.byID, id)
	for i, oid := range cc.order {
		if oid == id {
			cc.order = append(cc.order[:i], cc.order[i+1:]...)
			break
		}
	}
	return true
}

// Batch выполняется под одной блокировкой; ошибиться в памяти операции не могут.
func (m *Memory) Batch(ctx context.Context, ops []Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range ops {
		if op.Delete {
			m.deleteLocked(op.Coll, op.ID)
			continue
		}
		m.putLocked(op.Coll, op.ID, op.Body)
	}
	return nil
}

func (m *Memory) Replace(_ context.Context, docs map[Collection][]Document) error {
	fresh := make(map[Collection]*collection, len(AllCollections))
	for _, c := range AllCollections {
		fresh[c] = newCollection()
	}
	for c, list := range docs {
		cc := fresh[c]
		if cc == nil {
			cc = newCollection()
			fresh[c] = cc
		}
		for _, d := range list {
			if _, dup := cc.byID[d.ID]; !dup {
				cc.order = append(cc.order, d.ID)
			}
			cc.byID[d.ID] = clone(d.Body)
		}
	}
	m.mu.Lock()
	m.colls = fresh
	m.mu.Unlock()
	return nil
}

func (m *Memory) Close() error { return nil }

// snapshot: копия всех коллекций (для файлового бэкенда)
func (m *Memory) snapshot() map[Collection][]Document {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[Collection][]Document, len(m.colls))
	for c, cc := range m.colls {
		list := make([]Document, 0, len(cc.order))
		for _, id := range cc.order {
			list = append(list, Document{ID: id, Body: clone(cc.byID[id])})
		}
		out[c] = list
	}
	return out
}

func clone(b json.RawMessage) json.RawMessage {
	if b == nil {
		return nil
	}
	return append(json.RawMessage(nil), b...)
}
