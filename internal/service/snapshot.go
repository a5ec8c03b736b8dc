package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"

	"datalogger/internal/model"
	"datalogger/internal/store"
)

var defaultConfig = model.Config{Title: "Data Logger"}

// Config возвращает заголовок приложения; если он ещё не сохранён: значения по умолчанию.
func (s *Service) Config(ctx context.Context) (model.Config, error) {
	c, err := s.config.Get(ctx, store.ConfigDocID)
	if errors.Is(err, store.ErrNotFound) {
		return defaultConfig, nil
	}
	return c, s.fail("get config", err)
}

func (s *Service) UpdateConfig(ctx context.Context, c model.Config) (model.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.Title = strings.TrimSpace(c.Title)
	c.Description = strings.TrimSpace(c.Description)
	c.EntityTypeName = strings.TrimSpace(c.EntityTypeName)
	if c.Title == "" {
		return model.Config{}, invalid(model.Ferr(model.ErrEmptyName, "title", "Title is required"))
	}
	if err := s.config.Put(ctx, store.ConfigDocID, c); err != nil {
		return model.Config{}, s.fail("put config", err)
	}
	return c, nil
}

// Snapshot: полное состояние для экспорта.
func (s *Service) Snapshot(ctx context.Context) (model.Snapshot, error) {
	cfg, err := s.Config(ctx)
	if err != nil {
		return model.Snapshot{}, err
	}
	ents, err := s.ListEntities(ctx)
	if err != nil {
		return model.Snapshot{}, err
	}
	fields, err := s.ListFields(ctx)
	if err != nil {
		return model.Snapshot{}, err
	}
	recs, err := s.records.List(ctx)
	if err != nil {
		return model.Snapshot{}, s.fail("list records", err)
	}
	return model.Snapshot{Config: cfg, Entities: ents, Fields: fields, Records: recs}, nil
}

// Import полностью заменяет состояние снимком. Снимок должен быть уже проверен
// (transfer.DecodeImport); при ошибке хранилища прежнее состояние остаётся.
func (s *Service) Import(ctx context.Context, snap model.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := map[store.Collection][]store.Document{}
	var err error
	if docs[store.Entities], err = store.EncodeAll(snap.Entities, func(e model.Entity) string { return e.ID }); err != nil {
		return s.fail("encode entities", err)
	}
	if docs[store.Fields], err = store.EncodeAll(snap.Fields, func(f model.Field) string { return f.ID }); err != nil {
		return s.fail("encode fields", err)
	}
	if docs[store.Records], err = store.EncodeAll(snap.Records, func(r model.Record) string { return r.ID }); err != nil {
		return s.fail("encode records", err)
	}
	cfg, err := json.Marshal(snap.Config)
	if err != nil {
		return s.fail("encode config", err)
	}
	docs[store.Data] = []store.Document{{ID: store.ConfigDocID, Body: cfg}}

	if err := s.st.Replace(ctx, docs); err != nil {
		return s.fail("replace", err)
	}
	s.metrics.SetRecords(len(snap.Records))
	s.log.Info("state imported",
		zap.Int("entities", len(snap.Entities)),
		zap.Int("fields", len(snap.Fields)),
		zap.Int("records", len(snap.Records)))
	return nil
}
