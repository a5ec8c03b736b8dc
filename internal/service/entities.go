package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"datalogger/internal/model"
	"datalogger/internal/store"
)

type EntityInput struct {
	Name     string   `json:"name"`
	FieldIDs []string `json:"associatedFieldIds"`
	// ожидаемая версия при обновлении; 0: без проверки
	Version int64 `json:"version,omitempty"`
}

func (s *Service) ListEntities(ctx context.Context) ([]model.Entity, error) {
	out, err := s.entities.List(ctx)
	return out, s.fail("list entities", err)
}

func (s *Service) GetEntity(ctx context.Context, id string) (model.Entity, error) {
	e, err := s.entities.Get(ctx, id)
	return e, s.fail("get entity", err)
}

// GetEntities: в порядке ids, отсутствующие пропускаются.
func (s *Service) GetEntities(ctx context.Context, ids []string) ([]model.Entity, error) {
	out, err := s.entities.GetMany(ctx, ids)
	return out, s.fail("get entities", err)
}

// FindEntityByName ищет без учёта регистра.
func (s *Service) FindEntityByName(ctx context.Context, name string) (model.Entity, bool, error) {
	all, err := s.ListEntities(ctx)
	if err != nil {
		return model.Entity{}, false, err
	}
	for _, e := range all {
		if sameName(e.Name, name) {
			return e, true, nil
		}
	}
	return model.Entity{}, false, nil
}

// validateEntity: имя непустое и уникальное, поля существуют, без повторов.
func (s *Service) validateEntity(ctx context.Context, selfID string, in EntityInput) ([]string, error) {
	var errs []model.FieldError
	name := strings.TrimSpace(in.Name)
	if name == "" {
		errs = append(errs, model.Ferr(model.ErrEmptyName, "name", "Entity name is required"))
	} else {
		all, err := s.entities.List(ctx)
		if err != nil {
			return nil, s.fail("list entities", err)
		}
		for _, e := range all {
			if e.ID != selfID && sameName(e.Name, name) {
				errs = append(errs, model.Ferr(model.ErrDuplicateName, "name", "Entity '"+name+"' already exists"))
				break
			}
		}
	}

	ids := make([]string, 0, len(in.FieldIDs))
	seen := map[string]bool{}
	for _, id := range in.FieldIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if _, err := s.fields.Get(ctx, id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				errs = append(errs, model.Ferr(model.ErrUnknownField, "associatedFieldIds", "Unknown field id '"+id+"'"))
				continue
			}
			return nil, s.fail("get field", err)
		}
		ids = append(ids, id)
	}
	if len(errs) > 0 {
		return nil, invalid(errs...)
	}
	return ids, nil
}

func (s *Service) CreateEntity(ctx context.Context, in EntityInput) (model.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.validateEntity(ctx, "", in)
	if err != nil {
		return model.Entity{}, err
	}
	now := s.stamp()
	e := model.Entity{
		ID:                 s.newID(),
		Name:               strings.TrimSpace(in.Name),
		AssociatedFieldIDs: ids,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.entities.Put(ctx, e.ID, e); err != nil {
		return model.Entity{}, s.fail("put entity", err)
	}
	s.log.Info("entity created", zap.String("id", e.ID), zap.String("name", e.Name))
	return e, nil
}

func (s *Service) UpdateEntity(ctx context.Context, id string, in EntityInput) (model.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.entities.Get(ctx, id)
	if err != nil {
		return model.Entity{}, s.fail("get entity", err)
	}
	if err := checkVersion(in.Version, cur.Version); err != nil {
		return model.Entity{}, err
	}
	ids, err := s.validateEntity(ctx, id, in)
	if err != nil {
		return model.Entity{}, err
	}
	cur.Name = strings.TrimSpace(in.Name)
	cur.AssociatedFieldIDs = ids
	cur.Version++
	cur.UpdatedAt = s.stamp()
	if err := s.entities.Put(ctx, cur.ID, cur); err != nil {
		return model.Entity{}, s.fail("put entity", err)
	}
	return cur, nil
}

// DeleteEntity удаляет сущность и все её записи одним пакетом.
func (s *Service) DeleteEntity(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.entities.Get(ctx, id); err != nil {
		return s.fail("get entity", err)
	}
	recs, err := s.records.List(ctx)
	if err != nil {
		return s.fail("list records", err)
	}
	var ops []store.Op
	for _, r := range recs {
		if r.EntityID == id {
			ops = append(ops, s.records.DeleteOp(r.ID))
		}
	}
	removed := len(ops)
	ops = append(ops, s.entities.DeleteOp(id))
	if err := s.st.Batch(ctx, ops); err != nil {
		return s.fail("delete entity", err)
	}
	s.metrics.SetRecords(len(recs) - removed)
	s.log.Info("entity deleted", zap.String("id", id), zap.Int("records_removed", removed))
	return nil
}
