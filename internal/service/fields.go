package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"datalogger/internal/model"
	"datalogger/internal/store"
)

type FieldInput struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Options      []string `json:"options,omitempty"`
	Required     bool     `json:"required"`
	ShowInTable  bool     `json:"showInTable"`
	ShowInReport bool     `json:"showInReport"`
	Version      int64    `json:"version,omitempty"`
}

func (s *Service) ListFields(ctx context.Context) ([]model.Field, error) {
	out, err := s.fields.List(ctx)
	return out, s.fail("list fields", err)
}

func (s *Service) GetField(ctx context.Context, id string) (model.Field, error) {
	f, err := s.fields.Get(ctx, id)
	return f, s.fail("get field", err)
}

func (s *Service) GetFields(ctx context.Context, ids []string) ([]model.Field, error) {
	out, err := s.fields.GetMany(ctx, ids)
	return out, s.fail("get fields", err)
}

func (s *Service) FindFieldByName(ctx context.Context, name string) (model.Field, bool, error) {
	all, err := s.ListFields(ctx)
	if err != nil {
		return model.Field{}, false, err
	}
	for _, f := range all {
		if sameName(f.Name, name) {
			return f, true, nil
		}
	}
	return model.Field{}, false, nil
}

// parseKind собирает Kind из входа; опции обрезаются, пустые отбрасываются до проверки.
func parseKind(in FieldInput) (model.Kind, *model.FieldError) {
	name, err := model.ParseKindName(in.Type)
	if err != nil {
		fe := model.Ferr(model.ErrInvalidKind, "type", err.Error())
		return model.Kind{}, &fe
	}
	var opts []string
	for _, o := range in.Options {
		if o = strings.TrimSpace(o); o != "" {
			opts = append(opts, o)
		}
	}
	k := model.Kind{Name: name, Options: opts}
	if err := k.Validate(); err != nil {
		code := model.ErrInvalidKind
		if errors.Is(err, model.ErrSelectOptions) {
			code = model.ErrTooFewOptions
		}
		fe := model.Ferr(code, "options", err.Error())
		return model.Kind{}, &fe
	}
	return k, nil
}

func (s *Service) validateField(ctx context.Context, selfID string, in FieldInput) (model.Kind, error) {
	var errs []model.FieldError
	name := strings.TrimSpace(in.Name)
	if name == "" {
		errs = append(errs, model.Ferr(model.ErrEmptyName, "name", "Field name is required"))
	} else {
		all, err := s.fields.List(ctx)
		if err != nil {
			return model.Kind{}, s.fail("list fields", err)
		}
		for _, f := range all {
			if f.ID != selfID && sameName(f.Name, name) {
				errs = append(errs, model.Ferr(model.ErrDuplicateName, "name", "Field '"+name+"' already exists"))
				break
			}
		}
	}
	k, fe := parseKind(in)
	if fe != nil {
		errs = append(errs, *fe)
	}
	if len(errs) > 0 {
		return model.Kind{}, invalid(errs...)
	}
	return k, nil
}

func (s *Service) CreateField(ctx context.Context, in FieldInput) (model.Field, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, err := s.validateField(ctx, "", in)
	if err != nil {
		return model.Field{}, err
	}
	now := s.stamp()
	f := model.Field{
		ID:           s.newID(),
		Name:         strings.TrimSpace(in.Name),
		Kind:         k,
		Required:     in.Required,
		ShowInTable:  in.ShowInTable,
		ShowInReport: in.ShowInReport,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.fields.Put(ctx, f.ID, f); err != nil {
		return model.Field{}, s.fail("put field", err)
	}
	s.log.Info("field created", zap.String("id", f.ID), zap.String("name", f.Name), zap.String("type", string(k.Name)))
	return f, nil
}

// UpdateField меняет определение поля. Уже сохранённые значения записей не пересчитываются.
func (s *Service) UpdateField(ctx context.Context, id string, in FieldInput) (model.Field, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.fields.Get(ctx, id)
	if err != nil {
		return model.Field{}, s.fail("get field", err)
	}
	if err := checkVersion(in.Version, cur.Version); err != nil {
		return model.Field{}, err
	}
	k, err := s.validateField(ctx, id, in)
	if err != nil {
		return model.Field{}, err
	}
	cur.Name = strings.TrimSpace(in.Name)
	cur.Kind = k
	cur.Required = in.Required
	cur.ShowInTable = in.ShowInTable
	cur.ShowInReport = in.ShowInReport
	cur.Version++
	cur.UpdatedAt = s.stamp()
	if err := s.fields.Put(ctx, cur.ID, cur); err != nil {
		return model.Field{}, s.fail("put field", err)
	}
	return cur, nil
}

// DeleteField удаляет поле и вычищает его id из всех сущностей одним пакетом.
// Значения в записях остаются.
func (s *Service) DeleteField(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.fields.Get(ctx, id); err != nil {
		return s.fail("get field", err)
	}
	ents, err := s.entities.List(ctx)
	if err != nil {
		return s.fail("list entities", err)
	}
	now := s.stamp()
	var ops []store.Op
	for _, e := range ents {
		if !e.HasField(id) {
			continue
		}
		keep := make([]string, 0, len(e.AssociatedFieldIDs))
		for _, fid := range e.AssociatedFieldIDs {
			if fid != id {
				keep = append(keep, fid)
			}
		}
		e.AssociatedFieldIDs = keep
		e.Version++
		e.UpdatedAt = now
		op, err := s.entities.PutOp(e.ID, e)
		if err != nil {
			return s.fail("encode entity", err)
		}
		ops = append(ops, op)
	}
	stripped := len(ops)
	ops = append(ops, s.fields.DeleteOp(id))
	if err := s.st.Batch(ctx, ops); err != nil {
		return s.fail("delete field", err)
	}
	s.log.Info("field deleted", zap.String("id", id), zap.Int("entities_updated", stripped))
	return nil
}
