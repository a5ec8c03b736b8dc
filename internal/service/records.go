package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"datalogger/internal/form"
	"datalogger/internal/model"
	"datalogger/internal/report"
	"datalogger/internal/store"
)

type RecordInput struct {
	EntityID string         `json:"entityId"`
	Values   map[string]any `json:"data"`
	// нулевое: текущее время
	Timestamp time.Time `json:"timestamp"`
	Version   int64     `json:"version,omitempty"`
}

// RecordFilter: фильтр списка записей. From/To: календарные даты (границы суток).
type RecordFilter struct {
	EntityID string
	From, To time.Time
	Limit    int
	Offset   int
	// "timestamp" (по возрастанию) или "-timestamp"; пусто: порядок вставки
	Sort string
}

func (s *Service) GetRecord(ctx context.Context, id string) (model.Record, error) {
	r, err := s.records.Get(ctx, id)
	return r, s.fail("get record", err)
}

func (s *Service) GetRecords(ctx context.Context, ids []string) ([]model.Record, error) {
	out, err := s.records.GetMany(ctx, ids)
	return out, s.fail("get records", err)
}

// ListRecords возвращает страницу и общее число записей, прошедших фильтр.
func (s *Service) ListRecords(ctx context.Context, f RecordFilter) ([]model.Record, int, error) {
	all, err := s.records.List(ctx)
	if err != nil {
		return nil, 0, s.fail("list records", err)
	}
	var start, end time.Time
	if !f.From.IsZero() {
		start = report.StartOfDay(f.From, s.loc)
	}
	if !f.To.IsZero() {
		end = report.EndOfDay(f.To, s.loc)
	}
	out := make([]model.Record, 0, len(all))
	for _, r := range all {
		if f.EntityID != "" && r.EntityID != f.EntityID {
			continue
		}
		ts := r.Timestamp.Truncate(time.Millisecond)
		if !start.IsZero() && ts.Before(start) {
			continue
		}
		if !end.IsZero() && ts.After(end) {
			continue
		}
		out = append(out, r)
	}

	switch strings.TrimSpace(f.Sort) {
	case "timestamp":
		sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	case "-timestamp":
		sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	}

	total := len(out)
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			out = out[:0]
		} else {
			out = out[f.Offset:]
		}
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, total, nil
}

// formFor строит форму сущности; отсутствие сущности: ошибка валидации.
func (s *Service) formFor(ctx context.Context, entityID string) (form.Form, error) {
	e, err := s.entities.Get(ctx, entityID)
	if errors.Is(err, store.ErrNotFound) {
		return form.Form{}, invalid(model.Ferr(model.ErrUnknownEntity, "entityId", "Unknown entity '"+entityID+"'"))
	}
	if err != nil {
		return form.Form{}, s.fail("get entity", err)
	}
	fields, err := s.fields.GetMany(ctx, e.AssociatedFieldIDs)
	if err != nil {
		return form.Form{}, s.fail("get fields", err)
	}
	return form.Build(e, fields), nil
}

// Form: описание формы ввода для сущности.
func (s *Service) Form(ctx context.Context, entityID string) (form.Form, error) {
	if _, err := s.entities.Get(ctx, entityID); err != nil {
		return form.Form{}, s.fail("get entity", err)
	}
	return s.formFor(ctx, entityID)
}

func (s *Service) CreateRecord(ctx context.Context, in RecordInput) (model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fm, err := s.formFor(ctx, in.EntityID)
	if err != nil {
		return model.Record{}, err
	}
	data, errs := form.Collect(fm, in.Values)
	if len(errs) > 0 {
		return model.Record{}, invalid(errs...)
	}
	now := s.stamp()
	ts := now
	if !in.Timestamp.IsZero() {
		ts = in.Timestamp.UTC().Truncate(time.Millisecond)
	}
	r := model.Record{
		ID:        s.newID(),
		EntityID:  in.EntityID,
		Timestamp: ts,
		Data:      data,
		Version:   1,
		UpdatedAt: now,
	}
	if err := s.records.Put(ctx, r.ID, r); err != nil {
		return model.Record{}, s.fail("put record", err)
	}
	s.countRecords(ctx)
	return r, nil
}

// UpdateRecord заменяет данные (и, если задано, время) записи.
// Проверка идёт по текущей форме сущности записи; EntityID из входа игнорируется.
func (s *Service) UpdateRecord(ctx context.Context, id string, in RecordInput) (model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.records.Get(ctx, id)
	if err != nil {
		return model.Record{}, s.fail("get record", err)
	}
	if err := checkVersion(in.Version, cur.Version); err != nil {
		return model.Record{}, err
	}
	fm, err := s.formFor(ctx, cur.EntityID)
	if err != nil {
		return model.Record{}, err
	}
	data, errs := form.Collect(fm, in.Values)
	if len(errs) > 0 {
		return model.Record{}, invalid(errs...)
	}
	cur.Data = data
	if !in.Timestamp.IsZero() {
		cur.Timestamp = in.Timestamp.UTC().Truncate(time.Millisecond)
	}
	cur.Version++
	cur.UpdatedAt = s.stamp()
	if err := s.records.Put(ctx, cur.ID, cur); err != nil {
		return model.Record{}, s.fail("put record", err)
	}
	return cur, nil
}

func (s *Service) DeleteRecord(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.records.Delete(ctx, id); err != nil {
		return s.fail("delete record", err)
	}
	s.countRecords(ctx)
	return nil
}

func (s *Service) countRecords(ctx context.Context) {
	if docs, err := s.st.List(ctx, store.Records); err == nil {
		s.metrics.SetRecords(len(docs))
	}
}

// Table: колонки (поля с showInTable в порядке привязки) и записи сущности.
type Table struct {
	Entity  model.Entity   `json:"entity"`
	Columns []model.Field  `json:"columns"`
	Records []model.Record `json:"records"`
	Total   int            `json:"total"`
}

func (s *Service) EntityTable(ctx context.Context, entityID string, f RecordFilter) (Table, error) {
	e, err := s.GetEntity(ctx, entityID)
	if err != nil {
		return Table{}, err
	}
	fields, err := s.GetFields(ctx, e.AssociatedFieldIDs)
	if err != nil {
		return Table{}, err
	}
	cols := make([]model.Field, 0, len(fields))
	for _, fd := range fields {
		if fd.ShowInTable {
			cols = append(cols, fd)
		}
	}
	f.EntityID = entityID
	recs, total, err := s.ListRecords(ctx, f)
	if err != nil {
		return Table{}, err
	}
	return Table{Entity: e, Columns: cols, Records: recs, Total: total}, nil
}
