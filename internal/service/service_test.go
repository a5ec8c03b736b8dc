package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"datalogger/internal/model"
	"datalogger/internal/report"
	"datalogger/internal/store"
)

var clock = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T, st store.Store) *Service {
	t.Helper()
	if st == nil {
		st = store.NewMemory()
	}
	return New(st, WithLogger(zaptest.NewLogger(t)), WithClock(func() time.Time { return clock }))
}

func validationCodes(t *testing.T, err error) []string {
	t.Helper()
	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve), "expected validation error, got %v", err)
	out := make([]string, 0, len(ve.Errors))
	for _, fe := range ve.Errors {
		out = append(out, fe.Code)
	}
	return out
}

type plant struct {
	output, shift, note model.Field
	press1, warehouse   model.Entity
}

func seedPlant(t *testing.T, s *Service) plant {
	t.Helper()
	ctx := context.Background()
	var p plant
	var err error
	p.output, err = s.CreateField(ctx, FieldInput{Name: "Output", Type: "number", Required: true, ShowInReport: true, ShowInTable: true})
	require.NoError(t, err)
	p.shift, err = s.CreateField(ctx, FieldInput{Name: "Shift", Type: "select", Options: []string{"Day", "Night"}})
	require.NoError(t, err)
	p.note, err = s.CreateField(ctx, FieldInput{Name: "Note", Type: "text"})
	require.NoError(t, err)
	p.press1, err = s.CreateEntity(ctx, EntityInput{Name: "Press1", FieldIDs: []string{p.output.ID, p.shift.ID}})
	require.NoError(t, err)
	p.warehouse, err = s.CreateEntity(ctx, EntityInput{Name: "Warehouse", FieldIDs: []string{p.note.ID}})
	require.NoError(t, err)
	return p
}

func TestFieldValidation(t *testing.T) {
	s := newService(t, nil)
	ctx := context.Background()
	_, err := s.CreateField(ctx, FieldInput{Name: "Output", Type: "number"})
	require.NoError(t, err)

	cases := []struct {
		name string
		in   FieldInput
		code string
	}{
		{"empty name", FieldInput{Name: "  ", Type: "text"}, model.ErrEmptyName},
		{"duplicate case insensitive", FieldInput{Name: "output", Type: "number"}, model.ErrDuplicateName},
		{"bad kind", FieldInput{Name: "X", Type: "date"}, model.ErrInvalidKind},
		{"one option", FieldInput{Name: "X", Type: "select", Options: []string{"A", " "}}, model.ErrTooFewOptions},
		{"options on text", FieldInput{Name: "X", Type: "text", Options: []string{"A", "B"}}, model.ErrInvalidKind},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.CreateField(ctx, tc.in)
			assert.Contains(t, validationCodes(t, err), tc.code)
		})
	}

	all, err := s.ListFields(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1, "failed creates must not mutate state")
}

func TestUpdateFieldRenameUniqueness(t *testing.T) {
	s := newService(t, nil)
	ctx := context.Background()
	p := seedPlant(t, s)

	_, err := s.UpdateField(ctx, p.note.ID, FieldInput{Name: "SHIFT", Type: "text"})
	assert.Contains(t, validationCodes(t, err), model.ErrDuplicateName)

	// своё же имя в другом регистре: можно
	f, err := s.UpdateField(ctx, p.note.ID, FieldInput{Name: "NOTE", Type: "text", ShowInTable: true})
	require.NoError(t, err)
	assert.Equal(t, "NOTE", f.Name)
	assert.Equal(t, int64(2), f.Version)
}

func TestVersionConflict(t *testing.T) {
	s := newService(t, nil)
	ctx := context.Background()
	p := seedPlant(t, s)

	_, err := s.UpdateEntity(ctx, p.press1.ID, EntityInput{Name: "Press 1", FieldIDs: p.press1.AssociatedFieldIDs, Version: 7})
	assert.ErrorIs(t, err, ErrVersionConflict)

	e, err := s.UpdateEntity(ctx, p.press1.ID, EntityInput{Name: "Press 1", FieldIDs: p.press1.AssociatedFieldIDs, Version: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), e.Version)
}

func TestEntityValidation(t *testing.T) {
	s := newService(t, nil)
	ctx := context.Background()
	p := seedPlant(t, s)

	_, err := s.CreateEntity(ctx, EntityInput{Name: "press1"})
	assert.Contains(t, validationCodes(t, err), model.ErrDuplicateName)

	_, err = s.CreateEntity(ctx, EntityInput{Name: "Press2", FieldIDs: []string{p.output.ID, "ghost"}})
	assert.Contains(t, validationCodes(t, err), model.ErrUnknownField)

	e, err := s.CreateEntity(ctx, EntityInput{Name: "Press2", FieldIDs: []string{p.output.ID, p.output.ID, " "}})
	require.NoError(t, err)
	assert.Equal(t, []string{p.output.ID}, e.AssociatedFieldIDs)
}

func TestDeleteFieldStripsAssociations(t *testing.T) {
	s := newService(t, nil)
	ctx := context.Background()
	p := seedPlant(t, s)

	r, err := s.CreateRecord(ctx, RecordInput{EntityID: p.press1.ID, Values: map[string]any{p.output.ID: 5, p.shift.ID: "Day"}})
	require.NoError(t, err)

	require.NoError(t, s.DeleteField(ctx, p.shift.ID))

	ents, err := s.ListEntities(ctx)
	require.NoError(t, err)
	for _, e := range ents {
		assert.False(t, e.HasField(p.shift.ID), "entity %s still references deleted field", e.Name)
	}
	e, err := s.GetEntity(ctx, p.press1.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{p.output.ID}, e.AssociatedFieldIDs)

	// значения в записях не трогаются
	got, err := s.GetRecord(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Day", got.Data[p.shift.ID])

	assert.ErrorIs(t, s.DeleteField(ctx, p.shift.ID), ErrNotFound)
}

func TestDeleteEntityCascadesToRecords(t *testing.T) {
	s := newService(t, nil)
	ctx := context.Background()
	p := seedPlant(t, s)

	for i := 0; i < 3; i++ {
		_, err := s.CreateRecord(ctx, RecordInput{EntityID: p.press1.ID, Values: map[string]any{p.output.ID: i}})
		require.NoError(t, err)
	}
	keep, err := s.CreateRecord(ctx, RecordInput{EntityID: p.warehouse.ID, Values: map[string]any{"Note": "x"}})
	require.NoError(t, err)

	require.NoError(t, s.DeleteEntity(ctx, p.press1.ID))

	recs, total, err := s.ListRecords(ctx, RecordFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, keep.ID, recs[0].ID)

	_, err = s.GetEntity(ctx, p.press1.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

// flakyStore роняет первые failures вызовов Batch
type flakyStore struct {
	store.Store
	failures int
}

func (f *flakyStore) Batch(ctx context.Context, ops []store.Op) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("connection reset")
	}
	return f.Store.Batch(ctx, ops)
}

func TestCascadesAreAllOrNothing(t *testing.T) {
	ctx := context.Background()
	fs := &flakyStore{Store: store.NewMemory()}
	s := newService(t, fs)
	p := seedPlant(t, s)
	other, err := s.CreateEntity(ctx, EntityInput{Name: "Press2", FieldIDs: []string{p.shift.ID, p.output.ID}})
	require.NoError(t, err)
	r, err := s.CreateRecord(ctx, RecordInput{EntityID: p.press1.ID, Values: map[string]any{p.output.ID: 1}})
	require.NoError(t, err)

	fs.failures = 1
	err = s.DeleteField(ctx, p.shift.ID)
	require.ErrorIs(t, err, ErrStorage)

	// ничего не изменилось
	_, err = s.GetField(ctx, p.shift.ID)
	require.NoError(t, err)
	for _, id := range []string{p.press1.ID, other.ID} {
		e, err := s.GetEntity(ctx, id)
		require.NoError(t, err)
		assert.True(t, e.HasField(p.shift.ID), "entity %s lost the association", e.Name)
		assert.Equal(t, int64(1), e.Version)
	}

	// повтор сходится
	require.NoError(t, s.DeleteField(ctx, p.shift.ID))
	_, err = s.GetField(ctx, p.shift.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	e, err := s.GetEntity(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{p.output.ID}, e.AssociatedFieldIDs)

	fs.failures = 1
	require.ErrorIs(t, s.DeleteEntity(ctx, p.press1.ID), ErrStorage)
	_, err = s.GetEntity(ctx, p.press1.ID)
	require.NoError(t, err)
	_, err = s.GetRecord(ctx, r.ID)
	require.NoError(t, err)

	require.NoError(t, s.DeleteEntity(ctx, p.press1.ID))
	_, err = s.GetRecord(ctx, r.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordValidation(t *testing.T) {
	s := newService(t, nil)
	ctx := context.Background()
	p := seedPlant(t, s)

	_, err := s.CreateRecord(ctx, RecordInput{EntityID: "ghost", Values: map[string]any{}})
	assert.Equal(t, []string{model.ErrUnknownEntity}, validationCodes(t, err))

	_, err = s.CreateRecord(ctx, RecordInput{EntityID: p.press1.ID, Values: map[string]any{p.output.ID: "lots", p.shift.ID: "Evening"}})
	assert.ElementsMatch(t, []string{model.ErrTypeMismatch, model.ErrOptionInvalid}, validationCodes(t, err))

	_, err = s.CreateRecord(ctx, RecordInput{EntityID: p.press1.ID, Values: map[string]any{}})
	assert.Equal(t, []string{model.ErrRequired}, validationCodes(t, err))

	_, total, err := s.ListRecords(ctx, RecordFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestRecordLifecycle(t *testing.T) {
	s := newService(t, nil)
	ctx := context.Background()
	p := seedPlant(t, s)

	r, err := s.CreateRecord(ctx, RecordInput{EntityID: p.press1.ID, Values: map[string]any{"output": "12.5", "SHIFT": "Night"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{p.output.ID: 12.5, p.shift.ID: "Night"}, r.Data)
	assert.True(t, r.Timestamp.Equal(clock))

	ts := clock.Add(-48 * time.Hour)
	r2, err := s.UpdateRecord(ctx, r.ID, RecordInput{Values: map[string]any{p.output.ID: 13}, Timestamp: ts, Version: 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{p.output.ID: 13.0}, r2.Data)
	assert.True(t, r2.Timestamp.Equal(ts))
	assert.Equal(t, p.press1.ID, r2.EntityID)

	_, err = s.UpdateRecord(ctx, r.ID, RecordInput{Values: map[string]any{p.output.ID: 14}, Version: 1})
	assert.ErrorIs(t, err, ErrVersionConflict)

	require.NoError(t, s.DeleteRecord(ctx, r.ID))
	assert.ErrorIs(t, s.DeleteRecord(ctx, r.ID), ErrNotFound)
}

func TestListRecordsFilterSortPage(t *testing.T) {
	s := newService(t, nil)
	ctx := context.Background()
	p := seedPlant(t, s)

	days := []int{3, 1, 2}
	for _, d := range days {
		_, err := s.CreateRecord(ctx, RecordInput{
			EntityID:  p.press1.ID,
			Values:    map[string]any{p.output.ID: d},
			Timestamp: time.Date(2024, 3, d, 23, 59, 59, int(999*time.Millisecond), time.UTC),
		})
		require.NoError(t, err)
	}
	_, err := s.CreateRecord(ctx, RecordInput{EntityID: p.warehouse.ID, Values: map[string]any{}})
	require.NoError(t, err)

	recs, total, err := s.ListRecords(ctx, RecordFilter{EntityID: p.press1.ID, Sort: "timestamp"})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []any{1.0, 2.0, 3.0}, []any{recs[0].Data[p.output.ID], recs[1].Data[p.output.ID], recs[2].Data[p.output.ID]})

	recs, total, err = s.ListRecords(ctx, RecordFilter{
		EntityID: p.press1.ID,
		From:     time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 2.0, recs[0].Data[p.output.ID])

	recs, total, err = s.ListRecords(ctx, RecordFilter{EntityID: p.press1.ID, Sort: "-timestamp", Offset: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, recs, 1)
	assert.Equal(t, 2.0, recs[0].Data[p.output.ID])
}

func TestGetManyPreservesOrderAndSkipsMissing(t *testing.T) {
	s := newService(t, nil)
	ctx := context.Background()
	p := seedPlant(t, s)

	got, err := s.GetFields(ctx, []string{p.note.ID, "ghost", p.output.ID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Note", got[0].Name)
	assert.Equal(t, "Output", got[1].Name)

	ents, err := s.GetEntities(ctx, []string{p.warehouse.ID, p.press1.ID})
	require.NoError(t, err)
	assert.Equal(t, "Warehouse", ents[0].Name)

	e, ok, err := s.FindEntityByName(ctx, "PRESS1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, p.press1.ID, e.ID)
}

// Press1 с двумя записями Output 100 и 150 → сумма 250, count 2
func TestPressReportEndToEnd(t *testing.T) {
	s := newService(t, nil)
	ctx := context.Background()
	p := seedPlant(t, s)

	for _, v := range []any{100, "150"} {
		_, err := s.CreateRecord(ctx, RecordInput{EntityID: p.press1.ID, Values: map[string]any{"Output": v}})
		require.NoError(t, err)
	}

	rep, err := s.RunReport(ctx, report.Query{ValueFieldID: p.output.ID, Aggregation: report.Sum})
	require.NoError(t, err)
	require.Len(t, rep.Buckets, 1)
	assert.Equal(t, report.Bucket{ID: p.press1.ID, Name: "Press1", Value: 250, Count: 2}, rep.Buckets[0])

	fields, err := s.ReportFields(ctx)
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, p.output.ID, fields[0].ID)
}

func TestReportOverLegacyFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "legacy.json")
	legacy := `{
  "config": {"title": "Old"},
  "entities": [{"id": "e1", "name": "Press1", "associatedFieldIds": ["f1"]}],
  "availableFields": [{"id": "f1", "name": "Output", "type": "number", "showInReport": true}],
  "productionLogs": [
    {"id": "r1", "entityId": "e1", "timestamp": "2024-03-10T08:30:00Z", "data": {"Output": 5}},
    {"entityId": "e1", "timestamp": 1710059400000, "data": {"f1": 7}}
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))
	st, err := store.OpenFile(path)
	require.NoError(t, err)
	s := newService(t, st)

	rep, err := s.RunReport(ctx, report.Query{ValueFieldID: "f1", Aggregation: report.Sum})
	require.NoError(t, err)
	require.Len(t, rep.Buckets, 1)
	assert.Equal(t, report.Bucket{ID: "e1", Name: "Press1", Value: 12, Count: 2}, rep.Buckets[0])

	recs, total, err := s.ListRecords(ctx, RecordFilter{EntityID: "e1"})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	ids := []string{recs[0].ID, recs[1].ID}
	assert.ElementsMatch(t, []string{"r1", "records-2"}, ids)

	rec, err := s.GetRecord(ctx, "records-2")
	require.NoError(t, err)
	assert.Equal(t, "records-2", rec.ID)
	require.NoError(t, s.DeleteRecord(ctx, "records-2"))
}

func TestTable(t *testing.T) {
	s := newService(t, nil)
	ctx := context.Background()
	p := seedPlant(t, s)
	_, err := s.CreateRecord(ctx, RecordInput{EntityID: p.press1.ID, Values: map[string]any{"Output": 1}})
	require.NoError(t, err)

	tbl, err := s.EntityTable(ctx, p.press1.ID, RecordFilter{})
	require.NoError(t, err)
	require.Len(t, tbl.Columns, 1)
	assert.Equal(t, "Output", tbl.Columns[0].Name)
	assert.Equal(t, 1, tbl.Total)

	fm, err := s.Form(ctx, p.press1.ID)
	require.NoError(t, err)
	assert.Len(t, fm.Inputs, 2)

	_, err = s.Form(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshotImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newService(t, nil)
	p := seedPlant(t, src)
	_, err := src.UpdateConfig(ctx, model.Config{Title: "Plant", Description: "Daily"})
	require.NoError(t, err)
	_, err = src.CreateRecord(ctx, RecordInput{EntityID: p.press1.ID, Values: map[string]any{"Output": 7, "Shift": "Day"}})
	require.NoError(t, err)

	snap, err := src.Snapshot(ctx)
	require.NoError(t, err)

	dst := newService(t, nil)
	_, err = dst.CreateField(ctx, FieldInput{Name: "Stale", Type: "text"})
	require.NoError(t, err)
	require.NoError(t, dst.Import(ctx, snap))

	again, err := dst.Snapshot(ctx)
	require.NoError(t, err)
	a, _ := json.Marshal(snap)
	b, _ := json.Marshal(again)
	assert.JSONEq(t, string(a), string(b))
}

func TestConfig(t *testing.T) {
	s := newService(t, nil)
	ctx := context.Background()

	c, err := s.Config(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Data Logger", c.Title)

	_, err = s.UpdateConfig(ctx, model.Config{Title: " "})
	assert.Contains(t, validationCodes(t, err), model.ErrEmptyName)

	_, err = s.UpdateConfig(ctx, model.Config{Title: " Plant ", EntityTypeName: "Machine"})
	require.NoError(t, err)
	c, err = s.Config(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.Config{Title: "Plant", EntityTypeName: "Machine"}, c)
}

type brokenStore struct {
	store.Store
}

func (brokenStore) Put(context.Context, store.Collection, string, json.RawMessage) error {
	return errors.New("disk full")
}

func TestStorageFailureIsWrapped(t *testing.T) {
	s := newService(t, brokenStore{Store: store.NewMemory()})
	_, err := s.CreateField(context.Background(), FieldInput{Name: "Output", Type: "number"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorage)
	assert.Contains(t, err.Error(), "disk full")
}
