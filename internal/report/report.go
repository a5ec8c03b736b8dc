// Package report считает агрегаты (сумма/среднее) числового поля по
// сущностям или по значениям поля-категории.
package report

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"datalogger/internal/form"
	"datalogger/internal/model"
)

type Aggregation string

const (
	Sum     Aggregation = "sum"
	Average Aggregation = "average"
)

func ParseAggregation(s string) (Aggregation, error) {
	switch Aggregation(strings.ToLower(strings.TrimSpace(s))) {
	case Sum, "":
		return Sum, nil
	case Average, "avg", "mean":
		return Average, nil
	default:
		return "", fmt.Errorf("unknown aggregation %q (allowed: sum|average)", s)
	}
}

// Filters: пустой EntityIDs означает все сущности, нулевые From/To означают отсутствие границы.
// У From/To учитывается только дата (год, месяц, день).
// В JSON даты: "YYYY-MM-DD" (или RFC3339), пустая строка: без границы.
type Filters struct {
	EntityIDs []string
	From      time.Time
	To        time.Time
}

type filtersWire struct {
	EntityIDs []string `json:"entityIds,omitempty"`
	From      string   `json:"from,omitempty"`
	To        string   `json:"to,omitempty"`
}

func (f Filters) MarshalJSON() ([]byte, error) {
	w := filtersWire{EntityIDs: f.EntityIDs}
	if !f.From.IsZero() {
		w.From = f.From.Format(dateLayout)
	}
	if !f.To.IsZero() {
		w.To = f.To.Format(dateLayout)
	}
	return json.Marshal(w)
}

func (f *Filters) UnmarshalJSON(b []byte) error {
	var w filtersWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	from, err := ParseDate(w.From)
	if err != nil {
		return err
	}
	to, err := ParseDate(w.To)
	if err != nil {
		return err
	}
	*f = Filters{EntityIDs: w.EntityIDs, From: from, To: to}
	return nil
}

type Query struct {
	ValueFieldID    string      `json:"valueFieldId"`
	Aggregation     Aggregation `json:"aggregation"`
	Filters         Filters     `json:"filters"`
	CategoryFieldID string      `json:"categoryFieldId,omitempty"`
}

type Bucket struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Count int     `json:"count"`
}

type Totals struct {
	Sum     float64 `json:"sum"`
	Count   int     `json:"count"`
	Average float64 `json:"average"`
}

type Report struct {
	FieldName         string      `json:"fieldName"`
	Aggregation       Aggregation `json:"aggregation"`
	CategoryFieldName string      `json:"categoryFieldName,omitempty"`
	Buckets           []Bucket    `json:"buckets"`
	Totals            Totals      `json:"totals"`
}

// Коды ошибок отчёта
const (
	CodeInvalidValueField    = "invalid_value_field"
	CodeInvalidCategoryField = "invalid_category_field"
	CodeNoEntities           = "no_entities"
	CodeInvalidAggregation   = "invalid_aggregation"
)

// Error: описательная ошибка отчёта (не паника)
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Message }

func rerr(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Engine: вход чистый: одинаковые данные дают одинаковый отчёт
type Engine struct {
	Location *time.Location // границы дат; nil = UTC
}

func (en Engine) loc() *time.Location {
	if en.Location == nil {
		return time.UTC
	}
	return en.Location
}

func (en Engine) Run(q Query, entities []model.Entity, fields []model.Field, records []model.Record) (*Report, error) {
	agg, err := ParseAggregation(string(q.Aggregation))
	if err != nil {
		return nil, rerr(CodeInvalidAggregation, "%v", err)
	}

	valueField, ok := findField(fields, q.ValueFieldID)
	if !ok {
		return nil, rerr(CodeInvalidValueField, "value field %q not found", q.ValueFieldID)
	}
	if !valueField.Kind.IsNumber() {
		return nil, rerr(CodeInvalidValueField, "field %q is not numeric", valueField.Name)
	}

	var categoryField model.Field
	byCategory := strings.TrimSpace(q.CategoryFieldID) != ""
	if byCategory {
		categoryField, ok = findField(fields, q.CategoryFieldID)
		if !ok {
			return nil, rerr(CodeInvalidCategoryField, "category field %q not found", q.CategoryFieldID)
		}
	}

	filtered := en.filter(q.Filters, records)

	var buckets []Bucket
	if byCategory {
		if len(matchEntities(entities, q.Filters.EntityIDs, "")) == 0 {
			return nil, rerr(CodeNoEntities, "no entities match the filters")
		}
		buckets = byCategoryBuckets(filtered, categoryField.ID, valueField.ID, agg)
	} else {
		matched := matchEntities(entities, q.Filters.EntityIDs, valueField.ID)
		if len(matched) == 0 {
			return nil, rerr(CodeNoEntities, "no entities with field %q match the filters", valueField.Name)
		}
		buckets = byEntityBuckets(matched, filtered, valueField.ID, agg)
	}

	rep := &Report{
		FieldName:   valueField.Name,
		Aggregation: agg,
		Buckets:     buckets,
	}
	if byCategory {
		rep.CategoryFieldName = categoryField.Name
	}
	rep.Totals = totals(buckets, agg)
	return rep, nil
}

// filter: сущность из набора И timestamp в [from 00:00:00.000, to 23:59:59.999]
func (en Engine) filter(f Filters, records []model.Record) []model.Record {
	var entSet map[string]struct{}
	if len(f.EntityIDs) > 0 {
		entSet = make(map[string]struct{}, len(f.EntityIDs))
		for _, id := range f.EntityIDs {
			entSet[id] = struct{}{}
		}
	}
	loc := en.loc()
	var start, end time.Time
	if !f.From.IsZero() {
		start = StartOfDay(f.From, loc)
	}
	if !f.To.IsZero() {
		end = EndOfDay(f.To, loc)
	}

	out := make([]model.Record, 0, len(records))
	for _, r := range records {
		if entSet != nil {
			if _, ok := entSet[r.EntityID]; !ok {
				continue
			}
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
	return out
}

// StartOfDay: 00:00:00.000 календарной даты d в loc
func StartOfDay(d time.Time, loc *time.Location) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, loc)
}

// EndOfDay: 23:59:59.999 календарной даты d в loc
func EndOfDay(d time.Time, loc *time.Location) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, 23, 59, 59, int(999*time.Millisecond), loc)
}

const dateLayout = "2006-01-02"

// ParseDate разбирает YYYY-MM-DD (или полный RFC3339); пустая строка: нулевое время.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("date %q must match YYYY-MM-DD", s)
}

func findField(fields []model.Field, id string) (model.Field, bool) {
	for _, f := range fields {
		if f.ID == id {
			return f, true
		}
	}
	return model.Field{}, false
}

// matchEntities: сущности из фильтра (все, если фильтр пуст); если withField не пуст: только с этим полем.
func matchEntities(entities []model.Entity, ids []string, withField string) []model.Entity {
	var set map[string]struct{}
	if len(ids) > 0 {
		set = make(map[string]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
	}
	var out []model.Entity
	for _, e := range entities {
		if set != nil {
			if _, ok := set[e.ID]; !ok {
				continue
			}
		}
		if withField != "" && !e.HasField(withField) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func byEntityBuckets(entities []model.Entity, records []model.Record, valueFieldID string, agg Aggregation) []Bucket {
	out := make([]Bucket, 0, len(entities))
	for _, e := range entities {
		var acc accumulator
		for _, r := range records {
			if r.EntityID != e.ID {
				continue
			}
			acc.add(r.Data, valueFieldID)
		}
		out = append(out, acc.bucket(e.ID, e.Name, agg))
	}
	return out
}

func byCategoryBuckets(records []model.Record, categoryFieldID, valueFieldID string, agg Aggregation) []Bucket {
	var order []string
	accs := map[string]*accumulator{}
	for _, r := range records {
		key, ok := categoryKey(r.Data[categoryFieldID])
		if !ok {
			continue
		}
		acc := accs[key]
		if acc == nil {
			acc = &accumulator{}
			accs[key] = acc
			order = append(order, key)
		}
		acc.add(r.Data, valueFieldID)
	}
	out := make([]Bucket, 0, len(order))
	for _, key := range order {
		out = append(out, accs[key].bucket(key, key, agg))
	}
	return out
}

// categoryKey: строковое представление значения категории; пустое не считается
func categoryKey(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return fmt.Sprint(t), true
	}
}

type accumulator struct {
	sum   float64
	count int
}

// add учитывает только определённые и числовые значения; нечисловые не входят ни в сумму, ни в count
func (a *accumulator) add(data map[string]any, fieldID string) {
	v, ok := data[fieldID]
	if !ok || v == nil {
		return
	}
	n, err := form.ToNumber(v)
	if err != nil {
		return
	}
	a.sum += n
	a.count++
}

func (a *accumulator) bucket(id, name string, agg Aggregation) Bucket {
	b := Bucket{ID: id, Name: name, Count: a.count}
	if a.count == 0 {
		return b
	}
	switch agg {
	case Average:
		b.Value = a.sum / float64(a.count)
	default:
		b.Value = a.sum
	}
	return b
}

func totals(buckets []Bucket, agg Aggregation) Totals {
	var t Totals
	for _, b := range buckets {
		t.Count += b.Count
		if agg == Average {
			t.Sum += b.Value * float64(b.Count)
		} else {
			t.Sum += b.Value
		}
	}
	if t.Count > 0 {
		t.Average = t.Sum / float64(t.Count)
	}
	return t
}
