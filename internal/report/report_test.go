package report

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"datalogger/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var day = time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

type fixture struct {
	entities []model.Entity
	fields   []model.Field
	records  []model.Record
}

func plant() fixture {
	fields := []model.Field{
		{ID: "out", Name: "Output", Kind: model.Number()},
		{ID: "shift", Name: "Shift", Kind: model.Select("Day", "Night")},
		{ID: "note", Name: "Note", Kind: model.Text()},
	}
	entities := []model.Entity{
		{ID: "p1", Name: "Press1", AssociatedFieldIDs: []string{"out", "shift"}},
		{ID: "p2", Name: "Press2", AssociatedFieldIDs: []string{"out", "shift"}},
		{ID: "w1", Name: "Warehouse", AssociatedFieldIDs: []string{"note"}},
	}
	records := []model.Record{
		{ID: "r1", EntityID: "p1", Timestamp: at(8, 0), Data: map[string]any{"out": 100.0, "shift": "Day"}},
		{ID: "r2", EntityID: "p1", Timestamp: at(20, 0), Data: map[string]any{"out": 150.0, "shift": "Night"}},
		{ID: "r3", EntityID: "p2", Timestamp: at(9, 0), Data: map[string]any{"out": "40", "shift": "Day"}},
		{ID: "r4", EntityID: "w1", Timestamp: at(9, 0), Data: map[string]any{"note": "x"}},
	}
	return fixture{entities, fields, records}
}

func TestSumByEntity(t *testing.T) {
	f := plant()
	rep, err := Engine{}.Run(Query{ValueFieldID: "out", Aggregation: Sum}, f.entities, f.fields, f.records)
	require.NoError(t, err)

	want := &Report{
		FieldName:   "Output",
		Aggregation: Sum,
		Buckets: []Bucket{
			{ID: "p1", Name: "Press1", Value: 250, Count: 2},
			{ID: "p2", Name: "Press2", Value: 40, Count: 1},
		},
		Totals: Totals{Sum: 290, Count: 3, Average: 290.0 / 3},
	}
	if diff := cmp.Diff(want, rep); diff != "" {
		t.Fatalf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestInvalidValuesExcludedFromSumAndCount(t *testing.T) {
	fields := []model.Field{{ID: "out", Name: "Output", Kind: model.Number()}}
	entities := []model.Entity{{ID: "p1", Name: "Press1", AssociatedFieldIDs: []string{"out"}}}
	records := []model.Record{
		{ID: "a", EntityID: "p1", Timestamp: at(1, 0), Data: map[string]any{"out": 10.0}},
		{ID: "b", EntityID: "p1", Timestamp: at(2, 0), Data: map[string]any{"out": 20.0}},
		{ID: "c", EntityID: "p1", Timestamp: at(3, 0), Data: map[string]any{"out": "bad"}},
		{ID: "d", EntityID: "p1", Timestamp: at(4, 0), Data: map[string]any{}},
	}

	sum, err := Engine{}.Run(Query{ValueFieldID: "out", Aggregation: Sum}, entities, fields, records)
	require.NoError(t, err)
	assert.Equal(t, Bucket{ID: "p1", Name: "Press1", Value: 30, Count: 2}, sum.Buckets[0])

	avg, err := Engine{}.Run(Query{ValueFieldID: "out", Aggregation: Average}, entities, fields, records)
	require.NoError(t, err)
	assert.Equal(t, Bucket{ID: "p1", Name: "Press1", Value: 15, Count: 2}, avg.Buckets[0])
}

func TestZeroIsAValidValue(t *testing.T) {
	fields := []model.Field{{ID: "out", Name: "Output", Kind: model.Number()}}
	entities := []model.Entity{{ID: "p1", Name: "Press1", AssociatedFieldIDs: []string{"out"}}}
	records := []model.Record{
		{ID: "a", EntityID: "p1", Timestamp: at(1, 0), Data: map[string]any{"out": 0.0}},
		{ID: "b", EntityID: "p1", Timestamp: at(2, 0), Data: map[string]any{"out": 10.0}},
	}
	avg, err := Engine{}.Run(Query{ValueFieldID: "out", Aggregation: Average}, entities, fields, records)
	require.NoError(t, err)
	assert.Equal(t, 5.0, avg.Buckets[0].Value)
	assert.Equal(t, 2, avg.Buckets[0].Count)
}

func TestEmptyBucket(t *testing.T) {
	f := plant()
	rep, err := Engine{}.Run(Query{
		ValueFieldID: "out",
		Aggregation:  Average,
		Filters:      Filters{EntityIDs: []string{"p2"}, From: day.AddDate(0, 0, 1)},
	}, f.entities, f.fields, f.records)
	require.NoError(t, err)
	require.Len(t, rep.Buckets, 1)
	assert.Equal(t, Bucket{ID: "p2", Name: "Press2", Value: 0, Count: 0}, rep.Buckets[0])
	assert.Equal(t, Totals{}, rep.Totals)
}

func TestByCategory(t *testing.T) {
	f := plant()
	rep, err := Engine{}.Run(Query{ValueFieldID: "out", Aggregation: Sum, CategoryFieldID: "shift"},
		f.entities, f.fields, f.records)
	require.NoError(t, err)

	assert.Equal(t, "Shift", rep.CategoryFieldName)
	want := []Bucket{
		{ID: "Day", Name: "Day", Value: 140, Count: 2},
		{ID: "Night", Name: "Night", Value: 150, Count: 1},
	}
	if diff := cmp.Diff(want, rep.Buckets); diff != "" {
		t.Fatalf("buckets mismatch (-want +got):\n%s", diff)
	}
}

func TestByCategoryRespectsEntityFilter(t *testing.T) {
	f := plant()
	rep, err := Engine{}.Run(Query{
		ValueFieldID: "out", Aggregation: Sum, CategoryFieldID: "shift",
		Filters: Filters{EntityIDs: []string{"p2"}},
	}, f.entities, f.fields, f.records)
	require.NoError(t, err)
	assert.Equal(t, []Bucket{{ID: "Day", Name: "Day", Value: 40, Count: 1}}, rep.Buckets)
}

func TestDateBoundaries(t *testing.T) {
	fields := []model.Field{{ID: "out", Name: "Output", Kind: model.Number()}}
	entities := []model.Entity{{ID: "p1", Name: "Press1", AssociatedFieldIDs: []string{"out"}}}
	lastMs := time.Date(2024, 3, 10, 23, 59, 59, int(999*time.Millisecond), time.UTC)
	records := []model.Record{
		{ID: "in", EntityID: "p1", Timestamp: lastMs, Data: map[string]any{"out": 1.0}},
		{ID: "out", EntityID: "p1", Timestamp: lastMs.Add(time.Millisecond), Data: map[string]any{"out": 100.0}},
		{ID: "start", EntityID: "p1", Timestamp: day, Data: map[string]any{"out": 10.0}},
		{ID: "before", EntityID: "p1", Timestamp: day.Add(-time.Millisecond), Data: map[string]any{"out": 1000.0}},
	}
	rep, err := Engine{}.Run(Query{
		ValueFieldID: "out", Aggregation: Sum,
		Filters: Filters{From: day, To: day},
	}, entities, fields, records)
	require.NoError(t, err)
	assert.Equal(t, 11.0, rep.Buckets[0].Value)
	assert.Equal(t, 2, rep.Buckets[0].Count)
}

func TestDateBoundariesUseLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	fields := []model.Field{{ID: "out", Name: "Output", Kind: model.Number()}}
	entities := []model.Entity{{ID: "p1", Name: "Press1", AssociatedFieldIDs: []string{"out"}}}
	// 22:30 UTC 10-го = 01:30 11-го по UTC+3
	records := []model.Record{
		{ID: "a", EntityID: "p1", Timestamp: at(22, 30), Data: map[string]any{"out": 5.0}},
	}
	q := Query{ValueFieldID: "out", Filters: Filters{From: day, To: day}}

	rep, err := Engine{Location: loc}.Run(q, entities, fields, records)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Buckets[0].Count)

	rep, err = Engine{}.Run(q, entities, fields, records)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Buckets[0].Count)
}

func TestIdempotent(t *testing.T) {
	f := plant()
	q := Query{ValueFieldID: "out", Aggregation: Average, CategoryFieldID: "shift"}
	a, err := Engine{}.Run(q, f.entities, f.fields, f.records)
	require.NoError(t, err)
	b, err := Engine{}.Run(q, f.entities, f.fields, f.records)
	require.NoError(t, err)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("second run differs:\n%s", diff)
	}
}

func TestCategoryReportWithoutEntities(t *testing.T) {
	f := plant()
	q := Query{ValueFieldID: "out", Aggregation: Sum, CategoryFieldID: "shift"}
	_, err := Engine{}.Run(q, nil, f.fields, f.records)
	var rerr *Error
	require.True(t, errors.As(err, &rerr), "got %v", err)
	assert.Equal(t, CodeNoEntities, rerr.Code)

	_, err = Engine{}.Run(Query{ValueFieldID: "out", Aggregation: Sum}, nil, f.fields, f.records)
	require.True(t, errors.As(err, &rerr), "got %v", err)
	assert.Equal(t, CodeNoEntities, rerr.Code)
}

func TestErrors(t *testing.T) {
	f := plant()
	cases := []struct {
		name string
		q    Query
		code string
	}{
		{"unknown value field", Query{ValueFieldID: "nope"}, CodeInvalidValueField},
		{"non numeric value field", Query{ValueFieldID: "shift"}, CodeInvalidValueField},
		{"unknown category", Query{ValueFieldID: "out", CategoryFieldID: "nope"}, CodeInvalidCategoryField},
		{"no entity has field", Query{ValueFieldID: "out", Filters: Filters{EntityIDs: []string{"w1"}}}, CodeNoEntities},
		{"unknown entity in category mode", Query{ValueFieldID: "out", CategoryFieldID: "shift", Filters: Filters{EntityIDs: []string{"zzz"}}}, CodeNoEntities},
		{"bad aggregation", Query{ValueFieldID: "out", Aggregation: "median"}, CodeInvalidAggregation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Engine{}.Run(tc.q, f.entities, f.fields, f.records)
			var rerr *Error
			require.True(t, errors.As(err, &rerr), "got %v", err)
			assert.Equal(t, tc.code, rerr.Code)
			assert.NotEmpty(t, rerr.Message)
		})
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-03-10")
	require.NoError(t, err)
	assert.True(t, d.Equal(day))

	d, err = ParseDate("")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	_, err = ParseDate("10/03/2024")
	assert.Error(t, err)
}

func TestQueryJSONDates(t *testing.T) {
	var q Query
	require.NoError(t, json.Unmarshal([]byte(`{"valueFieldId":"out","aggregation":"average",
		"filters":{"entityIds":["p1"],"from":"2024-03-10","to":"2024-03-11"}}`), &q))
	assert.True(t, q.Filters.From.Equal(day))
	assert.True(t, q.Filters.To.Equal(day.AddDate(0, 0, 1)))
	assert.Equal(t, []string{"p1"}, q.Filters.EntityIDs)

	b, err := json.Marshal(q.Filters)
	require.NoError(t, err)
	assert.JSONEq(t, `{"entityIds":["p1"],"from":"2024-03-10","to":"2024-03-11"}`, string(b))

	assert.Error(t, json.Unmarshal([]byte(`{"filters":{"from":"yesterday"}}`), &q))
}
