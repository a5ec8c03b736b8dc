package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryContract(t *testing.T) {
	runContract(t, func(t *testing.T) Store { return NewMemory() })
}

func TestFileContract(t *testing.T) {
	runContract(t, func(t *testing.T) Store {
		s, err := OpenFile(filepath.Join(t.TempDir(), "state.json"))
		require.NoError(t, err)
		return s
	})
}

func TestSQLiteContract(t *testing.T) {
	runContract(t, func(t *testing.T) Store {
		s, err := OpenSQL(context.Background(), SQLiteDialect{}, filepath.Join(t.TempDir(), "dl.db"), nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "state.json")

	s, err := OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, Data, ConfigDocID, json.RawMessage(`{"title":"Plant"}`)))
	require.NoError(t, s.Put(ctx, Entities, "e1", json.RawMessage(`{"id":"e1","name":"Press1"}`)))
	require.NoError(t, s.Put(ctx, Records, "r1", json.RawMessage(`{"id":"r1","entityId":"e1"}`)))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var layout map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &layout))
	assert.JSONEq(t, `{"title":"Plant"}`, string(layout["config"]))
	assert.Contains(t, layout, "entities")
	assert.Contains(t, layout, "fields")
	assert.Contains(t, layout, "records")

	again, err := OpenFile(path)
	require.NoError(t, err)
	list, err := again.List(ctx, Entities)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "e1", list[0].ID)
}

func TestFileStoreReadsLegacyKeys(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "legacy.json")
	legacy := `{
  "config": {"title": "Old"},
  "entities": [{"id": "e1", "name": "Press1", "associatedFieldIds": ["f1"]}],
  "availableFields": [{"id": "f1", "name": "Output", "type": "number"}],
  "productionLogs": [{"id": "r1", "entityId": "e1", "timestamp": "2024-01-01T10:00:00Z", "data": {"f1": 5}}]
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	s, err := OpenFile(path)
	require.NoError(t, err)

	fields, err := s.List(ctx, Fields)
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "f1", fields[0].ID)

	records, err := s.List(ctx, Records)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "r1", records[0].ID)
}

func TestFileStoreNormalizesLegacyRecords(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "legacy.json")
	legacy := `{
  "availableFields": [{"id": "f1", "name": "Output", "type": "number"}],
  "productionLogs": [
    {"id": "r1", "entityId": "e1", "timestamp": 1710059400000, "data": {"output": 5}},
    {"entityId": "e1", "timestamp": "2024-03-10T08:30:00Z", "data": {"f1": 7, "Output": 99, "Note": "x"}}
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	s, err := OpenFile(path)
	require.NoError(t, err)
	records, err := s.List(ctx, Records)
	require.NoError(t, err)
	require.Len(t, records, 2)

	type rec struct {
		ID        string         `json:"id"`
		Timestamp string         `json:"timestamp"`
		Data      map[string]any `json:"data"`
	}
	var first, second rec
	require.NoError(t, json.Unmarshal(records[0].Body, &first))
	require.NoError(t, json.Unmarshal(records[1].Body, &second))

	assert.Equal(t, map[string]any{"f1": 5.0}, first.Data)
	assert.Equal(t, "2024-03-10T08:30:00Z", first.Timestamp)

	assert.Equal(t, "records-2", records[1].ID)
	assert.Equal(t, "records-2", second.ID)
	assert.Equal(t, map[string]any{"f1": 7.0, "Note": "x"}, second.Data)

	got, err := s.Get(ctx, Records, "records-2")
	require.NoError(t, err)
	assert.JSONEq(t, string(records[1].Body), string(got))
}

func TestFileStoreRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := OpenFile(path)
	assert.Error(t, err)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "firestore"}, nil)
	assert.Error(t, err)

	s, err := Open(context.Background(), Options{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)
}

func TestDialects(t *testing.T) {
	d := SQLiteDialect{}
	assert.False(t, d.DuplicateObject(assert.AnError))
	assert.True(t, d.DuplicateObject(errors.New("index documents_collection_seq_idx already exists")))
	assert.Equal(t, "?3", d.Placeholder(3))
	assert.Equal(t, "$3", PostgresDialect{}.Placeholder(3))

	assert.Equal(t, "nextval('documents_seq')", PostgresDialect{}.NextSeq("$1"))
	assert.Contains(t, d.NextSeq("?1"), "where collection = ?1")
	assert.Empty(t, d.SeqDDL())

	ddl := schemaDDL(PostgresDialect{})
	require.Len(t, ddl, 3)
	assert.Contains(t, ddl[0], "create sequence if not exists documents_seq")
	assert.Contains(t, ddl[2], "create unique index if not exists documents_collection_seq_uidx")
}

func TestSQLiteSeqUniqueAfterReplace(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQL(ctx, SQLiteDialect{}, filepath.Join(t.TempDir(), "dl.db"), nil)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Replace(ctx, map[Collection][]Document{
		Records: {{ID: "a", Body: json.RawMessage(`{"id":"a"}`)}, {ID: "b", Body: json.RawMessage(`{"id":"b"}`)}},
	}))
	require.NoError(t, s.Put(ctx, Records, "c", json.RawMessage(`{"id":"c"}`)))
	require.NoError(t, s.Put(ctx, Records, "a", json.RawMessage(`{"id":"a","v":2}`)))

	rows, err := s.DB.QueryContext(ctx, "select id, seq from documents where collection = 'records' order by seq")
	require.NoError(t, err)
	defer rows.Close()
	var ids []string
	var seqs []int64
	for rows.Next() {
		var id string
		var seq int64
		require.NoError(t, rows.Scan(&id, &seq))
		ids = append(ids, id)
		seqs = append(seqs, seq)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"a", "b", "c"}, ids)
	assert.Equal(t, []int64{1, 2, 3}, seqs)
}
