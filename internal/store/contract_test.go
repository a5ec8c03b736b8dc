package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// runContract: общий набор проверок для любого бэкенда
func runContract(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("put get list keeps insertion order", func(t *testing.T) {
		s := open(t)
		repo := NewRepo[doc](s, Entities)
		require.NoError(t, repo.Put(ctx, "b", doc{ID: "b", Name: "Bravo"}))
		require.NoError(t, repo.Put(ctx, "a", doc{ID: "a", Name: "Alpha"}))
		require.NoError(t, repo.Put(ctx, "c", doc{ID: "c", Name: "Charlie"}))

		// обновление не сдвигает позицию
		require.NoError(t, repo.Put(ctx, "b", doc{ID: "b", Name: "Bravo2"}))

		got, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []string{"b", "a", "c"}, []string{got[0].ID, got[1].ID, got[2].ID})
		assert.Equal(t, "Bravo2", got[0].Name)

		one, err := repo.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "Alpha", one.Name)
	})

	t.Run("get missing returns ErrNotFound", func(t *testing.T) {
		s := open(t)
		_, err := s.Get(ctx, Fields, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, Fields, "nope"), ErrNotFound)
	})

	t.Run("get many follows requested order and skips missing", func(t *testing.T) {
		s := open(t)
		repo := NewRepo[doc](s, Fields)
		for _, id := range []string{"x", "y", "z"} {
			require.NoError(t, repo.Put(ctx, id, doc{ID: id}))
		}
		got, err := repo.GetMany(ctx, []string{"z", "missing", "x"})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "z", got[0].ID)
		assert.Equal(t, "x", got[1].ID)
	})

	t.Run("delete removes only that document", func(t *testing.T) {
		s := open(t)
		repo := NewRepo[doc](s, Records)
		require.NoError(t, repo.Put(ctx, "1", doc{ID: "1"}))
		require.NoError(t, repo.Put(ctx, "2", doc{ID: "2"}))
		require.NoError(t, repo.Delete(ctx, "1"))

		got, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "2", got[0].ID)
	})

	t.Run("collections are isolated", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Put(ctx, Entities, "same", json.RawMessage(`{"id":"same","name":"e"}`)))
		require.NoError(t, s.Put(ctx, Fields, "same", json.RawMessage(`{"id":"same","name":"f"}`)))
		require.NoError(t, s.Delete(ctx, Entities, "same"))
		_, err := s.Get(ctx, Fields, "same")
		assert.NoError(t, err)
	})

	t.Run("replace overwrites everything", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Put(ctx, Entities, "old", json.RawMessage(`{"id":"old"}`)))
		err := s.Replace(ctx, map[Collection][]Document{
			Entities: {{ID: "n1", Body: json.RawMessage(`{"id":"n1"}`)}, {ID: "n2", Body: json.RawMessage(`{"id":"n2"}`)}},
			Data:     {{ID: ConfigDocID, Body: json.RawMessage(`{"title":"T"}`)}},
		})
		require.NoError(t, err)

		list, err := s.List(ctx, Entities)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "n1", list[0].ID)
		assert.Equal(t, "n2", list[1].ID)

		_, err = s.Get(ctx, Entities, "old")
		assert.ErrorIs(t, err, ErrNotFound)

		cfg, err := s.Get(ctx, Data, ConfigDocID)
		require.NoError(t, err)
		assert.JSONEq(t, `{"title":"T"}`, string(cfg))

		// после Replace новые документы встают в конец
		require.NoError(t, s.Put(ctx, Entities, "n3", json.RawMessage(`{"id":"n3"}`)))
		list, err = s.List(ctx, Entities)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "n3", list[2].ID)
	})

	t.Run("batch applies operations in order", func(t *testing.T) {
		s := open(t)
		repo := NewRepo[doc](s, Entities)
		require.NoError(t, repo.Put(ctx, "a", doc{ID: "a", Name: "A"}))
		require.NoError(t, repo.Put(ctx, "b", doc{ID: "b", Name: "B"}))
		require.NoError(t, s.Put(ctx, Records, "r1", json.RawMessage(`{"id":"r1"}`)))

		upd, err := repo.PutOp("a", doc{ID: "a", Name: "A2"})
		require.NoError(t, err)
		require.NoError(t, s.Batch(ctx, []Op{
			upd,
			PutOp(Entities, "c", json.RawMessage(`{"id":"c","name":"C"}`)),
			repo.DeleteOp("b"),
			DeleteOp(Records, "r1"),
			DeleteOp(Records, "already-gone"),
		}))

		got, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, doc{ID: "a", Name: "A2"}, got[0])
		assert.Equal(t, "c", got[1].ID)

		recs, err := s.List(ctx, Records)
		require.NoError(t, err)
		assert.Empty(t, recs)

		require.NoError(t, s.Batch(ctx, nil))
	})
}
