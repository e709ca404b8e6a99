// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package store_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/BoostyLabs/ordindex/internal/store"
)

const testTable store.Table = 0x01

func openDB(t *testing.T) *store.DB {
	t.Helper()

	db, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })

	return db
}

func TestStore(t *testing.T) {
	t.Run("set get delete", func(t *testing.T) {
		db := openDB(t)

		wtx := db.Begin()
		defer wtx.Discard()

		require.NoError(t, wtx.Set(testTable, []byte("key"), []byte("value")))

		value, err := wtx.Get(testTable, []byte("key"))
		require.NoError(t, err)
		require.EqualValues(t, "value", value)

		missing, err := wtx.Get(testTable, []byte("other"))
		require.NoError(t, err)
		require.Nil(t, missing)

		require.NoError(t, wtx.Delete(testTable, []byte("key")))
		value, err = wtx.Get(testTable, []byte("key"))
		require.NoError(t, err)
		require.Nil(t, value)
	})

	t.Run("writes visible only after commit", func(t *testing.T) {
		db := openDB(t)

		wtx := db.Begin()
		require.NoError(t, wtx.Set(testTable, []byte("key"), []byte("value")))

		err := db.View(func(rtx *store.ReadTxn) error {
			value, err := rtx.Get(testTable, []byte("key"))
			require.NoError(t, err)
			require.Nil(t, value)

			return nil
		})
		require.NoError(t, err)

		require.NoError(t, wtx.Commit())
		wtx.Discard()

		err = db.View(func(rtx *store.ReadTxn) error {
			value, err := rtx.Get(testTable, []byte("key"))
			require.NoError(t, err)
			require.EqualValues(t, "value", value)

			return nil
		})
		require.NoError(t, err)
	})

	t.Run("multimap", func(t *testing.T) {
		db := openDB(t)

		wtx := db.Begin()
		defer wtx.Discard()

		key := []byte("multi")
		require.NoError(t, wtx.MPut(testTable, key, []byte("b")))
		require.NoError(t, wtx.MPut(testTable, key, []byte("a")))
		require.NoError(t, wtx.MPut(testTable, key, []byte("c")))

		values, err := wtx.List(testTable, key)
		require.NoError(t, err)
		require.EqualValues(t, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, values)

		require.NoError(t, wtx.MRemove(testTable, key, []byte("b")))
		values, err = wtx.List(testTable, key)
		require.NoError(t, err)
		require.Len(t, values, 2)

		require.NoError(t, wtx.MRemoveAll(testTable, key))
		values, err = wtx.List(testTable, key)
		require.NoError(t, err)
		require.Empty(t, values)
	})

	t.Run("iteration is ordered", func(t *testing.T) {
		db := openDB(t)

		wtx := db.Begin()
		defer wtx.Discard()

		require.NoError(t, wtx.Set(testTable, []byte{0x02}, []byte("two")))
		require.NoError(t, wtx.Set(testTable, []byte{0x01}, []byte("one")))
		require.NoError(t, wtx.Set(testTable, []byte{0x03}, []byte("three")))

		var keys [][]byte
		err := wtx.Iterate(testTable, nil, func(key, _ []byte) (bool, error) {
			keys = append(keys, key)
			return true, nil
		})
		require.NoError(t, err)
		require.EqualValues(t, [][]byte{{0x01}, {0x02}, {0x03}}, keys)
	})

	t.Run("undo rollback restores prior state", func(t *testing.T) {
		db := openDB(t)

		wtx := db.Begin()
		defer wtx.Discard()

		require.NoError(t, wtx.Set(testTable, []byte("kept"), []byte("old")))

		wtx.StartUndo()
		require.NoError(t, wtx.Set(testTable, []byte("kept"), []byte("new")))
		require.NoError(t, wtx.Set(testTable, []byte("created"), []byte("x")))
		require.NoError(t, wtx.Delete(testTable, []byte("kept")))
		require.NoError(t, wtx.FinishUndo(7))

		ok, err := wtx.HasUndo(7)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, wtx.RollbackBlock(7))

		value, err := wtx.Get(testTable, []byte("kept"))
		require.NoError(t, err)
		require.EqualValues(t, "old", value)

		value, err = wtx.Get(testTable, []byte("created"))
		require.NoError(t, err)
		require.Nil(t, value)

		ok, err = wtx.HasUndo(7)
		require.NoError(t, err)
		require.False(t, ok)

		require.Error(t, wtx.RollbackBlock(7))
	})

	t.Run("prune undo makes a block final", func(t *testing.T) {
		db := openDB(t)

		wtx := db.Begin()
		defer wtx.Discard()

		wtx.StartUndo()
		require.NoError(t, wtx.Set(testTable, []byte("k"), []byte("v")))
		require.NoError(t, wtx.FinishUndo(1))

		require.NoError(t, wtx.PruneUndo(1))

		ok, err := wtx.HasUndo(1)
		require.NoError(t, err)
		require.False(t, ok)
	})
}
