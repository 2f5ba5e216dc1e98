package eventdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"earshot/internal/report"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInsertAndAll(t *testing.T) {
	db := openTestDB(t)

	rec := &report.Record{
		Pid:       123,
		Ppid:      1,
		Function:  "execve",
		Directory: "/src",
		Command:   []string{"cc", "-c", "a.c"},
	}
	id, err := db.Insert(rec)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, err := db.All()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec, got[0])
}

func TestByPid(t *testing.T) {
	db := openTestDB(t)

	for _, pid := range []int32{10, 20, 10} {
		_, err := db.Insert(&report.Record{Pid: pid, Function: "execvp", Directory: "/", Command: []string{"make"}})
		require.NoError(t, err)
	}

	got, err := db.ByPid(10)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestCount(t *testing.T) {
	db := openTestDB(t)

	n, err := db.Count()
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = db.Insert(&report.Record{Function: "execve", Directory: "/", Command: nil})
	require.NoError(t, err)

	n, err = db.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUniqueIDs(t *testing.T) {
	db := openTestDB(t)

	a, err := db.Insert(&report.Record{Function: "execve", Directory: "/"})
	require.NoError(t, err)
	b, err := db.Insert(&report.Record{Function: "execve", Directory: "/"})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
