package deadletter_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/limingnihao/solr-ingest/internal/deadletter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendEntries(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

	tests := map[string]struct {
		entries []deadletter.Entry
		reopen  bool
	}{
		"Empty log": {},
		"Single entry": {
			entries: []deadletter.Entry{
				{Record: `{"id":"1"}`, Error: "400 Bad Request", Position: 1, Run: "run-1", Time: now},
			},
		},
		"Entries are kept in order": {
			entries: []deadletter.Entry{
				{Record: `{"id":"1"}`, Error: "400 Bad Request", Position: 1, Run: "run-1", Time: now},
				{Record: `not json`, Error: "invalid record", Position: 3, Run: "run-1", Time: now.Add(time.Second)},
				{Record: `{"id":"4"}`, Error: "connection refused", Position: 4, Run: "run-1", Time: now.Add(2 * time.Second)},
			},
		},
		"Entries survive reopening": {
			entries: []deadletter.Entry{
				{Record: `{"id":"1"}`, Error: "500 Internal Server Error", Position: 7, Run: "run-2", Time: now},
			},
			reopen: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			dir := filepath.Join(t.TempDir(), "dead-letter")
			l, err := deadletter.Open(dir)
			require.NoError(t, err, "Setup: failed to open dead letter log")
			assert.Equal(t, dir, l.Dir())

			for _, e := range tc.entries {
				require.NoError(t, l.Append(e), "Append should not fail")
			}

			if tc.reopen {
				require.NoError(t, l.Close(), "Close should not fail")
				l, err = deadletter.Open(dir)
				require.NoError(t, err, "Reopening the log should not fail")
			}
			t.Cleanup(func() { l.Close() })

			got, err := l.Entries()
			require.NoError(t, err)
			assert.Equal(t, len(tc.entries), len(got), "Entry count should match")
			for i := range tc.entries {
				assert.Equal(t, tc.entries[i].Record, got[i].Record)
				assert.Equal(t, tc.entries[i].Error, got[i].Error)
				assert.Equal(t, tc.entries[i].Position, got[i].Position)
				assert.Equal(t, tc.entries[i].Run, got[i].Run)
				assert.True(t, tc.entries[i].Time.Equal(got[i].Time), "Time should match")
			}
		})
	}
}

func TestDetach(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		noLog bool
	}{
		"Existing log is moved aside": {},
		"Missing log is a no-op":      {noLog: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			dir := filepath.Join(t.TempDir(), "dead-letter")
			if !tc.noLog {
				l, err := deadletter.Open(dir)
				require.NoError(t, err, "Setup: failed to open dead letter log")
				require.NoError(t, l.Append(deadletter.Entry{Record: `{"id":"1"}`, Position: 1}), "Setup: failed to append entry")
				require.NoError(t, l.Close(), "Setup: failed to close dead letter log")
			}

			got, err := deadletter.Detach(dir, time.Unix(0, 42))
			require.NoError(t, err)

			if tc.noLog {
				assert.Empty(t, got, "No path should be returned without a log")
				return
			}

			assert.Equal(t, dir+".replay-42", got)
			assert.NoDirExists(t, dir, "The original directory should be moved")

			old, err := deadletter.Open(got)
			require.NoError(t, err, "Detached log should open")
			t.Cleanup(func() { old.Close() })
			entries, err := old.Entries()
			require.NoError(t, err)
			require.Len(t, entries, 1, "Detached log should keep its entries")

			fresh, err := deadletter.Open(dir)
			require.NoError(t, err, "A fresh log should open in the original directory")
			t.Cleanup(func() { fresh.Close() })
			entries, err = fresh.Entries()
			require.NoError(t, err)
			assert.Empty(t, entries, "Fresh log should be empty")
		})
	}
}

func TestReplay(t *testing.T) {
	t.Parallel()

	r := deadletter.NewReplay([]deadletter.Entry{
		{Record: `{"id":"1"}`, Position: 2},
		{Record: `{"id":"2"}`, Position: 5},
	})

	var records []string
	var positions []int
	for r.Next() {
		records = append(records, string(r.Record()))
		positions = append(positions, r.Position())
	}
	require.NoError(t, r.Err())
	assert.Equal(t, []string{`{"id":"1"}`, `{"id":"2"}`}, records)
	assert.Equal(t, []int{2, 5}, positions)
	assert.False(t, r.Next(), "Replay should not restart")
}

func TestOpenError(t *testing.T) {
	t.Parallel()

	p := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(p, []byte("not a directory"), 0600), "Setup: failed to write file")

	_, err := deadletter.Open(filepath.Join(p, "dead-letter"))
	require.Error(t, err, "Opening a log below a file should fail")
}
