// Package deadletter keeps the records that failed to be indexed in an append-only log, so they can be replayed later.
package deadletter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tidwall/wal"
	"github.com/ubuntu/decorate"
)

// Entry is a failed record, with the reason of the failure.
// Record is kept as text as it may not be valid JSON.
type Entry struct {
	Record   string    `json:"record"`
	Error    string    `json:"error"`
	Position int       `json:"position"`
	Run      string    `json:"run"`
	Time     time.Time `json:"time"`
}

// Log is a dead letter log stored in a directory.
type Log struct {
	mu  sync.Mutex
	log *wal.Log
	dir string
}

// Open opens the log in dir, creating it if needed.
func Open(dir string) (l *Log, err error) {
	defer decorate.OnError(&err, "could not open dead letter log %q", dir)

	log, err := wal.Open(dir, nil)
	if err != nil {
		return nil, err
	}

	return &Log{log: log, dir: dir}, nil
}

// Dir returns the directory of the log.
func (l *Log) Dir() string {
	return l.dir
}

// Append adds e at the end of the log.
func (l *Log) Append(e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter entry: %v", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	last, err := l.log.LastIndex()
	if err != nil {
		return fmt.Errorf("failed to get last dead letter index: %v", err)
	}
	if err := l.log.Write(last+1, data); err != nil {
		return fmt.Errorf("failed to write dead letter entry: %v", err)
	}
	slog.Debug("Dead letter entry written", "dir", l.dir, "index", last+1, "position", e.Position)

	return nil
}

// Entries returns every entry of the log, oldest first.
func (l *Log) Entries() ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	last, err := l.log.LastIndex()
	if err != nil {
		return nil, fmt.Errorf("failed to get last dead letter index: %v", err)
	}
	if last == 0 {
		return nil, nil
	}
	first, err := l.log.FirstIndex()
	if err != nil {
		return nil, fmt.Errorf("failed to get first dead letter index: %v", err)
	}

	entries := make([]Entry, 0, last-first+1)
	for i := first; i <= last; i++ {
		data, err := l.log.Read(i)
		if err != nil {
			return nil, fmt.Errorf("failed to read dead letter entry %d: %v", i, err)
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("dead letter entry %d is corrupted: %v", i, err)
		}
		entries = append(entries, e)
	}

	return entries, nil
}

// Close closes the log.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.log.Close()
}

// Detach moves the log in dir aside and returns its new location, so that a fresh log can be opened in dir.
// It returns an empty path and no error if there is no log in dir.
func Detach(dir string, now time.Time) (string, error) {
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("failed to stat dead letter log: %v", err)
	}

	dest := fmt.Sprintf("%s.replay-%d", filepath.Clean(dir), now.UnixNano())
	if err := os.Rename(dir, dest); err != nil {
		return "", fmt.Errorf("failed to move dead letter log aside: %v", err)
	}
	slog.Debug("Dead letter log moved aside", "from", dir, "to", dest)

	return dest, nil
}

// Replay iterates over entries as records to send again.
type Replay struct {
	entries []Entry
	cur     int
}

// NewReplay returns an iterator over the records of entries.
func NewReplay(entries []Entry) *Replay {
	return &Replay{entries: entries}
}

// Next advances to the next entry. It returns false once every entry was visited.
func (r *Replay) Next() bool {
	if r.cur >= len(r.entries) {
		return false
	}
	r.cur++
	return true
}

// Record returns the record of the current entry.
func (r *Replay) Record() json.RawMessage {
	return json.RawMessage(r.entries[r.cur-1].Record)
}

// Position returns the position of the current entry in its original source.
func (r *Replay) Position() int {
	return r.entries[r.cur-1].Position
}

// Err always returns nil: entries are all in memory.
func (*Replay) Err() error {
	return nil
}
