// Package source loads the records to ingest from a local file or an S3 object.
//
// A source is read in one of a fixed set of modes, chosen by the caller and never detected:
// a single JSON array, one JSON object per line, or a YAML sequence of mappings.
package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/ubuntu/decorate"
	"gopkg.in/yaml.v3"
)

var (
	// ErrNotFound is returned when the source path or object does not exist.
	ErrNotFound = fmt.Errorf("source not found: %w", fs.ErrNotExist)
	// ErrParse is returned when the source content is not valid for its mode.
	ErrParse = errors.New("source content is not valid")
	// ErrUnknownMode is returned when parsing a mode name that does not exist.
	ErrUnknownMode = errors.New("unknown source mode")
)

// maxLineSize is the largest line accepted in Lines mode.
const maxLineSize = 16 * 1024 * 1024

// Record is one opaque JSON document, exactly as read from the source.
type Record = json.RawMessage

// Mode selects how a source file is parsed.
type Mode int

const (
	// Array parses the whole file as one JSON array of records.
	Array Mode = iota
	// Lines reads the file line by line, one raw JSON object per non-empty line.
	// Lines are not parsed when loading.
	Lines
	// YAML parses the whole file as a YAML sequence of mappings, each converted to a JSON object.
	YAML
)

var modeNames = map[Mode]string{
	Array: "array",
	Lines: "lines",
	YAML:  "yaml",
}

// ParseMode returns the mode matching name.
func ParseMode(name string) (Mode, error) {
	for m, n := range modeNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w %q, expected one of array, lines, yaml", ErrUnknownMode, name)
}

// String implements fmt.Stringer.
func (m Mode) String() string {
	if n, ok := modeNames[m]; ok {
		return n
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if _, ok := modeNames[m]; !ok {
		return nil, fmt.Errorf("%w %d", ErrUnknownMode, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	v, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Set implements pflag.Value.
func (m *Mode) Set(s string) error {
	return m.UnmarshalText([]byte(s))
}

// Type implements pflag.Value.
func (Mode) Type() string {
	return "mode"
}

// Records is a lazy, finite, non-restartable sequence of records.
//
// It owns the underlying file handle while in Lines mode. Close must be called once done.
type Records struct {
	mode Mode

	// Array and YAML modes.
	records []Record
	pos     int

	// Lines mode.
	scanner *bufio.Scanner
	line    int

	cur    Record
	err    error
	closer io.Closer
	closed bool
}

// Load opens the source at path and prepares its records according to mode.
//
// path is either a local file path or an s3://bucket/key URI.
// Array and YAML content is parsed immediately and the file is released before returning.
// Lines content is read lazily; the returned Records keeps the file open until closed.
func Load(ctx context.Context, path string, mode Mode, args ...Option) (r *Records, err error) {
	defer decorate.OnError(&err, "could not load %s source %q", mode, path)

	if _, ok := modeNames[mode]; !ok {
		return nil, fmt.Errorf("%w %d", ErrUnknownMode, int(mode))
	}

	opts := defaultOptions
	for _, opt := range args {
		opt(&opts)
	}

	f, err := open(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	content := decode(f)

	slog.Debug("Loading source", "path", path, "mode", mode)

	switch mode {
	case Lines:
		s := bufio.NewScanner(content)
		s.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		return &Records{mode: mode, scanner: s, closer: f}, nil
	case YAML:
		defer f.Close()
		records, err := parseYAML(content)
		if err != nil {
			return nil, err
		}
		return &Records{mode: mode, records: records}, nil
	default:
		defer f.Close()
		records, err := parseArray(content)
		if err != nil {
			return nil, err
		}
		return &Records{mode: mode, records: records}, nil
	}
}

// parseArray parses content as a single JSON array of records.
func parseArray(content io.Reader) ([]Record, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, fmt.Errorf("failed to read source: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.Join(ErrParse, err)
	}
	// null decodes into a nil slice.
	if records == nil {
		return nil, fmt.Errorf("%w: content is not a JSON array", ErrParse)
	}
	return records, nil
}

// parseYAML parses content as a YAML sequence and re-encodes every element as JSON.
func parseYAML(content io.Reader) ([]Record, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, fmt.Errorf("failed to read source: %w", err)
	}

	var docs []map[string]any
	if err := yaml.Unmarshal(data, &docs); err != nil {
		return nil, errors.Join(ErrParse, err)
	}

	records := make([]Record, 0, len(docs))
	for i, doc := range docs {
		b, err := json.Marshal(doc)
		if err != nil {
			return nil, errors.Join(ErrParse, fmt.Errorf("element %d cannot be represented as JSON: %v", i+1, err))
		}
		records = append(records, b)
	}
	return records, nil
}

// Next advances to the next record. It returns false when the sequence is exhausted,
// the records are closed, or an error occurred (see Err).
func (r *Records) Next() bool {
	if r.closed || r.err != nil {
		return false
	}

	if r.scanner == nil {
		if r.pos >= len(r.records) {
			r.cur = nil
			return false
		}
		r.cur = r.records[r.pos]
		r.pos++
		return true
	}

	for r.scanner.Scan() {
		r.line++
		line := r.scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		r.cur = bytes.Clone(line)
		return true
	}
	r.cur = nil
	if err := r.scanner.Err(); err != nil {
		r.err = fmt.Errorf("failed to read line %d: %w", r.line+1, err)
	}
	return false
}

// Record returns the current record. It is only valid after a call to Next returned true.
func (r *Records) Record() Record {
	return r.cur
}

// Position returns the position of the current record in the source:
// the line number in Lines mode, the 1-based element index otherwise.
func (r *Records) Position() int {
	if r.scanner != nil {
		return r.line
	}
	return r.pos
}

// Err returns the first error met while iterating, if any.
func (r *Records) Err() error {
	return r.err
}

// Mode returns the mode the records were loaded with.
func (r *Records) Mode() Mode {
	return r.mode
}

// Close releases the underlying source. It is safe to call multiple times.
func (r *Records) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}
