// Package ingest sends records one by one to an indexer, reporting the outcome of every request.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/limingnihao/solr-ingest/internal/constants"
	"github.com/limingnihao/solr-ingest/internal/deadletter"
	"github.com/limingnihao/solr-ingest/internal/index"
	"github.com/ubuntu/decorate"
)

// ErrInvalidRecord is returned for a record which is not valid JSON. No request is sent for it.
var ErrInvalidRecord = errors.New("invalid record")

// maxLoggedRecord is how much of an invalid record is kept in errors.
const maxLoggedRecord = 64

// Records is a sequence of records to send.
type Records interface {
	Next() bool
	Record() json.RawMessage
	// Position locates the current record in its source, for reporting.
	Position() int
	Err() error
}

type deadLetter interface {
	Append(deadletter.Entry) error
}

// Ingestor sends records sequentially.
type Ingestor struct {
	indexer    index.Indexer
	out        io.Writer
	policy     Policy
	sentinel   bool
	deadLetter deadLetter
	metrics    *Metrics
	run        string
	now        func() time.Time
}

type options struct {
	out        io.Writer
	policy     Policy
	sentinel   bool
	deadLetter deadLetter
	metrics    *Metrics
	run        string

	// Private members exported for tests.
	now func() time.Time
}

// Option represents an optional function to override Ingestor default values.
type Option func(*options)

// WithOutput sets where the outcome of every request is printed. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.out = w
	}
}

// WithPolicy sets the failure policy. Defaults to BestEffort.
func WithPolicy(p Policy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithSentinel prints the completion line once every record was sent.
func WithSentinel(enabled bool) Option {
	return func(o *options) {
		o.sentinel = enabled
	}
}

// WithDeadLetter records every failed record in l.
func WithDeadLetter(l *deadletter.Log) Option {
	return func(o *options) {
		if l == nil {
			o.deadLetter = nil
			return
		}
		o.deadLetter = l
	}
}

// WithMetrics records the outcome of every record in m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithRunID sets the identifier of the run, used in logs and dead letters. A random one is generated by default.
func WithRunID(id string) Option {
	return func(o *options) {
		o.run = id
	}
}

// New returns an Ingestor sending records to indexer.
func New(indexer index.Indexer, args ...Option) *Ingestor {
	opts := options{
		out:    os.Stdout,
		policy: BestEffort,
		now:    time.Now,
	}
	for _, opt := range args {
		opt(&opts)
	}
	if opts.run == "" {
		opts.run = uuid.NewString()
	}

	return &Ingestor{
		indexer:    indexer,
		out:        opts.out,
		policy:     opts.policy,
		sentinel:   opts.sentinel,
		deadLetter: opts.deadLetter,
		metrics:    opts.metrics,
		run:        opts.run,
		now:        opts.now,
	}
}

// RunID returns the identifier of the run.
func (in *Ingestor) RunID() string {
	return in.run
}

// Send sends every record alone, in order, waiting for each answer before sending the next one.
//
// One line is printed per record: the response status, or the error if no response was received.
// With BestEffort, failed records are logged and skipped. With FailFast, the first failure is returned.
// Errors from records themselves and context cancellation are always returned.
func (in *Ingestor) Send(ctx context.Context, records Records) (err error) {
	defer decorate.OnError(&err, "ingestion failed")

	log := slog.With("run", in.run)
	log.Info("Starting ingestion", "policy", in.policy)

	var sent, failed int
	for {
		if err := ctx.Err(); err != nil {
			log.Info("Ingestion interrupted", "sent", sent, "failed", failed)
			return err
		}
		if !records.Next() {
			break
		}

		pos := records.Position()
		err := in.sendOne(ctx, records.Record(), pos)
		if err == nil {
			sent++
			continue
		}
		if ctx.Err() != nil {
			continue
		}

		failed++
		if in.policy == FailFast {
			return fmt.Errorf("record at position %d: %w", pos, err)
		}
		log.Warn("Failed to index record", "position", pos, "error", err)
	}

	if err := records.Err(); err != nil {
		return err
	}

	if in.sentinel {
		fmt.Fprintln(in.out, constants.Sentinel)
	}
	log.Info("Ingestion finished", "sent", sent, "failed", failed)

	return nil
}

// sendOne sends a single record and prints its outcome.
func (in *Ingestor) sendOne(ctx context.Context, record json.RawMessage, pos int) (err error) {
	result := resultSuccess
	defer func() {
		if ctx.Err() != nil {
			return
		}
		in.metrics.observeRecord(result)
		if err != nil {
			in.keep(record, pos, err)
		}
	}()

	if !json.Valid(record) {
		result = resultInvalid
		err = fmt.Errorf("%w: %q", ErrInvalidRecord, truncate(record))
		fmt.Fprintf(in.out, "error: %v\n", err)
		return err
	}

	start := in.now()
	resp, err := in.indexer.Index(ctx, record)
	in.metrics.observeDuration(in.now().Sub(start))
	if err != nil {
		result = resultFailure
	}

	switch {
	case ctx.Err() != nil:
		// Interrupted, nothing to report for this record.
	case resp.StatusCode != 0:
		fmt.Fprintln(in.out, resp.String())
	default:
		fmt.Fprintf(in.out, "error: %v\n", err)
	}

	return err
}

// keep writes a failed record to the dead letter log, if any.
func (in *Ingestor) keep(record json.RawMessage, pos int, cause error) {
	if in.deadLetter == nil {
		return
	}
	if err := in.deadLetter.Append(deadletter.Entry{
		Record:   string(record),
		Error:    cause.Error(),
		Position: pos,
		Run:      in.run,
		Time:     in.now(),
	}); err != nil {
		slog.Warn("Failed to keep record in dead letter log", "run", in.run, "position", pos, "error", err)
	}
}

func truncate(record json.RawMessage) string {
	if len(record) <= maxLoggedRecord {
		return string(record)
	}
	return string(record[:maxLoggedRecord]) + "..."
}
