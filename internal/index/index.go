// Package index sends records, one at a time, to a search backend.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/limingnihao/solr-ingest/internal/constants"
)

var (
	// ErrSendFailure is returned when a record fails to be indexed, either due to a network error or a non-2xx status code.
	ErrSendFailure = errors.New("record send failed")
	// ErrUnexpectedStatus is returned alongside ErrSendFailure when the backend answered with a non-2xx status.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrInvalidEndpoint is returned when the endpoint configuration cannot be used.
	ErrInvalidEndpoint = errors.New("invalid endpoint")
	// ErrUnknownBackend is returned when parsing a backend name that does not exist.
	ErrUnknownBackend = errors.New("unknown backend")
)

// Response is the answer of the backend to one record.
type Response struct {
	StatusCode int
	Status     string
}

// String returns the status line, for example "200 OK".
func (r Response) String() string {
	if r.Status != "" {
		return r.Status
	}
	return fmt.Sprintf("%d %s", r.StatusCode, http.StatusText(r.StatusCode))
}

// OK returns true if the status code is 2xx.
func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Indexer indexes records one by one.
type Indexer interface {
	// Index sends a single record. A Response is returned whenever the backend answered,
	// even if the returned error is not nil.
	Index(ctx context.Context, record json.RawMessage) (Response, error)
	Close() error
}

// Backend selects the Indexer implementation.
type Backend int

const (
	// Solr posts records to the Solr JSON update handler.
	Solr Backend = iota
	// Elasticsearch indexes records with the Elasticsearch document Index API.
	Elasticsearch
)

var backendNames = map[Backend]string{
	Solr:          "solr",
	Elasticsearch: "elasticsearch",
}

// ParseBackend returns the backend matching name.
func ParseBackend(name string) (Backend, error) {
	for b, n := range backendNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return b, nil
		}
	}
	return 0, fmt.Errorf("%w %q, expected one of solr, elasticsearch", ErrUnknownBackend, name)
}

func (b Backend) String() string {
	if n, ok := backendNames[b]; ok {
		return n
	}
	return fmt.Sprintf("Backend(%d)", int(b))
}

// MarshalText implements encoding.TextMarshaler.
func (b Backend) MarshalText() ([]byte, error) {
	if _, ok := backendNames[b]; !ok {
		return nil, fmt.Errorf("%w %d", ErrUnknownBackend, int(b))
	}
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Backend) UnmarshalText(text []byte) error {
	v, err := ParseBackend(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}

// Set implements pflag.Value.
func (b *Backend) Set(s string) error {
	return b.UnmarshalText([]byte(s))
}

// Type implements pflag.Value.
func (Backend) Type() string {
	return "backend"
}

type options struct {
	transport http.RoundTripper
	idPath    string

	// Private members exported for tests.
	now func() time.Time
}

var defaultOptions = options{
	idPath: constants.DefaultIDPath,
	now:    time.Now,
}

// Option represents an optional function to override Indexer default values.
type Option func(*options)

// WithTransport sets the HTTP transport used to reach the backend. http.DefaultTransport is used if nil.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
	}
}

// WithIDPath sets the JSONPath expression used to extract the document id of each record.
// It is only used by the Elasticsearch backend. An empty path lets the backend generate ids.
func WithIDPath(path string) Option {
	return func(o *options) {
		o.idPath = path
	}
}

// New returns the Indexer for backend, sending to endpoint.
func New(backend Backend, endpoint Endpoint, args ...Option) (Indexer, error) {
	switch backend {
	case Solr:
		return NewSolr(endpoint, args...)
	case Elasticsearch:
		return NewElasticsearch(endpoint, args...)
	default:
		return nil, fmt.Errorf("%w %d", ErrUnknownBackend, int(backend))
	}
}
