package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/limingnihao/solr-ingest/internal/constants"
)

// maxErrorBody is how much of a failed response body is kept in the returned error.
const maxErrorBody = 1024

// SolrIndexer posts every record to the JSON update handler of a Solr collection.
type SolrIndexer struct {
	endpoint Endpoint
	client   *http.Client
	now      func() time.Time
}

// NewSolr returns an Indexer sending to the Solr collection described by endpoint.
func NewSolr(endpoint Endpoint, args ...Option) (*SolrIndexer, error) {
	if err := endpoint.Validate(); err != nil {
		return nil, err
	}

	opts := defaultOptions
	for _, opt := range args {
		opt(&opts)
	}

	slog.Debug("Creating Solr indexer", "url", endpoint.URL, "collection", endpoint.Collection)

	return &SolrIndexer{
		endpoint: endpoint,
		client:   &http.Client{Transport: opts.transport, Timeout: endpoint.Timeout},
		now:      opts.now,
	}, nil
}

// Index sends record alone, wrapped in a single element JSON array.
func (s *SolrIndexer) Index(ctx context.Context, record json.RawMessage) (Response, error) {
	u, err := s.endpoint.UpdateURL(s.now())
	if err != nil {
		return Response{}, err
	}

	payload := make([]byte, 0, len(record)+2)
	payload = append(payload, '[')
	payload = append(payload, record...)
	payload = append(payload, ']')

	slog.Debug("Sending record to Solr", "url", u, "data", payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", constants.UpdateContentType)
	if s.endpoint.Username != "" {
		req.SetBasicAuth(s.endpoint.Username, s.endpoint.Password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("%w: failed to send HTTP request: %w", ErrSendFailure, err)
	}
	defer resp.Body.Close()

	r := Response{StatusCode: resp.StatusCode, Status: resp.Status}
	if r.OK() {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return r, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_, _ = io.Copy(io.Discard, resp.Body)
	return r, fmt.Errorf("%w: %w", ErrSendFailure, statusError(r, body))
}

// Close releases idle connections.
func (s *SolrIndexer) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func statusError(r Response, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return fmt.Errorf("%w: %s", ErrUnexpectedStatus, r)
	}
	return fmt.Errorf("%w: %s: %s", ErrUnexpectedStatus, r, msg)
}
