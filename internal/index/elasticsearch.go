package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// ElasticsearchIndexer indexes every record as one document of an Elasticsearch index.
type ElasticsearchIndexer struct {
	endpoint Endpoint
	client   *elasticsearch.Client
	idPath   jp.Expr
}

// NewElasticsearch returns an Indexer writing to the index named by endpoint.Collection.
func NewElasticsearch(endpoint Endpoint, args ...Option) (*ElasticsearchIndexer, error) {
	if err := endpoint.Validate(); err != nil {
		return nil, err
	}

	opts := defaultOptions
	for _, opt := range args {
		opt(&opts)
	}

	var idPath jp.Expr
	if opts.idPath != "" {
		x, err := jp.ParseString(opts.idPath)
		if err != nil {
			return nil, fmt.Errorf("invalid id path %q: %w", opts.idPath, err)
		}
		idPath = x
	}

	transport := opts.transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    []string{endpoint.URL},
		Username:     endpoint.Username,
		Password:     endpoint.Password,
		Transport:    transport,
		DisableRetry: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %v", err)
	}

	slog.Debug("Creating Elasticsearch indexer", "url", endpoint.URL, "index", endpoint.Collection, "id-path", opts.idPath)

	return &ElasticsearchIndexer{
		endpoint: endpoint,
		client:   client,
		idPath:   idPath,
	}, nil
}

// Index indexes record as a single document.
// When Overwrite is false, an existing document with the same id makes the request fail.
func (e *ElasticsearchIndexer) Index(ctx context.Context, record json.RawMessage) (Response, error) {
	id, err := e.documentID(record)
	if err != nil {
		return Response{}, err
	}

	if e.endpoint.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.endpoint.Timeout)
		defer cancel()
	}

	opts := []func(*esapi.IndexRequest){e.client.Index.WithContext(ctx)}
	if id != "" {
		opts = append(opts, e.client.Index.WithDocumentID(id))
	}
	if !e.endpoint.Overwrite {
		opts = append(opts, e.client.Index.WithOpType("create"))
	}

	slog.Debug("Sending record to Elasticsearch", "index", e.endpoint.Collection, "id", id, "data", []byte(record))
	res, err := e.client.Index(e.endpoint.Collection, bytes.NewReader(record), opts...)
	if err != nil {
		return Response{}, fmt.Errorf("%w: failed to send HTTP request: %w", ErrSendFailure, err)
	}
	defer res.Body.Close()

	r := Response{StatusCode: res.StatusCode, Status: res.Status()}
	if !res.IsError() {
		_, _ = io.Copy(io.Discard, res.Body)
		return r, nil
	}

	body, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	_, _ = io.Copy(io.Discard, res.Body)
	return r, fmt.Errorf("%w: %w", ErrSendFailure, statusError(r, body))
}

// Close is a no-op: the Elasticsearch client owns no resource to release.
func (e *ElasticsearchIndexer) Close() error {
	return nil
}

// documentID returns the first value matched by the id path, or an empty string if there is none.
func (e *ElasticsearchIndexer) documentID(record json.RawMessage) (string, error) {
	if e.idPath == nil {
		return "", nil
	}

	data, err := oj.Parse(record)
	if err != nil {
		return "", fmt.Errorf("record is not valid JSON: %v", err)
	}

	switch v := e.idPath.First(data).(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool, map[string]any, []any:
		return "", fmt.Errorf("document id at %s must be a string or a number, got %T", e.idPath, v)
	default:
		return fmt.Sprint(v), nil
	}
}
