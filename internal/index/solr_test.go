package index_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/limingnihao/solr-ingest/internal/constants"
	"github.com/limingnihao/solr-ingest/internal/index"
	"github.com/limingnihao/solr-ingest/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolrIndex(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		records     []string
		statuses    []int
		username    string
		overwrite   bool
		cacheBuster bool
		unreachable bool

		wantBodies   []string
		wantStatuses []int
		wantErrs     []bool
		wantNoResp   bool
	}{
		"Each record is sent alone in order": {
			records:      []string{`{"id":"1","name":"A"}`, `{"id":"2","name":"B"}`},
			username:     "solr",
			overwrite:    true,
			wantBodies:   []string{`[{"id":"1","name":"A"}]`, `[{"id":"2","name":"B"}]`},
			wantStatuses: []int{200, 200},
			wantErrs:     []bool{false, false},
		},
		"Resending with overwrite does not fail": {
			records:      []string{`{"id":"1"}`, `{"id":"1"}`},
			username:     "solr",
			overwrite:    true,
			wantBodies:   []string{`[{"id":"1"}]`, `[{"id":"1"}]`},
			wantStatuses: []int{200, 200},
			wantErrs:     []bool{false, false},
		},
		"Record content is sent verbatim": {
			records:      []string{`{"id": "1", "tags": ["a", "b"], "n": 1.50}`},
			wantBodies:   []string{`[{"id": "1", "tags": ["a", "b"], "n": 1.50}]`},
			wantStatuses: []int{200},
			wantErrs:     []bool{false},
		},
		"Cache buster and no overwrite": {
			records:      []string{`{"id":"1"}`},
			cacheBuster:  true,
			wantBodies:   []string{`[{"id":"1"}]`},
			wantStatuses: []int{200},
			wantErrs:     []bool{false},
		},
		"Non 2xx status returns the response and an error": {
			records:      []string{`{"id":"1"}`, `{"id":"2"}`, `{"id":"3"}`},
			statuses:     []int{http.StatusBadRequest, http.StatusOK, http.StatusUnauthorized},
			username:     "solr",
			wantBodies:   []string{`[{"id":"1"}]`, `[{"id":"2"}]`, `[{"id":"3"}]`},
			wantStatuses: []int{400, 200, 401},
			wantErrs:     []bool{true, false, true},
		},

		"Error on unreachable server": {
			records:     []string{`{"id":"1"}`},
			unreachable: true,
			wantErrs:    []bool{true},
			wantNoResp:  true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s := testutils.NewFakeServer(t, tc.statuses...)
			url := s.URL + "/solr"
			if tc.unreachable {
				url = fmt.Sprintf("http://127.0.0.1:%d/solr", testutils.GetFreePort(t, "127.0.0.1"))
			}

			now := time.UnixMilli(1700000000123)
			idx, err := index.NewSolr(index.Endpoint{
				URL:          url,
				Collection:   "school",
				CommitWithin: time.Second,
				Overwrite:    tc.overwrite,
				WT:           "json",
				CacheBuster:  tc.cacheBuster,
				Username:     tc.username,
				Password:     "SolrRocks",
				Timeout:      5 * time.Second,
			}, index.WithNow(func() time.Time { return now }))
			require.NoError(t, err, "Setup: failed to create Solr indexer")
			t.Cleanup(func() { idx.Close() })

			for i, rec := range tc.records {
				resp, err := idx.Index(context.Background(), json.RawMessage(rec))
				if tc.wantErrs[i] {
					require.ErrorIs(t, err, index.ErrSendFailure, "Index should fail for record %d", i)
				} else {
					require.NoError(t, err, "Index should succeed for record %d", i)
				}
				if tc.wantNoResp {
					assert.Zero(t, resp, "No response should be returned when the server is unreachable")
					continue
				}
				assert.Equal(t, tc.wantStatuses[i], resp.StatusCode, "Status code should match for record %d", i)
				assert.Equal(t, fmt.Sprintf("%d %s", tc.wantStatuses[i], http.StatusText(tc.wantStatuses[i])), resp.String())
				if !resp.OK() {
					require.ErrorIs(t, err, index.ErrUnexpectedStatus)
					assert.Contains(t, err.Error(), "fake failure", "Error should carry the response body")
				}
			}

			if tc.unreachable {
				return
			}

			assert.Equal(t, tc.wantBodies, s.Bodies(), "Request bodies should match, in order")
			for _, r := range s.Requests() {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/solr/school/update", r.Path)
				assert.Equal(t, constants.UpdateContentType, r.Header.Get("Content-Type"))
				assert.Equal(t, "1000", r.Query.Get("commitWithin"))
				assert.Equal(t, fmt.Sprint(tc.overwrite), r.Query.Get("overwrite"))
				assert.Equal(t, "json", r.Query.Get("wt"))

				if tc.cacheBuster {
					assert.Equal(t, "1700000000123", r.Query.Get("_"))
				} else {
					assert.False(t, r.Query.Has("_"), "No cache buster should be sent")
				}

				if tc.username == "" {
					assert.False(t, r.HasAuth, "No credentials should be sent")
					continue
				}
				assert.True(t, r.HasAuth, "Basic credentials should be sent")
				assert.Equal(t, tc.username, r.Username)
				assert.Equal(t, "SolrRocks", r.Password)
			}
		})
	}
}

func TestSolrIndexCanceled(t *testing.T) {
	t.Parallel()

	s := testutils.NewFakeServer(t)
	idx, err := index.NewSolr(index.Endpoint{URL: s.URL, Collection: "school"})
	require.NoError(t, err, "Setup: failed to create Solr indexer")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = idx.Index(ctx, json.RawMessage(`{"id":"1"}`))
	require.ErrorIs(t, err, index.ErrSendFailure)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, s.Requests(), "No request should reach the server")
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		backend  index.Backend
		endpoint index.Endpoint
		idPath   string

		wantType any
		wantErr  bool
	}{
		"Solr":          {backend: index.Solr, endpoint: index.Endpoint{URL: "http://localhost:8981/solr", Collection: "school"}, wantType: &index.SolrIndexer{}},
		"Elasticsearch": {backend: index.Elasticsearch, endpoint: index.Endpoint{URL: "http://localhost:9200", Collection: "school"}, idPath: "$.id", wantType: &index.ElasticsearchIndexer{}},

		"Error on unknown backend":     {backend: index.Backend(42), endpoint: index.Endpoint{URL: "http://localhost:8981/solr", Collection: "school"}, wantErr: true},
		"Error on invalid endpoint":    {backend: index.Solr, endpoint: index.Endpoint{Collection: "school"}, wantErr: true},
		"Error on invalid ES endpoint": {backend: index.Elasticsearch, endpoint: index.Endpoint{URL: "http://localhost:9200"}, wantErr: true},
		"Error on invalid id path":     {backend: index.Elasticsearch, endpoint: index.Endpoint{URL: "http://localhost:9200", Collection: "school"}, idPath: "$[", wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			idx, err := index.New(tc.backend, tc.endpoint, index.WithIDPath(tc.idPath))
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tc.wantType, idx)
			require.NoError(t, idx.Close())
		})
	}
}
