package testutils

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"runtime"
	"testing"
	"time"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// SolrContainer is a standalone Solr instance running in a container, with one precreated core.
type SolrContainer struct {
	Container  testcontainers.Container
	URL        string
	Collection string
}

// StartSolrContainer starts a Solr container with a core named collection.
// The test is skipped outside of Linux.
func StartSolrContainer(t *testing.T, collection string) *SolrContainer {
	t.Helper()

	if runtime.GOOS != "linux" {
		t.Skip("Skipping Solr container test on non-Linux OS")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	req := testcontainers.ContainerRequest{
		Image:        "solr:9",
		ExposedPorts: []string{"8983/tcp"},
		Cmd:          []string{"solr-precreate", collection},
		WaitingFor: wait.ForHTTP(fmt.Sprintf("/solr/%s/admin/ping", collection)).
			WithPort("8983/tcp").
			WithStartupTimeout(2 * time.Minute),
	}
	ctx := t.Context()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "Setup: failed to start Solr container")

	host, err := container.Host(ctx)
	require.NoError(t, err, "Setup: failed to get container host")
	port, err := container.MappedPort(ctx, "8983/tcp")
	require.NoError(t, err, "Setup: failed to get mapped port")

	return &SolrContainer{
		Container:  container,
		URL:        fmt.Sprintf("http://%s:%s/solr", host, port.Port()),
		Collection: collection,
	}
}

// Stop stops the Solr container.
func (sc *SolrContainer) Stop(ctx context.Context) error {
	return sc.Container.Terminate(ctx)
}

// Count commits the core and returns how many documents match query.
func (sc SolrContainer) Count(t *testing.T, query string) int64 {
	t.Helper()

	get := func(u string) []byte {
		resp, err := http.Get(u) //nolint:gosec // URL of the test container
		require.NoError(t, err, "Failed to query Solr")
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err, "Failed to read Solr response")
		require.Equal(t, http.StatusOK, resp.StatusCode, "Solr query failed: %s", body)
		return body
	}

	get(fmt.Sprintf("%s/%s/update?commit=true", sc.URL, sc.Collection))
	body := get(fmt.Sprintf("%s/%s/select?rows=0&q=%s", sc.URL, sc.Collection, url.QueryEscape(query)))

	v, err := oj.Parse(body)
	require.NoError(t, err, "Solr response should be JSON")
	n, ok := jp.MustParseString("$.response.numFound").First(v).(int64)
	require.True(t, ok, "Solr response should have a numFound: %s", body)
	return n
}
