package index

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Endpoint describes where and how records are sent.
type Endpoint struct {
	// URL is the backend base URL, for example http://localhost:8981/solr.
	URL string
	// Collection is the Solr collection or the Elasticsearch index.
	Collection string
	// CommitWithin asks Solr to commit within this duration. It is not sent if zero.
	CommitWithin time.Duration
	// Overwrite replaces documents with the same unique key.
	Overwrite bool
	// WT is the Solr response writer. It is not sent if empty.
	WT string
	// CacheBuster adds the current time in milliseconds to every request URL.
	CacheBuster bool

	Username string
	Password string

	// Timeout bounds every request. Zero means no timeout.
	Timeout time.Duration
}

// Validate returns an error wrapping ErrInvalidEndpoint if the endpoint cannot be used.
func (e Endpoint) Validate() error {
	if e.URL == "" {
		return fmt.Errorf("%w: empty URL", ErrInvalidEndpoint)
	}
	u, err := url.Parse(e.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q in %q", ErrInvalidEndpoint, u.Scheme, e.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: no host in %q", ErrInvalidEndpoint, e.URL)
	}
	if strings.Trim(e.Collection, "/ ") == "" {
		return fmt.Errorf("%w: empty collection", ErrInvalidEndpoint)
	}
	if e.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout %s", ErrInvalidEndpoint, e.Timeout)
	}
	return nil
}

// UpdateURL returns the Solr update URL of the collection:
// {URL}/{Collection}/update?commitWithin=...&overwrite=...&wt=...[&_=...].
func (e Endpoint) UpdateURL(now time.Time) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	u, err := url.Parse(e.URL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	u = u.JoinPath(strings.Trim(e.Collection, "/"), "update")

	// Keep the parameter order stable, url.Values would sort them.
	var params []string
	if u.RawQuery != "" {
		params = append(params, u.RawQuery)
	}
	if e.CommitWithin > 0 {
		params = append(params, "commitWithin="+strconv.FormatInt(e.CommitWithin.Milliseconds(), 10))
	}
	params = append(params, "overwrite="+strconv.FormatBool(e.Overwrite))
	if e.WT != "" {
		params = append(params, "wt="+url.QueryEscape(e.WT))
	}
	if e.CacheBuster {
		params = append(params, "_="+strconv.FormatInt(now.UnixMilli(), 10))
	}
	u.RawQuery = strings.Join(params, "&")

	return u.String(), nil
}
