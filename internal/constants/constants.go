// Package constants is responsible for defining the constants used in the application.
package constants

import (
	"log/slog"
	"time"
)

var (
	// Version is the version of the application.
	Version = "Dev"
)

const (
	// CmdName is the name of the command line tool.
	CmdName = "solr-ingest"

	// DefaultLogLevel is the default log level selected without any verbosity flags.
	DefaultLogLevel = slog.LevelWarn

	// DefaultEnvFile is the dotenv file read before the environment is bound into the configuration.
	DefaultEnvFile = ".env"
)

// Endpoint defaults.
const (
	// DefaultURL is the default base URL of the Solr instance.
	DefaultURL = "http://localhost:8981/solr"

	// DefaultCollection is the default collection (core) records are sent to.
	DefaultCollection = "school"

	// DefaultCommitWithin is the default soft commit delay requested on every update.
	DefaultCommitWithin = time.Second

	// DefaultWT is the default response writer type requested from Solr.
	DefaultWT = "json"

	// DefaultUsername is the default basic auth user, as shipped in the Solr security.json example.
	DefaultUsername = "solr"

	// DefaultPassword is the default basic auth password, as shipped in the Solr security.json example.
	DefaultPassword = "SolrRocks"

	// DefaultIDPath is the default JSONPath used to find a document id for the Elasticsearch backend.
	DefaultIDPath = "$.id"
)

const (
	// Sentinel is printed once the whole source has been sent.
	Sentinel = "-------------over"

	// UpdateContentType is the content type of every update request.
	UpdateContentType = "application/json;charset=utf-8"
)
