// Package commands is the command line interface of solr-ingest.
package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/limingnihao/solr-ingest/internal/cli"
	"github.com/limingnihao/solr-ingest/internal/constants"
	"github.com/limingnihao/solr-ingest/internal/deadletter"
	"github.com/limingnihao/solr-ingest/internal/index"
	"github.com/limingnihao/solr-ingest/internal/ingest"
	"github.com/limingnihao/solr-ingest/internal/source"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig
}

// appConfig holds the configuration for the application.
// Keys are the flag names, shared by the configuration file and the SOLR_INGEST_ environment variables.
type appConfig struct {
	Verbosity int    `mapstructure:"verbose" yaml:"verbose"`
	JSONLogs  bool   `mapstructure:"json-logs" yaml:"json-logs"`
	EnvFile   string `mapstructure:"env-file" yaml:"env-file"`

	Source string      `mapstructure:"source" yaml:"source"`
	Mode   source.Mode `mapstructure:"mode" yaml:"mode"`

	Backend      index.Backend `mapstructure:"backend" yaml:"backend"`
	URL          string        `mapstructure:"url" yaml:"url"`
	Collection   string        `mapstructure:"collection" yaml:"collection"`
	CommitWithin time.Duration `mapstructure:"commit-within" yaml:"commit-within"`
	Overwrite    bool          `mapstructure:"overwrite" yaml:"overwrite"`
	WT           string        `mapstructure:"wt" yaml:"wt"`
	CacheBuster  bool          `mapstructure:"cache-buster" yaml:"cache-buster"`
	Username     string        `mapstructure:"username" yaml:"username"`
	Password     string        `mapstructure:"password" yaml:"password"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	IDPath       string        `mapstructure:"id-path" yaml:"id-path"`

	Policy        ingest.Policy `mapstructure:"policy" yaml:"policy"`
	DeadLetterDir string        `mapstructure:"dead-letter-dir" yaml:"dead-letter-dir"`
	MetricsFile   string        `mapstructure:"metrics-file" yaml:"metrics-file"`

	S3Region    string `mapstructure:"s3-region" yaml:"s3-region"`
	S3Endpoint  string `mapstructure:"s3-endpoint" yaml:"s3-endpoint"`
	S3AccessKey string `mapstructure:"s3-access-key" yaml:"s3-access-key"`
	S3SecretKey string `mapstructure:"s3-secret-key" yaml:"s3-secret-key"`
}

// New creates a new App instance with default values.
func New() (*App, error) {
	a := App{}

	a.cmd = &cobra.Command{
		Use:   constants.CmdName + " [flags] FILE",
		Short: "Send JSON records to Solr, one request per record",
		Long: `Send JSON records to Solr, one request per record.

FILE is a local path or an s3://bucket/key URI. Depending on --mode, it holds a single JSON array,
one JSON object per line, or a YAML sequence of mappings.
Every record is posted alone, wrapped in a single element array, and the status of each response is printed.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs) // Set verbosity before loading config

			envFile := cmd.Flags().Lookup("env-file")
			if err := cli.LoadEnvFile(a.config.EnvFile, envFile != nil && envFile.Changed); err != nil {
				return err
			}
			if err := cli.InitViperConfig(constants.CmdName, a.cmd, a.viper); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(&a.config, cli.DecodeHook()); err != nil {
				return fmt.Errorf("unable to strictly decode configuration into struct: %w", err)
			}
			slog.Debug("got app config", "config", a.config.redacted())

			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs) // Update logging after loading config if necessary
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				a.config.Source = args[0]
			}
			if a.config.Source == "" {
				a.cmd.SilenceUsage = false
				return errors.New("no source file given, pass FILE or set source in the configuration")
			}

			return a.run(cmd.Context())
		},
	}
	a.viper = viper.New()
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	installRootCmd(&a)
	cli.InstallConfigFlag(a.cmd)

	if err := a.viper.BindPFlags(a.cmd.PersistentFlags()); err != nil {
		return nil, err
	}
	if err := a.viper.BindPFlags(a.cmd.Flags()); err != nil {
		return nil, err
	}

	a.installReplay()
	a.installVersion()

	return &a, nil
}

func installRootCmd(app *App) {
	cmd := app.cmd

	cmd.PersistentFlags().CountVarP(&app.config.Verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	cmd.PersistentFlags().BoolVar(&app.config.JSONLogs, "json-logs", false, "enable JSON formatted logs")
	cmd.PersistentFlags().StringVar(&app.config.EnvFile, "env-file", constants.DefaultEnvFile, "dotenv file loaded into the environment before reading the configuration")

	// Endpoint flags
	cmd.PersistentFlags().Var(&app.config.Backend, "backend", "backend to send records to: solr or elasticsearch")
	cmd.PersistentFlags().StringVar(&app.config.URL, "url", constants.DefaultURL, "base URL of the backend")
	cmd.PersistentFlags().StringVar(&app.config.Collection, "collection", constants.DefaultCollection, "Solr collection or Elasticsearch index to send records to")
	cmd.PersistentFlags().DurationVar(&app.config.CommitWithin, "commit-within", constants.DefaultCommitWithin, "ask Solr to commit within this duration (1s, 500ms), 0 to not ask; bare integers in the configuration or environment are milliseconds")
	cmd.PersistentFlags().BoolVar(&app.config.Overwrite, "overwrite", true, "replace existing documents with the same unique key")
	cmd.PersistentFlags().StringVar(&app.config.WT, "wt", constants.DefaultWT, "Solr response writer type")
	cmd.PersistentFlags().BoolVar(&app.config.CacheBuster, "cache-buster", false, "add the current time to every request URL")
	cmd.PersistentFlags().StringVarP(&app.config.Username, "username", "u", constants.DefaultUsername, "basic auth user, empty to send no credentials")
	cmd.PersistentFlags().StringVarP(&app.config.Password, "password", "P", constants.DefaultPassword, "basic auth password")
	cmd.PersistentFlags().DurationVar(&app.config.Timeout, "timeout", 0, "timeout of every request, 0 for none")
	cmd.PersistentFlags().StringVar(&app.config.IDPath, "id-path", constants.DefaultIDPath, "JSONPath of the document id, for the elasticsearch backend")

	// Run flags
	cmd.PersistentFlags().Var(&app.config.Policy, "policy", "what to do when a record fails: best-effort or fail-fast")
	cmd.PersistentFlags().StringVar(&app.config.DeadLetterDir, "dead-letter-dir", "", "directory keeping failed records for a later replay")
	cmd.PersistentFlags().StringVar(&app.config.MetricsFile, "metrics-file", "", "write metrics to this file once done, in the Prometheus textfile format")

	// Source flags
	cmd.Flags().VarP(&app.config.Mode, "mode", "m", "source format: array, lines or yaml")
	cmd.Flags().StringVar(&app.config.S3Region, "s3-region", "", "region of s3:// sources")
	cmd.Flags().StringVar(&app.config.S3Endpoint, "s3-endpoint", "", "endpoint of an S3 compatible store for s3:// sources")
	cmd.Flags().StringVar(&app.config.S3AccessKey, "s3-access-key", "", "access key of s3:// sources")
	cmd.Flags().StringVar(&app.config.S3SecretKey, "s3-secret-key", "", "secret key of s3:// sources")

	if err := cmd.MarkPersistentFlagDirname("dead-letter-dir"); err != nil {
		panic(fmt.Errorf("failed to mark dead-letter-dir flag as directory: %w", err))
	}
	if err := cmd.MarkPersistentFlagFilename("env-file"); err != nil {
		panic(fmt.Errorf("failed to mark env-file flag as filename: %w", err))
	}
}

// Run executes the command and associated process, returning an error if any.
// The run stops between two records once ctx is canceled.
func (a App) Run(ctx context.Context) error {
	return a.cmd.ExecuteContext(ctx)
}

// UsageError returns if the error is a command parsing or runtime one.
func (a App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// RootCmd returns the root command.
func (a App) RootCmd() cobra.Command {
	return *a.cmd
}

// run loads the source and sends all of its records.
func (a *App) run(ctx context.Context) error {
	records, err := source.Load(ctx, a.config.Source, a.config.Mode, source.WithS3Config(source.S3Config{
		Region:    a.config.S3Region,
		Endpoint:  a.config.S3Endpoint,
		AccessKey: a.config.S3AccessKey,
		SecretKey: a.config.S3SecretKey,
	}))
	if err != nil {
		return err
	}
	defer records.Close()

	return a.send(ctx, records, a.config.Mode == source.Lines)
}

// send sends records to the configured endpoint, keeping failures in the dead letter log if any.
func (a *App) send(ctx context.Context, records ingest.Records, sentinel bool) (err error) {
	reg := prometheus.NewRegistry()
	defer func() {
		if a.config.MetricsFile == "" {
			return
		}
		err = errors.Join(err, ingest.WriteFile(reg, a.config.MetricsFile))
	}()

	idx, err := index.New(a.config.Backend, a.endpoint(),
		index.WithTransport(ingest.InstrumentTransport(reg, nil)),
		index.WithIDPath(a.config.IDPath),
	)
	if err != nil {
		return err
	}
	defer idx.Close()

	opts := []ingest.Option{
		ingest.WithOutput(a.cmd.OutOrStdout()),
		ingest.WithPolicy(a.config.Policy),
		ingest.WithSentinel(sentinel),
		ingest.WithMetrics(ingest.NewMetrics(reg)),
	}
	if a.config.DeadLetterDir != "" {
		dl, err := deadletter.Open(a.config.DeadLetterDir)
		if err != nil {
			return err
		}
		defer dl.Close()
		opts = append(opts, ingest.WithDeadLetter(dl))
	}

	in := ingest.New(idx, opts...)
	slog.Info("Sending records", "run", in.RunID(), "backend", a.config.Backend, "url", a.config.URL, "collection", a.config.Collection)

	return in.Send(ctx, records)
}

func (a *App) endpoint() index.Endpoint {
	return index.Endpoint{
		URL:          a.config.URL,
		Collection:   a.config.Collection,
		CommitWithin: a.config.CommitWithin,
		Overwrite:    a.config.Overwrite,
		WT:           a.config.WT,
		CacheBuster:  a.config.CacheBuster,
		Username:     a.config.Username,
		Password:     a.config.Password,
		Timeout:      a.config.Timeout,
	}
}

// redacted returns the configuration without secrets, for logging.
func (c appConfig) redacted() appConfig {
	if c.Password != "" {
		c.Password = "***"
	}
	if c.S3SecretKey != "" {
		c.S3SecretKey = "***"
	}
	return c
}
