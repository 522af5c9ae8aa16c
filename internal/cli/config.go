// Package cli provides utility functions for command line interface applications.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/ubuntu/decorate"
)

// InitViperConfig initializes the Viper configuration for a command.
//
// Flag names are the configuration keys. Environment variables are prefixed with the upper-cased
// command name, and dashes in keys are replaced with underscores (commit-within -> SOLR_INGEST_COMMIT_WITHIN).
func InitViperConfig(cmdName string, cmd *cobra.Command, vip *viper.Viper) error {
	if v, err := cmd.Flags().GetString("config"); err == nil && v != "" {
		vip.SetConfigFile(v)
	} else {
		vip.SetConfigName(cmdName)
		vip.AddConfigPath(".")

		if runtime.GOOS == "windows" {
			vip.AddConfigPath("C:\\ProgramData\\" + cmdName)
		} else {
			vip.AddConfigPath("/etc/" + cmdName)
			vip.AddConfigPath("/usr/local/etc/" + cmdName)
		}

		if binPath, err := os.Executable(); err != nil {
			slog.Warn("Failed to get current executable path, not adding it as a config dir", "error", err)
		} else {
			vip.AddConfigPath(filepath.Dir(binPath))
		}
	}
	if err := vip.ReadInConfig(); err != nil {
		var e viper.ConfigFileNotFoundError
		if errors.As(err, &e) {
			slog.Info("No configuration file.\nWe will only use the defaults, env variables or flags.", "error", e)
		} else {
			return fmt.Errorf("invalid configuration file: %w", err)
		}
	} else {
		slog.Info("Using configuration file", "file", vip.ConfigFileUsed())
	}

	// Handle environment.
	envPrefix := strings.ToUpper(strings.ReplaceAll(cmdName, "-", "_"))
	vip.SetEnvPrefix(envPrefix)
	vip.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	vip.AutomaticEnv()

	// Visit manually env to bind every possibly related environment variable to be able to unmarshal
	// those into a struct.
	// More context on https://github.com/spf13/viper/pull/1429.
	prefix := envPrefix + "_"
	for _, e := range os.Environ() {
		if !strings.HasPrefix(e, prefix) {
			continue
		}

		s := strings.SplitN(e, "=", 2)
		k := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(s[0], prefix), "_", "-"))
		if err := vip.BindEnv(k, s[0]); err != nil {
			return fmt.Errorf("could not bind environment variable: %w", err)
		}
	}

	return nil
}

// InstallConfigFlag adds a config flag to the command.
func InstallConfigFlag(cmd *cobra.Command) *string {
	return cmd.PersistentFlags().String("config", "", "use a specific configuration file")
}

// LoadEnvFile loads variables from a dotenv file into the process environment.
// Variables already set in the environment are kept.
//
// A missing file is only an error if required is true.
func LoadEnvFile(path string, required bool) (err error) {
	defer decorate.OnError(&err, "could not load env file %q", path)

	if path == "" {
		return nil
	}

	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			slog.Debug("No env file", "file", path)
			return nil
		}
		return err
	}
	slog.Info("Loaded env file", "file", path)

	return nil
}

// DecodeHook returns the viper decoder option used to unmarshal configuration into typed fields:
// text types (modes, policies, backends) and durations.
// A duration given as a bare integer, in a configuration file or the environment, is in milliseconds.
func DecodeHook() viper.DecoderConfigOption {
	return viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		millisecondsHookFunc,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
}

// millisecondsHookFunc decodes integers, and strings holding only an integer, into a time.Duration in milliseconds.
func millisecondsHookFunc(_ reflect.Type, t reflect.Type, data any) (any, error) {
	if t != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}

	var ms int64
	switch v := data.(type) {
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			// Not a bare integer, let the duration parser handle it.
			return data, nil
		}
		ms = n
	case int:
		ms = int64(v)
	case int64:
		ms = v
	case uint64:
		ms = int64(v)
	default:
		return data, nil
	}

	return time.Duration(ms) * time.Millisecond, nil
}
