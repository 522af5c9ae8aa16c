package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/limingnihao/solr-ingest/internal/deadletter"
	"github.com/spf13/cobra"
)

func (a *App) installReplay() {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Send the records kept in the dead letter log again",
		Long: `Send the records kept in the dead letter log again, with the current endpoint configuration.

The log in --dead-letter-dir is moved aside first, so that records failing again are kept in a fresh log.
It is deleted once every record was replayed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.config.DeadLetterDir == "" {
				a.cmd.SilenceUsage = false
				return errors.New("replay requires --dead-letter-dir")
			}
			return a.replay(cmd.Context())
		},
	}
	a.cmd.AddCommand(cmd)
}

// replay sends again every record of the dead letter log.
func (a *App) replay(ctx context.Context) error {
	dir := a.config.DeadLetterDir

	old, err := deadletter.Detach(dir, time.Now())
	if err != nil {
		return err
	}
	if old == "" {
		slog.Info("No dead letter log to replay", "dir", dir)
		return nil
	}

	entries, err := readEntries(old)
	if err != nil {
		return fmt.Errorf("%v, dead letters are kept in %s", err, old)
	}
	slog.Info("Replaying dead letters", "count", len(entries), "from", old)

	if len(entries) > 0 {
		if err := a.send(ctx, deadletter.NewReplay(entries), false); err != nil {
			return fmt.Errorf("%w, previous dead letters are kept in %s", err, old)
		}
	}

	if err := os.RemoveAll(old); err != nil {
		return fmt.Errorf("failed to remove replayed dead letter log: %v", err)
	}
	return nil
}

func readEntries(dir string) (_ []deadletter.Entry, err error) {
	l, err := deadletter.Open(dir)
	if err != nil {
		return nil, err
	}
	defer func() { err = errors.Join(err, l.Close()) }()

	return l.Entries()
}
