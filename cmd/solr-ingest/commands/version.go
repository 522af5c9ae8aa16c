package commands

import (
	"fmt"
	"io"

	"github.com/limingnihao/solr-ingest/internal/constants"
	"github.com/spf13/cobra"
)

func (a *App) installVersion() {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Returns the running version of " + constants.CmdName + " and exits",
		Args:  cobra.NoArgs,
		RunE:  func(cmd *cobra.Command, args []string) error { return getVersion(cmd.OutOrStdout()) },
	}
	a.cmd.AddCommand(cmd)
}

// getVersion prints the current version.
func getVersion(w io.Writer) (err error) {
	_, err = fmt.Fprintf(w, "%s\t%s\n", constants.CmdName, constants.Version)
	return err
}
