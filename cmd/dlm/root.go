package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teal33t/dlm/internal/config"
	"github.com/teal33t/dlm/internal/control"
	"github.com/teal33t/dlm/internal/events"
	"github.com/teal33t/dlm/internal/ledger"
	"github.com/teal33t/dlm/internal/probe"
)

const defaultProgressChannelBuffer = 64

var rootCmd = &cobra.Command{
	Use:   "dlm",
	Short: "a multi-connection download manager",
	Long:  `dlm downloads files over HTTP using multiple concurrent range requests.`,
}

// Execute adds all child commands to the root command and runs it. Called
// once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(resumeInterruptedCmd)
	rootCmd.AddCommand(setSpeedLimitCmd)
	rootCmd.AddCommand(setConnectionsCmd)
	rootCmd.AddCommand(clearHistoryCmd)
	rootCmd.AddCommand(removeCmd)
}

// buildService loads settings and the ledger and wires a fresh control.Svc,
// the same three steps every subcommand needs before it can do anything.
// folderOverride and connectionsOverride, when non-zero, replace the
// persisted download folder / connection count for this invocation only
// (the -p/--path and -c/--connections flags on `get`), without persisting
// the override back to settings.json.
func buildService(folderOverride string, connectionsOverride int) (*control.Svc, *ledger.Ledger, *events.ChanSink, error) {
	settings, err := config.LoadSettings()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load settings: %w", err)
	}
	if folderOverride != "" {
		settings.DownloadFolder = folderOverride
	}
	if connectionsOverride > 0 {
		settings.Connections = connectionsOverride
	}

	l := ledger.New(config.GetLedgerPath())
	if err := l.Load(); err != nil {
		return nil, nil, nil, fmt.Errorf("load ledger: %w", err)
	}

	sink := events.NewChanSink(defaultProgressChannelBuffer)
	svc := control.New(l, settings, probe.New(""), sink)
	return svc, l, sink, nil
}
