package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// pause/resume/cancel act on an active job's handle, which only exists
// inside the process that started the transfer. This CLI is a one-shot
// process per invocation (mirroring the teacher's `get` command) with its
// own control surface, so these three never see a handle started by
// another `dlm` process and return an invalid-request error for it; they
// are still wired end to end against the control surface.

var pauseCmd = &cobra.Command{
	Use:   "pause [id]",
	Short: "pause an active download",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, _, _, err := buildService("", 0)
		if err != nil {
			return err
		}
		return svc.PauseDownload(args[0])
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume [id]",
	Short: "resume a paused, still-active download",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, _, _, err := buildService("", 0)
		if err != nil {
			return err
		}
		return svc.ResumeDownload(args[0])
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "cancel an active download",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, _, _, err := buildService("", 0)
		if err != nil {
			return err
		}
		return svc.CancelDownload(args[0])
	},
}

var resumeInterruptedCmd = &cobra.Command{
	Use:   "resume-interrupted [id]",
	Short: "resume a download left Paused or Failed by a previous run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, l, sink, err := buildService("", 0)
		if err != nil {
			return err
		}
		id := args[0]
		if err := svc.ResumeInterruptedDownload(context.Background(), id); err != nil {
			return err
		}
		return waitForCompletion(l, sink, id, nil)
	},
}

var setSpeedLimitCmd = &cobra.Command{
	Use:   "set-speed-limit [bytes-per-second]",
	Short: "set the global download speed cap (0 = unlimited)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid speed limit %q: %w", args[0], err)
		}
		svc, _, _, err := buildService("", 0)
		if err != nil {
			return err
		}
		return svc.SetSpeedLimit(n)
	},
}

var setConnectionsCmd = &cobra.Command{
	Use:   "set-connections [n]",
	Short: "set the default number of concurrent connections (1-32)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid connection count %q: %w", args[0], err)
		}
		svc, _, _, err := buildService("", 0)
		if err != nil {
			return err
		}
		return svc.SetConnections(n)
	},
}

var clearHistoryCmd = &cobra.Command{
	Use:   "clear-history",
	Short: "remove all completed, failed, and cancelled downloads from history",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, _, _, err := buildService("", 0)
		if err != nil {
			return err
		}
		return svc.ClearDownloadHistory()
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "remove one download from history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, _, _, err := buildService("", 0)
		if err != nil {
			return err
		}
		return svc.RemoveFromHistory(args[0])
	},
}
