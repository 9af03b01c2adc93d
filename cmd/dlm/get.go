package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"

	"github.com/teal33t/dlm/internal/events"
	"github.com/teal33t/dlm/internal/ledger"
)

const progressBarTemplate = `{{string . "prefix"}}{{counters . }} {{bar . }} {{percent . }} {{speed . }} {{rtime . "ETA %s"}}`

var getCmd = &cobra.Command{
	Use:   "get [url]",
	Short: "download a file from a URL",
	Long:  `get downloads a file from a URL using multiple concurrent connections and saves it to the local filesystem.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawURL := args[0]
		outPath, _ := cmd.Flags().GetString("path")
		connections, _ := cmd.Flags().GetInt("connections")
		quiet, _ := cmd.Flags().GetBool("quiet")

		svc, l, sink, err := buildService(outPath, connections)
		if err != nil {
			return err
		}

		ctx := context.Background()
		info, err := svc.FetchURLInfo(ctx, rawURL, nil)
		if err != nil {
			return fmt.Errorf("probe failed: %w", err)
		}

		filenameHint := info.Filename
		id, err := svc.StartDownload(ctx, rawURL, filenameHint, info.Size, info.Resumable, nil)
		if err != nil {
			return err
		}

		var bar *pb.ProgressBar
		if !quiet && info.Size > 0 {
			bar = pb.ProgressBarTemplate(progressBarTemplate).Start64(info.Size)
			bar.Set(pb.Bytes, true)
			bar.Set(pb.SIBytesPrefix, true)
			bar.Set("prefix", "Downloading: ")
		}

		return waitForCompletion(l, sink, id, bar)
	},
}

func init() {
	getCmd.Flags().StringP("path", "p", "", "the path to the download folder")
	getCmd.Flags().IntP("connections", "c", 0, "number of concurrent connections (0 = use configured default)")
	getCmd.Flags().BoolP("quiet", "q", false, "suppress the progress bar")
}

// waitForCompletion drains the job's event stream until a download-complete
// or download-error is observed for id, updating the optional progress bar
// as download-progress events arrive.
func waitForCompletion(l *ledger.Ledger, sink *events.ChanSink, id string, bar *pb.ProgressBar) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case e := <-sink.Events():
			switch ev := e.(type) {
			case events.ProgressEvent:
				if ev.ID == id && bar != nil {
					bar.SetCurrent(ev.Downloaded)
				}
			case events.CompleteEvent:
				if ev.ID == id {
					if bar != nil {
						bar.Finish()
					}
					fmt.Printf("Saved to %s\n", ev.Path)
					return nil
				}
			case events.ErrorEvent:
				if ev.ID == id {
					if bar != nil {
						bar.Finish()
					}
					return ev.Err
				}
			}
		case <-ticker.C:
			record, err := l.Get(id)
			if err != nil {
				continue
			}
			switch record.Status {
			case ledger.StatusCompleted:
				if bar != nil {
					bar.Finish()
				}
				fmt.Printf("Saved to %s\n", record.FilePath)
				return nil
			case ledger.StatusFailed, ledger.StatusCancelled:
				if bar != nil {
					bar.Finish()
				}
				return fmt.Errorf("download %s: %s", id, record.Status)
			}
		}
	}
}
