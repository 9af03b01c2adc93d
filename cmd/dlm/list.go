package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "list downloads newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, l, _, err := buildService("", 0)
		if err != nil {
			return err
		}

		records := l.AllSortedDescByCreatedAt()
		if len(records) == 0 {
			fmt.Println("no downloads yet")
			return nil
		}

		for _, r := range records {
			downloaded := r.TotalDownloaded()
			pct := 0.0
			if r.TotalSize > 0 {
				pct = float64(downloaded) / float64(r.TotalSize) * 100
			}
			fmt.Printf("%-20s %-10s %6.1f%%  %s / %s  %s\n",
				r.ID, r.Status, pct,
				humanize.Bytes(uint64(downloaded)), humanize.Bytes(uint64(r.TotalSize)),
				r.Filename)
		}
		return nil
	},
}
