package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/arclabs/arc/internal/config"
)

func logsCmd() *cobra.Command {
	var events bool
	var follow bool
	var lines int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show arc's log files",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := filepath.Join(config.Dir(), "logs")
			day := time.Now().Format("20060102")
			path := filepath.Join(dir, fmt.Sprintf("arc_%s.log", day))
			if events {
				path = filepath.Join(dir, fmt.Sprintf("events_%s.jsonl", day))
			}
			return tailFile(cmd, path, lines, follow)
		},
	}
	cmd.Flags().BoolVar(&events, "events", false, "show today's event journal instead of the agent log")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new lines")
	cmd.Flags().IntVarP(&lines, "lines", "n", 40, "number of trailing lines to show")
	return cmd
}
