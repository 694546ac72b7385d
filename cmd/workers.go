package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/arclabs/arc/internal/config"
)

func workersCmd() *cobra.Command {
	var follow bool
	var lines int
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "Show background worker activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(config.Dir(), "logs", "workers.log")
			return tailFile(cmd, path, lines, follow)
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new lines")
	cmd.Flags().IntVarP(&lines, "lines", "n", 40, "number of trailing lines to show")
	return cmd
}

// tailFile prints the last n lines of path, then optionally polls for
// growth. A missing file is reported, not an error — the session may
// simply not have run yet.
func tailFile(cmd *cobra.Command, path string, lines int, follow bool) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s does not exist yet — start a session first.\n", path)
		return nil
	}
	if err != nil {
		return err
	}

	printTail(cmd, string(data), lines)
	if !follow {
		return nil
	}

	offset := int64(len(data))
	for {
		time.Sleep(time.Second)
		f, err := os.Open(path)
		if err != nil {
			// Rotated away; start over from the top.
			offset = 0
			continue
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return err
		}
		if info.Size() < offset {
			offset = 0
		}
		if info.Size() > offset {
			buf := make([]byte, info.Size()-offset)
			if _, err := f.ReadAt(buf, offset); err == nil {
				fmt.Fprint(cmd.OutOrStdout(), string(buf))
				offset = info.Size()
			}
		}
		f.Close()
	}
}

func printTail(cmd *cobra.Command, content string, n int) {
	all := strings.Split(strings.TrimRight(content, "\n"), "\n")
	if len(all) > n {
		all = all[len(all)-n:]
	}
	for _, line := range all {
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
}
