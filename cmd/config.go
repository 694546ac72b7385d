package cmd

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/arclabs/arc/internal/config"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			var cfg *config.Config
			var err error
			if cfgFile != "" {
				cfg, err = config.LoadFile(cfgFile)
			} else {
				cfg, err = config.Load()
			}
			if err != nil {
				return err
			}

			masked := *cfg
			masked.Telegram.Token = mask(cfg.Telegram.Token)
			masked.Discord.Token = mask(cfg.Discord.Token)
			masked.Scheduler.PostgresDSN = mask(cfg.Scheduler.PostgresDSN)

			fmt.Fprintf(cmd.OutOrStdout(), "# resolved from %s, ./arc.toml, ARC_* env\n\n",
				config.UserConfigPath())
			return toml.NewEncoder(cmd.OutOrStdout()).Encode(masked)
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the user config file location",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), config.UserConfigPath())
		},
	})
	return cmd
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + "****"
}
