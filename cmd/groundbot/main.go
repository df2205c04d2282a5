package main

import (
	"context"
	"fmt"
	"os"

	"groundbot/internal/audit"
	"groundbot/internal/config"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	configPath string // overridable via --config flag
)

func main() {
	root := &cobra.Command{
		Use:   "groundbot",
		Short: "groundbot: document-grounded question answering over a messaging webhook",
		Long: "groundbot answers user messages from a messaging platform webhook, " +
			"grounding every answer in one reference document fetched from Google Drive " +
			"and generated by the Gemini API.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.groundbot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			fmt.Printf("Config written to %s\n", cfgPath)
			fmt.Println("Fill in the ${...} placeholders or export the matching environment variables.")
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent request outcomes from the audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			if !cfg.Audit.Enabled {
				fmt.Println("audit log disabled in config")
				return nil
			}
			store, err := audit.NewStore(cfg.Audit.DBPath, newLogger(cfg.General.LogLevel))
			if err != nil {
				return err
			}
			defer store.Close()

			outcomes, err := store.RecentOutcomes(context.Background(), limit)
			if err != nil {
				return err
			}
			if len(outcomes) == 0 {
				fmt.Println("no requests recorded yet")
				return nil
			}
			for _, out := range outcomes {
				errKind := out.ErrorKind
				if errKind == "" {
					errKind = "-"
				}
				fmt.Printf("%s  %-8s  %-8s  %-22s  %5dms  %s\n",
					out.CreatedAt.Format("2006-01-02 15:04:05"),
					out.Channel, out.State, errKind, out.LatencyMS, out.ID)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of outcomes to show")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("groundbot v" + version)
		},
	}
}
