package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"groundbot/internal/audit"
	"groundbot/internal/config"
	"groundbot/internal/docstore"
	"groundbot/internal/provider"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your groundbot installation",
		Long: `Verifies that groundbot's configuration, document store access, generation
API key, and audit database are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("groundbot doctor v%s\n\n", version)

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists
			if _, err := os.Stat(config.ExpandPath(cfgPath)); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'groundbot init' to create a default configuration.\n")
				return fmt.Errorf("1 check(s) failed")
			}
			printPass("Config file", cfgPath)
			passed++

			// 2. Config loads and validates
			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\nResults: %d passed, %d failed\n", passed, failed)
				return fmt.Errorf("%d check(s) failed", failed)
			}
			printPass("Config validation", "valid")
			passed++

			// 3. Secrets resolved (unexpanded ${VAR} placeholders mean a
			// missing environment variable).
			for _, check := range secretChecks(cfg) {
				if check.set {
					printPass("Secret: "+check.name, "set")
					passed++
				} else {
					printFail("Secret: "+check.name, "not set")
					failed++
				}
			}

			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			logger := newLogger("error")

			// 4. Grounding document reachable
			fetcher := docstore.NewClient(docstore.ClientConfig{
				APIBase:     cfg.Document.APIBase,
				AccessToken: cfg.Document.AccessToken,
				Timeout:     time.Duration(cfg.Document.FetchTimeoutSeconds) * time.Second,
				Logger:      logger,
			})
			if err := fetcher.Probe(ctx, cfg.Document.ID); err != nil {
				printFail("Document", err.Error())
				failed++
			} else {
				printPass("Document", cfg.Document.ID)
				passed++
			}

			// 5. Generation API reachable
			gemini := provider.NewGemini(provider.GeminiConfig{
				APIKey:  cfg.Gemini.APIKey,
				APIBase: cfg.Gemini.APIBase,
				Model:   cfg.Gemini.Model,
				Timeout: 10 * time.Second,
				Logger:  logger,
			})
			if err := gemini.Healthy(ctx); err != nil {
				printFail("Generation API", err.Error())
				failed++
			} else {
				printPass("Generation API", cfg.Gemini.Model)
				passed++
			}

			// 6. Audit database writable
			if cfg.Audit.Enabled {
				store, err := audit.NewStore(cfg.Audit.DBPath, logger)
				if err != nil {
					printFail("Audit database", err.Error())
					failed++
				} else {
					store.Close()
					printPass("Audit database", cfg.Audit.DBPath)
					passed++
				}
			}

			// 7. Webhook port available
			if err := checkPort(cfg.Line.Port); err != nil {
				printWarn("Webhook port", fmt.Sprintf("port %d may be in use: %v", cfg.Line.Port, err))
				warned++
			} else {
				printPass("Webhook port", fmt.Sprintf(":%d available", cfg.Line.Port))
				passed++
			}

			fmt.Printf("\nResults: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running groundbot.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\ngroundbot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! groundbot is ready to run.\n")
			}
			return nil
		},
	}
}

type secretCheck struct {
	name string
	set  bool
}

// secretChecks reports the required credentials in a fixed order so doctor
// output is stable across runs.
func secretChecks(cfg *config.Config) []secretCheck {
	resolved := func(val string) bool {
		return val != "" && !strings.HasPrefix(val, "${")
	}
	return []secretCheck{
		{"line.channelSecret", resolved(cfg.Line.ChannelSecret)},
		{"line.channelAccessToken", resolved(cfg.Line.ChannelAccessToken)},
		{"document.accessToken", resolved(cfg.Document.AccessToken)},
		{"gemini.apiKey", resolved(cfg.Gemini.APIKey)},
	}
}

func checkPort(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-22s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-22s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-22s %s\n", check, detail)
}
