// relay - a terminal chat client for local Ollama models.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/relay-tui/internal/config"
	"github.com/jeranaias/relay-tui/internal/flush"
	"github.com/jeranaias/relay-tui/internal/ollama"
	"github.com/jeranaias/relay-tui/internal/storage"
	"github.com/jeranaias/relay-tui/internal/ui/chat"
	"github.com/jeranaias/relay-tui/internal/ui/styles"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	args := os.Args[1:]

	if len(args) > 0 {
		switch args[0] {
		case "version", "--version", "-v":
			fmt.Printf("relay %s (%s, built %s)\n", Version, GitCommit, BuildDate)
			return
		case "ask":
			os.Exit(runAsk(args[1:]))
		case "models":
			os.Exit(runModels())
		case "history":
			os.Exit(runHistory())
		case "export":
			os.Exit(runExport(args[1:]))
		case "help", "--help", "-h":
			printUsage()
			return
		default:
			fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
			printUsage()
			os.Exit(2)
		}
	}

	os.Exit(runTUI())
}

func printUsage() {
	fmt.Print(`relay - terminal chat for local Ollama models

Usage:
  relay                   start the interactive TUI
  relay ask <prompt>      one-shot prompt, streamed to stdout
  relay models            list installed Ollama models
  relay history           list stored transcripts
  relay export <id> <path>  export a stored transcript as JSON
  relay version           print version information

Environment:
  RELAY_MODEL             override the configured model
  RELAY_OLLAMA_URL        override the Ollama base URL
  RELAY_FLUSH_THRESHOLD   override the flush length threshold
`)
}

// loadConfig loads ~/.relay/config.toml, falling back to defaults when the
// file does not exist yet.
func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v (using defaults)\n", err)
		cfg = config.Default()
		cfg.ApplyEnvOverrides()
		cfg.SetDefaults()
	}
	config.SetGlobal(cfg)
	return cfg
}

func newClient(cfg *config.Config) *ollama.Client {
	return ollama.NewClientWithConfig(&ollama.ClientConfig{
		BaseURL:      cfg.Local.OllamaURL,
		Timeout:      120 * time.Second,
		DefaultModel: cfg.Local.OllamaModel,
	})
}

func openStore(cfg *config.Config) *storage.Store {
	if !cfg.Storage.Enabled {
		return nil
	}
	path := cfg.Storage.Path
	if path == "" {
		var err error
		path, err = storage.DefaultPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "storage: %v (persistence disabled)\n", err)
			return nil
		}
	}
	store, err := storage.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "storage: %v (persistence disabled)\n", err)
		return nil
	}
	return store
}

// =============================================================================
// TUI MODE
// =============================================================================

func runTUI() int {
	cfg := loadConfig()
	client := newClient(cfg)
	store := openStore(cfg)
	if store != nil {
		defer store.Close()
	}

	theme := styles.NewTheme()
	model := chat.New(cfg, client, store, theme)

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())

	// Live-reload the config file while the TUI runs. Edits to flush rules
	// or thresholds apply to the next stream.
	if path, err := config.ConfigPath(); err == nil {
		watcher, werr := config.NewWatcher(path, 200*time.Millisecond, func(updated *config.Config) {
			config.SetGlobal(updated)
			p.Send(chat.StatusMsg{Text: "config reloaded"})
		})
		if werr == nil && watcher.Watch() == nil {
			defer watcher.Close()
		}
	}

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		return 1
	}
	return 0
}

// =============================================================================
// ONE-SHOT MODE
// =============================================================================

// runAsk streams a single reply to stdout, one flushed segment at a time.
func runAsk(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: relay ask <prompt>")
		return 2
	}
	prompt := strings.Join(args, " ")

	cfg := loadConfig()
	client := newClient(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess := flush.NewSession(flush.Options{
		Threshold:       cfg.Flush.LengthThreshold,
		DiscardOnCancel: cfg.Flush.DiscardOnCancel,
		Catalog:         cfg.BuildCatalog(),
	}, func(seg flush.Segment) {
		os.Stdout.WriteString(seg.Text)
		if cfg.UI.ShowReasons {
			fmt.Fprintf(os.Stderr, "[%s]\n", seg.Reason)
		}
	})

	pump := ollama.NewPump(client)
	err := pump.Run(ctx, cfg.Local.OllamaModel, []ollama.Message{ollama.NewUserMessage(prompt)}, sess)
	fmt.Println()

	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "interrupted")
			return 130
		}
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		return 1
	}

	if stats := pump.Stats(); stats != nil {
		fmt.Fprintln(os.Stderr, stats.Format())
	}
	return 0
}

// =============================================================================
// UTILITY COMMANDS
// =============================================================================

func runModels() int {
	cfg := loadConfig()
	client := newClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	models, err := client.ListModels(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		return 1
	}

	for _, m := range models {
		marker := " "
		if m.Name == cfg.Local.OllamaModel {
			marker = "*"
		}
		fmt.Printf("%s %-40s %s\n", marker, m.Name, m.FormatSize())
	}
	return 0
}

func runHistory() int {
	cfg := loadConfig()
	store := openStore(cfg)
	if store == nil {
		fmt.Fprintln(os.Stderr, "relay: transcript storage is disabled")
		return 1
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	list, err := store.List(ctx, 25)
	if err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		return 1
	}
	if len(list) == 0 {
		fmt.Println("no stored transcripts")
		return 0
	}

	for _, t := range list {
		status := "done"
		if t.Aborted {
			status = "aborted"
		} else if t.CompletedAt.IsZero() {
			status = "incomplete"
		}
		fmt.Printf("%s  %s  [%s]  %s\n",
			t.CreatedAt.Format("2006-01-02 15:04"), t.ID, status, t.Prompt)
	}
	return 0
}

func runExport(args []string) int {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: relay export <id> <path>")
		return 2
	}

	cfg := loadConfig()
	store := openStore(cfg)
	if store == nil {
		fmt.Fprintln(os.Stderr, "relay: transcript storage is disabled")
		return 1
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.ExportJSON(ctx, args[0], args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		return 1
	}
	fmt.Println("exported to " + args[1])
	return 0
}
