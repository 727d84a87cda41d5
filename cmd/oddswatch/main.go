// Command oddswatch runs the live flow: authenticate to every configured
// source, poll each continuously, fan snapshots out over the topic bus,
// and log cross-source odds comparisons as they're found.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/corvid-labs/tideline/internal/auth"
	"github.com/corvid-labs/tideline/internal/bus"
	"github.com/corvid-labs/tideline/internal/compare"
	"github.com/corvid-labs/tideline/internal/config"
	"github.com/corvid-labs/tideline/internal/demoadapter"
	"github.com/corvid-labs/tideline/internal/feed"
	"github.com/corvid-labs/tideline/internal/fxrate"
	"github.com/corvid-labs/tideline/internal/provider"
)

var (
	configPath string
	verbose    bool
)

var headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"})
var diffStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"})
var failStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"})

var rootCmd = &cobra.Command{
	Use:   "oddswatch",
	Short: "Watch multiple sources live and report cross-source odds differences",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.Flags().BoolVar(&verbose, "verbose", false, "enable debug logging")
}

func run() error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	clients := buildAdapters(cfg)
	if len(clients) == 0 {
		fmt.Println(failStyle.Render("no sources configured — nothing to watch"))
		return nil
	}

	authMgr := auth.New(clients, cfg.TokenTTL(), cfg.MaxAuthWorkers, auth.WithLogger(log))
	ctx := context.Background()
	authMgr.AuthenticateAll(ctx, false)

	b := bus.New(bus.Async, log)
	defer b.Close()

	// Live FX-rate fetching is an external collaborator the core only
	// depends on through fxrate.FetchFunc; this fixed table stands in
	// for a real rate provider so the binary is runnable end to end.
	fx := fxrate.New(func() (map[string]float64, error) {
		return map[string]float64{
			"GBP": 1.27,
			"EUR": 1.09,
			"AUD": 0.66,
			"CAD": 0.73,
		}, nil
	})

	listener := compare.New(b, fx, func(comparisons []compare.MarketComparison) {
		if len(comparisons) == 0 {
			return
		}
		for _, c := range comparisons {
			fmt.Println(diffStyle.Render(fmt.Sprintf("%s | %s | max diff %.6f", c.EventName, c.MarketName, c.MaxDiff())))
		}
	}, compare.WithMaxDenominator(cfg.MaxDenominator), compare.WithFractionTolerance(cfg.FractionTolerance), compare.WithMinSources(cfg.MinSources), compare.WithLogger(log))
	listener.Start()
	defer listener.Stop()

	fm := feed.NewManager(authMgr.AuthenticatedClients(), authMgr, b, cfg.EventTypeIDs, cfg.PollInterval(), log)
	fm.StartAll()

	fmt.Println(headingStyle.Render(fmt.Sprintf("oddswatch — %d source(s), poll interval %s", len(clients), cfg.PollInterval())))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("oddswatch: shutting down")
	fm.StopAll()
	return nil
}

func buildAdapters(cfg config.Config) map[string]provider.Adapter {
	clients := make(map[string]provider.Adapter)
	for name, url := range cfg.Sources {
		clients[name] = demoadapter.New(demoadapter.Config{
			Name:          name,
			URL:           url,
			IdentityField: "id",
			Buckets:       []string{name},
			Filename:      "records.json",
			Timeout:       10 * time.Second,
		})
	}
	return clients
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
