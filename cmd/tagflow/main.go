package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/mmcdole/tagflow/internal/api"
	"github.com/mmcdole/tagflow/internal/config"
	"github.com/mmcdole/tagflow/internal/domain"
	"github.com/mmcdole/tagflow/internal/log"
	"github.com/mmcdole/tagflow/internal/player"
	"github.com/mmcdole/tagflow/internal/realtime"
	"github.com/mmcdole/tagflow/internal/segment"
	"github.com/mmcdole/tagflow/internal/service"
	"github.com/mmcdole/tagflow/internal/store"
	"github.com/mmcdole/tagflow/internal/tui"
)

// Version is set at build time via -ldflags
var Version = "dev"

// clearSpinnerLine clears the spinner line from the terminal
const clearSpinnerLine = "\r                                    \r"

func main() {
	var (
		showVersion bool
		configPath  string
		configCheck bool
		showStats   bool
		clearCache  bool
		saveConfig  bool
	)
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.StringVar(&configPath, "config", "", "path to config.yaml")
	flag.BoolVar(&configCheck, "config-check", false, "validate configuration and exit")
	flag.BoolVar(&showStats, "stats", false, "print catalog and trash stats and exit")
	flag.BoolVar(&clearCache, "clear-cache", false, "remove cached segment snapshots and exit")
	flag.BoolVar(&saveConfig, "save-config", false, "write the effective configuration to the default config file and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("tagflow %s\n", Version)
		return
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	switch {
	case configCheck:
		fmt.Printf("✓ Configuration valid (server %s)\n", cfg.Server.URL)
		return
	case clearCache:
		if err := config.ClearCache(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("✓ Cache cleared")
		return
	case saveConfig:
		if err := config.SaveConfig(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("✓ Configuration saved")
		return
	}

	if err := run(cfg, showStats); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadConfigFile(path)
	}
	return config.LoadConfig()
}

func run(cfg *config.Config, showStats bool) error {
	// Setup logger
	logger, err := log.SetupLogger(&cfg.Logging, log.Session{Version: Version, Server: cfg.Server.URL})
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = log.NullLogger()
	}
	slog.SetDefault(logger)

	logger.Info("starting tagflow", "websocket", cfg.Server.WebsocketURL, "realtime", cfg.Realtime.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interactive := term.IsTerminal(int(os.Stdout.Fd()))

	stats, err := probeServer(ctx, cfg.Server.URL, interactive)
	if err != nil {
		return fmt.Errorf("cannot reach Tag-Flow server at %s: %w", cfg.Server.URL, err)
	}
	logger.Info("server reachable", "stats", stats)

	client := api.NewClient(cfg.Server.URL, cfg.Server.Timeout, log.Component(logger, "api"))
	if showStats {
		return printStats(ctx, client)
	}

	snapshots, err := store.NewSnapshotStore(cfg.Cache.Path, cfg.Server.URL, log.Component(logger, "store"))
	if err != nil {
		// Run without warm start rather than fail
		logger.Warn("snapshot store unavailable, using memory only", "error", err)
		snapshots, _ = store.NewSnapshotStore("", "", logger)
	}

	cache := segment.NewCache(segment.Options{
		MaxSegments:    cfg.Cache.MaxSegments,
		Snapshots:      snapshots,
		SnapshotMaxAge: cfg.Cache.SnapshotMaxAge,
		Logger:         log.Component(logger, "segment"),
	})
	defer cache.Close()

	gallery := service.NewGallery(client, cache, service.GalleryOptions{
		PageSize:     cfg.Pagination.PageSize,
		FetchTimeout: cfg.Server.Timeout,
		Logger:       log.Component(logger, "gallery"),
		Context:      ctx,
	})
	defer gallery.Close()

	if !interactive {
		return printGallery(ctx, gallery)
	}

	var (
		rt  *realtime.Client
		inv *realtime.Invalidator
	)
	if cfg.Realtime.Enabled {
		rt = realtime.NewClient(realtime.Options{
			URL:               cfg.Server.WebsocketURL,
			HeartbeatInterval: cfg.Realtime.HeartbeatInterval,
			InitialBackoff:    cfg.Realtime.InitialBackoff,
			MaxBackoff:        cfg.Realtime.MaxBackoff,
			MaxAttempts:       cfg.Realtime.MaxReconnectAttempts,
			Logger:            logger,
		})
		inv = realtime.NewInvalidator(cache, logger)
		inv.Attach(rt)
		gallery.WatchInvalidations(inv)
		rt.Connect(ctx)
		defer rt.Disconnect()
		defer inv.Detach()
	}

	model := tui.NewModel(tui.Options{
		Gallery:         gallery,
		Player:          player.NewLauncher(cfg.Player.Command, cfg.Player.Args, log.Component(logger, "player")),
		Realtime:        rt,
		Invalidator:     inv,
		ScrollThreshold: cfg.Pagination.ScrollThreshold,
		Debounce:        cfg.Pagination.Debounce,
		Logger:          log.Component(logger, "tui"),
		Context:         ctx,
	})
	defer model.Shutdown()

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	logger.Info("starting TUI")
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		logger.Error("TUI error", "error", err)
		return fmt.Errorf("TUI error: %w", err)
	}

	logger.Info("shutting down")
	return nil
}

// probeServer checks the backend, showing a spinner on a terminal
func probeServer(ctx context.Context, serverURL string, interactive bool) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if !interactive {
		return api.Probe(ctx, serverURL)
	}

	type result struct {
		stats map[string]any
		err   error
	}
	resultCh := make(chan result, 1)
	go func() {
		stats, err := api.Probe(ctx, serverURL)
		resultCh <- result{stats, err}
	}()

	frames := spinner.Dot.Frames
	frame := 0
	fmt.Printf("\r%s Connecting to %s...", frames[frame], serverURL)

	ticker := time.NewTicker(spinner.Dot.FPS)
	defer ticker.Stop()

	for {
		select {
		case res := <-resultCh:
			fmt.Print(clearSpinnerLine)
			return res.stats, res.err
		case <-ticker.C:
			frame++
			fmt.Printf("\r%s Connecting to %s...", frames[frame%len(frames)], serverURL)
		case <-ctx.Done():
			fmt.Print(clearSpinnerLine)
			return nil, fmt.Errorf("connection timed out")
		}
	}
}

func printStats(ctx context.Context, client *api.Client) error {
	stats, err := client.Stats(ctx)
	if err != nil {
		return err
	}
	trash, err := client.TrashStats(ctx)
	if err != nil {
		return err
	}
	out := map[string]domain.Stats{"gallery": stats, "trash": trash}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// printGallery writes the first gallery page as tab-separated lines for pipes
func printGallery(ctx context.Context, g *service.Gallery) error {
	s := g.Store(domain.GalleryScope)
	if err := s.LoadFirstPage(ctx); err != nil {
		return err
	}
	for _, v := range s.State().Posts {
		fmt.Printf("%s\t%s\t%s\t%s\t%s\n", v.ID, v.Platform, v.Creator, v.DisplayTitle(), v.FilePath)
	}
	return nil
}
