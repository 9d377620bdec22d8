package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sho7650/media-wall/internal/config"
	"github.com/sho7650/media-wall/internal/engine"
	"github.com/sho7650/media-wall/internal/storage"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		return
	}

	command := os.Args[1]

	var err error
	switch command {
	case "validate":
		err = runValidate(argAt(2))
	case "status":
		err = runStatus(argAt(2))
	case "snapshot":
		err = runSnapshot(argAt(2))
	case "version":
		runVersion()
	case "help":
		printUsage()
	default:
		fmt.Printf("❌ Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("❌ %v\n", err)
		os.Exit(1)
	}
}

func argAt(i int) string {
	if len(os.Args) > i {
		return os.Args[i]
	}
	return ""
}

func printUsage() {
	fmt.Println("media-wall-cli - live photo wall operator tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  media-wall-cli validate <config>   - Validate a wall configuration file")
	fmt.Println("  media-wall-cli status <config>     - Show the sync journal of the configured event")
	fmt.Println("  media-wall-cli snapshot <url>      - Print the state of a running wall daemon")
	fmt.Println("  media-wall-cli version             - Show version information")
	fmt.Println("  media-wall-cli help                - Show this help message")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	return config.NewConfigManager(zerolog.Nop()).LoadFromFile(context.Background(), path)
}

func runValidate(path string) error {
	fmt.Printf("🔍 Validating %s...\n", path)

	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}

	fmt.Println("✅ Configuration is valid")
	fmt.Printf("  • share token:       %s\n", cfg.Wall.ShareToken)
	fmt.Printf("  • pull endpoint:     %s\n", cfg.Wall.BaseURL)
	if cfg.Wall.StreamURL == "" {
		fmt.Println("  • push channel:      none (fallback polling only)")
	} else {
		fmt.Printf("  • push channel:      %s\n", cfg.Wall.StreamURL)
	}
	fmt.Printf("  • throttle window:   %s\n", cfg.Sync.ThrottleWindow)
	fmt.Printf("  • fallback interval: %s\n", cfg.Sync.FallbackInterval)
	if cfg.Storage.Path == "" {
		fmt.Println("  • journal:           in memory")
	} else {
		fmt.Printf("  • journal:           %s\n", cfg.Storage.Path)
	}
	return nil
}

func runStatus(path string) error {
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	if cfg.Storage.Path == "" {
		return fmt.Errorf("no storage.path configured; the journal only lives inside the daemon")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	journal := storage.NewSQLiteJournal(cfg.Storage.Path)
	if err := journal.Initialize(ctx); err != nil {
		return err
	}
	defer func() { _ = journal.Close() }()

	fmt.Printf("📊 Sync status for %s\n", cfg.Wall.ShareToken)

	state, err := journal.GetSyncState(ctx, cfg.Wall.ShareToken)
	if err != nil {
		return err
	}
	if state == nil {
		fmt.Println("💡 No pulls recorded yet.")
		return nil
	}
	fmt.Printf("  • last pull:    %s\n", state.LastPullAt.Format(time.RFC3339))
	fmt.Printf("  • last success: %s\n", formatTime(state.LastSuccessAt))
	fmt.Printf("  • items:        %d\n", state.ItemCount)
	fmt.Printf("  • pulls:        %d (%d failed)\n", state.PullsTotal, state.PullsFailed)

	records, err := journal.RecentPulls(ctx, storage.PullQuery{ShareToken: cfg.Wall.ShareToken, Limit: 10})
	if err != nil {
		return err
	}
	fmt.Println("\n🔄 Recent pulls:")
	for _, r := range records {
		outcome := fmt.Sprintf("%d items", r.ItemCount)
		if r.Replaced {
			outcome += ", replaced"
		}
		if r.Failed() {
			outcome = "failed: " + r.Error
		}
		fmt.Printf("  • %s %-17s %s\n", r.FinishedAt.Format(time.RFC3339), r.Reason, outcome)
	}
	return nil
}

func runSnapshot(baseURL string) error {
	if baseURL == "" {
		return fmt.Errorf("daemon url is required")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(strings.TrimRight(baseURL, "/") + "/api/wall")
	if err != nil {
		return fmt.Errorf("failed to reach daemon: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var view engine.View
	if err := json.Unmarshal(body, &view); err != nil {
		return fmt.Errorf("failed to decode wall state: %w", err)
	}

	fmt.Printf("🖼  Wall %s\n", view.ShareToken)
	fmt.Printf("  • state:      %s (%s)\n", view.State, view.Playback.DisplayMode)
	fmt.Printf("  • items:      %d, cursor %d\n", len(view.Items), view.Cursor)
	if view.Current != nil {
		fmt.Printf("  • showing:    %s\n", view.Current.ID)
	}
	fmt.Printf("  • connected:  %t (authenticated %t)\n", view.Connection.Connected, view.Connection.Authenticated)
	fmt.Printf("  • events:     %d received, %d dropped\n", view.Stream.Received, view.Stream.Dropped)
	fmt.Printf("  • viewers:    %d\n", view.Stats.ViewerCount)
	fmt.Printf("  • last pull:  %s\n", formatTime(view.Sync.LastPullAt))
	if view.InitialError != "" {
		fmt.Printf("  ⚠️  initial load failed: %s\n", view.InitialError)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.RFC3339)
}

func runVersion() {
	fmt.Printf("media-wall-cli version %s\n", version)
}
