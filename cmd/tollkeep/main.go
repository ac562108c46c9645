package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/tollkeep/tollkeep/internal/api"
	"github.com/tollkeep/tollkeep/internal/config"
	"github.com/tollkeep/tollkeep/internal/delivery"
	"github.com/tollkeep/tollkeep/internal/dispatch"
	"github.com/tollkeep/tollkeep/internal/entitlement"
	"github.com/tollkeep/tollkeep/internal/events"
	"github.com/tollkeep/tollkeep/internal/inspect"
	"github.com/tollkeep/tollkeep/internal/janitor"
	"github.com/tollkeep/tollkeep/internal/ledger"
	"github.com/tollkeep/tollkeep/internal/lock"
	"github.com/tollkeep/tollkeep/internal/log"
	"github.com/tollkeep/tollkeep/internal/notify"
	"github.com/tollkeep/tollkeep/internal/storage"
	"github.com/tollkeep/tollkeep/internal/tui/watch"
	"github.com/tollkeep/tollkeep/internal/webhook"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	_ = godotenv.Load()
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	if cmd == "--version" {
		return runVersion(args)
	}

	switch cmd {
	// --- NOUNS ---
	case "config":
		return runConfigNoun(args)
	case "delivery":
		return runDeliveryNoun(args)
	case "token":
		return runTokenNoun(args)

	// --- ROOT ACTIONS ---
	case "serve":
		if hasHelpFlag(args) {
			printServeHelp()
			return 0
		}
		return runServe(args)
	case "watch":
		if hasHelpFlag(args) {
			printWatchHelp()
			return 0
		}
		return runWatch(args)
	case "inspect": // Shorthand for 'delivery inspect'
		if hasHelpFlag(args) {
			printDeliveryInspectHelp()
			return 0
		}
		return runDeliveryInspect(args)
	case "version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: tollkeep version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("tollkeep %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}

	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	resolvedCommit := strings.TrimSpace(gitCommit)
	if resolvedCommit == "" || resolvedCommit == "unknown" {
		resolvedCommit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if resolvedCommit != "" {
		info.Commit = shortenCommit(resolvedCommit)
	}

	resolvedBuildTime := strings.TrimSpace(buildDate)
	if resolvedBuildTime == "" || resolvedBuildTime == "unknown" {
		resolvedBuildTime = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalizedBuildTime, ok := normalizeBuildTimeUTC(resolvedBuildTime); ok {
		info.BuildTime = normalizedBuildTime
	}

	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}

	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`tollkeep - Payment webhook receiver and entitlement ledger

Usage:
  tollkeep <command> [flags]

Service:
  serve             Run the webhook receiver in the foreground
  watch             Real-time delivery monitoring TUI

Config Commands:
  config check      Validate syntax, policy, and integrity
  config lock       Authorize current state (update integrity hashes)
  config show       Show resolved configuration with secrets masked
  config get        Read a single configuration value

Delivery Commands:
  delivery inspect <id>  Show a recorded delivery and how it was handled

Token Commands:
  token create      Generate a scoped admin API token
  token list        List configured tokens (values masked)

General:
  --version         Show version information
  version           Show version information
  help              Show this help message

Use 'tollkeep <command> help' for command-specific flags.
`)
}

// --- NOUN DISPATCHERS ---

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}

	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	case "show":
		if hasHelpFlag(actionArgs) {
			printConfigShowHelp()
			return 0
		}
		return runConfigShow(actionArgs)
	case "get":
		if hasHelpFlag(actionArgs) {
			printConfigGetHelp()
			return 0
		}
		return runConfigGet(actionArgs)
	case "help":
		printConfigNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runDeliveryNoun(args []string) int {
	if len(args) < 1 {
		printDeliveryNounHelp(os.Stderr)
		return 1
	}

	if isHelpToken(args[0]) {
		printDeliveryNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "inspect":
		if hasHelpFlag(actionArgs) {
			printDeliveryInspectHelp()
			return 0
		}
		return runDeliveryInspect(actionArgs)
	case "help":
		printDeliveryNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown delivery action: %s\n", action)
		return 1
	}
}

func runTokenNoun(args []string) int {
	if len(args) < 1 {
		printTokenNounHelp(os.Stderr)
		return 1
	}

	if isHelpToken(args[0]) {
		printTokenNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "create":
		if hasHelpFlag(actionArgs) {
			printTokenCreateHelp()
			return 0
		}
		return runTokenCreate(actionArgs)
	case "list":
		if hasHelpFlag(actionArgs) {
			printTokenListHelp()
			return 0
		}
		return runTokenList(actionArgs)
	case "help":
		printTokenNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown token action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

// --- HELP PRINTERS ---

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: tollkeep config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, lock, show, get")
}

func printDeliveryNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: tollkeep delivery <action>")
	fmt.Fprintln(w, "Actions: inspect")
}

func printTokenNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: tollkeep token <action> [flags]")
	fmt.Fprintln(w, "Actions: create, list")
}

func printServeHelp() {
	fmt.Println("Usage: tollkeep serve [--config PATH]")
	fmt.Println("Run the webhook receiver in the foreground.")
}

func printWatchHelp() {
	fmt.Println("Usage: tollkeep watch [flags]")
	fmt.Println()
	fmt.Println("Real-time delivery monitoring TUI.")
	fmt.Println("Shows receiver health, recent deliveries, entitlement changes, and the event stream.")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --api-url URL    Admin API URL (default: http://localhost:8081)")
	fmt.Println("  --api-key KEY    API bearer token (or TOLLKEEP_API_KEY env var)")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  ↑/↓, k/j         Scroll deliveries")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: tollkeep config check [--config PATH] [--format human|json] [--strict] [--json]")
	fmt.Println("Validate configuration syntax, policy, and integrity.")
	fmt.Println("")
	fmt.Println("Exit codes:")
	fmt.Println("  0  All checks passed")
	fmt.Println("  1  One or more errors")
	fmt.Println("  2  Warnings present (with --strict)")
}

func printConfigLockHelp() {
	fmt.Println("Usage: tollkeep config lock [--config PATH] [-v|--verbose] [--dry-run]")
	fmt.Println("Authorize the current configuration by regenerating its integrity hash.")
}

func printConfigShowHelp() {
	fmt.Println("Usage: tollkeep config show [--config PATH] [--json]")
	fmt.Println("Show the full resolved configuration. Secrets are masked.")
}

func printConfigGetHelp() {
	fmt.Println("Usage: tollkeep config get <path> [--config PATH] [--json]")
	fmt.Println("Read a single value from the resolved configuration.")
}

func printDeliveryInspectHelp() {
	fmt.Println("Usage: tollkeep delivery inspect <delivery_id> [--config PATH] [--json]")
	fmt.Println("Show a recorded delivery, its signature verdict, and any ledger or entitlement rows it produced.")
}

func printTokenCreateHelp() {
	fmt.Println("Usage: tollkeep token create --name NAME [--scopes s1,s2 | --pick] [--env] [--json]")
	fmt.Println("Generate a scoped admin API token and print the config snippet to install it.")
	fmt.Println("")
	fmt.Println("Flags:")
	fmt.Println("  --name NAME      Token name, used to derive the env var name")
	fmt.Println("  --scopes LIST    Comma-separated scopes")
	fmt.Println("  --pick           Choose scopes interactively")
	fmt.Println("  --env            Reference the token via ${VAR} instead of inlining it")
	fmt.Println("  --json           Output as JSON")
}

func printTokenListHelp() {
	fmt.Println("Usage: tollkeep token list [--config PATH] [--json]")
	fmt.Println("List configured admin API tokens. Token values are masked.")
}

// --- ACTION IMPLEMENTATIONS ---

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	if *configPath == "" {
		discovered, err := config.DiscoverConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return 1
		}
		*configPath = discovered
		fmt.Fprintf(os.Stderr, "Using discovered config: %s\n", *configPath)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("tollkeep starting", "version", version, "config", *configPath)

	pidLockPath := getPIDLockPath(cfg)
	pidLock, err := lock.Acquire(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", pidLockPath, "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLockPath)

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	deliveries := delivery.NewStore(db)
	entitlements := entitlement.NewStore(db)
	led := ledger.New(db)
	hub := events.NewHub(256)

	hookRunner := notify.NewRunner(cfg.Hooks.Timeout)
	granter := notify.WrapGranter(entitlements, cfg.Hooks.OnGrant, hookRunner)
	revoker := notify.WrapRevoker(entitlements, cfg.Hooks.OnRevoke, hookRunner)

	checkout := dispatch.NewCheckoutHandler(led, granter, hub, dispatch.CheckoutConfig{
		ProductRef: cfg.Checkout.ProductRef,
		MinAmount:  cfg.Checkout.MinAmount,
	})
	subscription := dispatch.NewSubscriptionHandler(led, revoker, hub)
	router := dispatch.NewRouter(checkout, subscription)

	webhookConfig, err := webhook.FromGlobalConfig(cfg.Webhook)
	if err != nil {
		logger.Error("failed to configure webhook listener", "error", err)
		return 1
	}
	webhookServer := webhook.New(webhookConfig, router, deliveries, hub, log.WithComponent("webhook"))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 2)

	go func() {
		if err := webhookServer.Start(ctx); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("webhook: %w", err)
		}
	}()
	webhookPath := webhookConfig.Path
	if webhookPath == "" {
		webhookPath = webhook.DefaultPath
	}
	logger.Info("webhook listener enabled", "listen", webhookConfig.Listen, "path", webhookPath)

	if cfg.API.Enabled {
		apiServer := api.New(api.FromGlobalConfig(cfg.API), deliveries, entitlements, led, hub, log.WithComponent("api"))
		go func() {
			if err := apiServer.Start(ctx); err != nil && err != context.Canceled {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("admin API enabled", "listen", cfg.API.Listen)
	}

	jan := janitor.New(cfg.Retention, deliveries, led, log.WithComponent("janitor"))
	jan.Start(ctx)
	defer jan.Stop()

	logger.Info("tollkeep running (press Ctrl+C to stop)")

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("tollkeep stopped")
	return 0
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	apiURL := fs.String("api-url", "http://localhost:8081", "Admin API URL")
	apiKey := fs.String("api-key", os.Getenv("TOLLKEEP_API_KEY"), "API bearer token")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if *apiKey == "" {
		fmt.Fprintln(os.Stderr, "Error: API key required. Use --api-key or TOLLKEEP_API_KEY env var.")
		return 1
	}

	m := watch.New(*apiURL, *apiKey)
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

func runDeliveryInspect(args []string) int {
	// Custom flag parsing because we want to support flags AFTER the
	// delivery ID, like 'tollkeep delivery inspect <id> --json'
	var configPath string
	var jsonOut bool

	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "Path to configuration")
	fs.BoolVar(&jsonOut, "json", false, "Output report in JSON")

	var deliveryID string
	var remainingArgs []string
	for _, arg := range args {
		if !strings.HasPrefix(arg, "-") && deliveryID == "" {
			deliveryID = arg
		} else {
			remainingArgs = append(remainingArgs, arg)
		}
	}

	if err := fs.Parse(remainingArgs); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if deliveryID == "" {
		fmt.Fprintf(os.Stderr, "Usage: tollkeep delivery inspect <delivery_id> [--config PATH] [--json]\n")
		return 1
	}

	if configPath == "" {
		discovered, err := config.DiscoverConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return 1
		}
		configPath = discovered
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	db, err := storage.OpenSQLite(context.Background(), cfg.State.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		return 1
	}
	defer db.Close()

	var report string
	if jsonOut {
		report, err = inspect.BuildJSONReport(context.Background(), db, deliveryID)
	} else {
		report, err = inspect.BuildReport(context.Background(), db, deliveryID)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Inspect failed: %v\n", err)
		return 1
	}

	fmt.Print(report)
	return 0
}

func getPIDLockPath(cfg *config.Config) string {
	dbPath := cfg.State.Path
	dbDir := filepath.Dir(dbPath)
	dbBase := filepath.Base(dbPath)
	ext := filepath.Ext(dbBase)
	nameWithoutExt := dbBase[:len(dbBase)-len(ext)]
	return filepath.Join(dbDir, nameWithoutExt+".pid")
}
