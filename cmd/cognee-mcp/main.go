// ABOUTME: Entry point for the cognee-mcp stdio server
// ABOUTME: Bridges MCP clients to a remote knowledge-graph API

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/cognee-mcp/internal/auth"
	"github.com/2389/cognee-mcp/internal/cognee"
	"github.com/2389/cognee-mcp/internal/config"
	"github.com/2389/cognee-mcp/internal/history"
	"github.com/2389/cognee-mcp/internal/mcp"
	"github.com/2389/cognee-mcp/internal/mcperr"
	"github.com/2389/cognee-mcp/internal/registry"
	"github.com/2389/cognee-mcp/internal/tools"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `

  ___ ___   __ _ _ __   ___  ___       _ __ ___   ___ _ __
 / __/ _ \ / _' | '_ \ / _ \/ _ \_____| '_ ' _ \ / __| '_ \
| (_| (_) | (_| | | | |  __/  __/_____| | | | | | (__| |_) |
 \___\___/ \__, |_| |_|\___|\___|     |_| |_| |_|\___| .__/
           |___/                                     |_|
`

func main() {
	// MCP clients exec the binary with no arguments, so serve is the default.
	command := "serve"
	if len(os.Args) >= 2 {
		command = os.Args[1]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch command {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "tools":
		err = runTools()
	case "version":
		fmt.Printf("cognee-mcp %s\n", version)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage(os.Stderr)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: cognee-mcp [command]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve     Start the MCP server on stdio (default)")
	fmt.Fprintln(w, "  init      Create a config file interactively")
	fmt.Fprintln(w, "  health    Check the upstream knowledge-graph API")
	fmt.Fprintln(w, "  tools     List the tools the server would expose")
	fmt.Fprintln(w, "  version   Print the version")
}

func runServe(ctx context.Context) error {
	configPath := config.DefaultPath()

	// stdout is the protocol channel; everything human-facing goes to stderr.
	cyan := color.New(color.FgCyan)
	cyan.Fprint(os.Stderr, banner)
	gray := color.New(color.FgHiBlack)
	gray.Fprintf(os.Stderr, "    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Fprint(os.Stderr, "    ▶ ")
	fmt.Fprintf(os.Stderr, "Config:   %s\n", configPath)
	green.Fprint(os.Stderr, "    ▶ ")
	fmt.Fprintf(os.Stderr, "Upstream: %s\n", cfg.API.BaseURL)
	fmt.Fprintln(os.Stderr)

	chain := newChain(cfg)
	client, err := newClient(cfg, chain, logger)
	if err != nil {
		return fmt.Errorf("creating API client: %w", err)
	}

	var hist *history.Store
	if cfg.History.Enabled {
		hist, err = history.New(cfg.History.Path, cfg.History.MaxRows)
		if err != nil {
			return fmt.Errorf("opening history store: %w", err)
		}
		defer hist.Close()
	}

	tracker := mcperr.NewTracker()
	started := time.Now()

	reg, err := buildRegistry(cfg, client, hist, tracker, started, logger)
	if err != nil {
		return fmt.Errorf("registering tools: %w", err)
	}

	logger.Info("starting cognee-mcp",
		"config", configPath,
		"upstream", cfg.API.BaseURL,
		"auth_mode", chain.Mode(),
		"tools", len(reg.Info()),
	)

	server := mcp.NewServer(mcp.Options{
		Config:   cfg,
		Registry: reg,
		Client:   client,
		Auth:     chain,
		History:  hist,
		Tracker:  tracker,
		Logger:   logger.With("component", "mcp"),
	})

	return server.Serve(ctx, os.Stdin, os.Stdout)
}

func newChain(cfg *config.Config) *auth.Chain {
	return auth.NewChain(auth.Config{
		BaseURL:   cfg.API.BaseURL,
		Key:       cfg.API.Key,
		KeyHeader: cfg.API.KeyHeader,
		KeyScheme: cfg.API.KeyScheme,
		Email:     cfg.API.Email,
		Password:  cfg.API.Password,
	})
}

func newClient(cfg *config.Config, chain *auth.Chain, logger *slog.Logger) (*cognee.Client, error) {
	return cognee.New(cognee.Config{
		BaseURL:         cfg.API.BaseURL,
		Timeout:         cfg.API.Timeout,
		MaxRetries:      cfg.API.MaxRetries,
		RetryDelay:      cfg.API.RetryDelay,
		RateLimitPerMin: cfg.API.RateLimitPerMinute,
		Credentials:     chain,
		Logger:          logger.With("component", "cognee"),
	})
}

// buildRegistry registers the tool packs enabled by the feature flags.
func buildRegistry(cfg *config.Config, client *cognee.Client, hist *history.Store, tracker *mcperr.Tracker, started time.Time, logger *slog.Logger) (*registry.Registry, error) {
	reg := registry.New(
		logger.With("component", "registry"),
		registry.WithDefaults(cfg.API.RateLimitPerMinute, cfg.Server.RequestTimeout),
	)

	packs := []*registry.Pack{
		tools.BasicPack(client),
		tools.DatasetPack(client),
		tools.GraphPack(client),
	}
	if cfg.Features.TimeAwareness {
		packs = append(packs, tools.TemporalPack(client))
	}
	if cfg.Features.OntologySupport {
		packs = append(packs, tools.OntologyPack(client))
	}
	if cfg.Features.AsyncMemory {
		packs = append(packs, tools.MemoryPack(client))
	}
	if cfg.Features.SelfImproving && hist != nil {
		packs = append(packs, tools.SelfImprovePack(hist))
	}
	packs = append(packs, tools.DiagnosticPack(tools.DiagnosticDeps{
		Client:          client,
		History:         hist,
		Tracker:         tracker,
		Config:          cfg.Sanitized(),
		Started:         started,
		IncludeAdvanced: cfg.Features.AdvancedAnalytics,
	}))

	for _, pack := range packs {
		if err := reg.RegisterPack(pack); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = &colorHandler{
			level: level,
			out:   os.Stderr,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
// It writes to stderr since stdout carries the protocol stream.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	out    io.Writer
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	// Handler-level attrs first (from WithAttrs), then record attrs.
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Fprint(h.out, buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		out:    h.out,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		out:    h.out,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	chain := newChain(cfg)
	client, err := newClient(cfg, chain, logger)
	if err != nil {
		return fmt.Errorf("creating API client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	status, err := client.Health(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	fmt.Printf("upstream: %s\n", cfg.API.BaseURL)
	fmt.Printf("status:   %s\n", status.Status)
	fmt.Printf("auth:     %s\n", chain.Mode())
	return nil
}

// runTools builds the registry the serve command would use and prints it,
// without touching the upstream.
func runTools() error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	chain := newChain(cfg)
	client, err := newClient(cfg, chain, logger)
	if err != nil {
		return fmt.Errorf("creating API client: %w", err)
	}

	var hist *history.Store
	if cfg.History.Enabled && cfg.Features.SelfImproving {
		// In-memory stand-in: the self-improvement pack registers against a
		// store, but listing tools must not write to the real database.
		hist, err = history.New(":memory:", 0)
		if err != nil {
			return fmt.Errorf("opening history store: %w", err)
		}
		defer hist.Close()
	}

	reg, err := buildRegistry(cfg, client, hist, mcperr.NewTracker(), time.Now(), logger)
	if err != nil {
		return fmt.Errorf("registering tools: %w", err)
	}

	infos := reg.Info()
	cyan := color.New(color.FgCyan)
	fmt.Printf("%d tools registered\n\n", len(infos))

	category := ""
	for _, info := range infos {
		if info.Category != category {
			if category != "" {
				fmt.Println()
			}
			category = info.Category
			cyan.Printf("  %s\n", category)
		}
		authMark := " "
		if info.RequiresAuth {
			authMark = "*"
		}
		fmt.Printf("    %s %s\n", authMark, info.Name)
	}
	fmt.Println("\n  * requires upstream credentials")
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("cognee-mcp configuration setup")
	fmt.Println("==============================")
	fmt.Println()

	defaultConfigPath := config.DefaultPath()
	defaultHistoryPath := filepath.Join(config.DefaultDataPath(), "history.db")

	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Upstream API ---")
	baseURL := prompt(reader, "API base URL", config.DefaultBaseURL)
	apiKey := prompt(reader, "API key (leave empty for email/password or anonymous)", "")
	var email, password string
	if apiKey == "" {
		email = prompt(reader, "Login email (leave empty for anonymous)", "")
		if email != "" {
			password = prompt(reader, "Login password", "")
		}
	}

	fmt.Println("\n--- History ---")
	historyEnabledStr := prompt(reader, "Record tool-call history?", "yes")
	historyEnabled := strings.ToLower(historyEnabledStr) == "yes" || strings.ToLower(historyEnabledStr) == "y"
	historyPath := defaultHistoryPath
	if historyEnabled {
		historyPath = prompt(reader, "History database path", defaultHistoryPath)
	}

	fmt.Println("\n--- Logging ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	var cfg strings.Builder
	cfg.WriteString("# cognee-mcp configuration\n")
	cfg.WriteString("# Generated by cognee-mcp init\n\n")

	cfg.WriteString("api:\n")
	cfg.WriteString(fmt.Sprintf("  base_url: \"%s\"\n", baseURL))
	if apiKey != "" {
		cfg.WriteString(fmt.Sprintf("  key: \"%s\"\n", apiKey))
	}
	if email != "" {
		cfg.WriteString(fmt.Sprintf("  email: \"%s\"\n", email))
		cfg.WriteString(fmt.Sprintf("  password: \"%s\"\n", password))
	}
	cfg.WriteString("  timeout: \"180s\"\n")
	cfg.WriteString("  max_retries: 3\n")
	cfg.WriteString("  rate_limit_per_minute: 60\n")
	cfg.WriteString("\n")

	cfg.WriteString("server:\n")
	cfg.WriteString("  max_concurrent_requests: 10\n")
	cfg.WriteString("  request_timeout: \"60s\"\n")
	cfg.WriteString("\n")

	cfg.WriteString("features:\n")
	cfg.WriteString("  time_awareness: true\n")
	cfg.WriteString("  ontology_support: true\n")
	cfg.WriteString("  async_memory: true\n")
	cfg.WriteString("  self_improving: true\n")
	cfg.WriteString("  advanced_analytics: true\n")
	cfg.WriteString("\n")

	cfg.WriteString("history:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", historyEnabled))
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", historyPath))
	cfg.WriteString("  max_rows: 10000\n")
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// 0600: the file can hold credentials.
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the server:")
	fmt.Println("  cognee-mcp serve")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
