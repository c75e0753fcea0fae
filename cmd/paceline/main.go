// ABOUTME: Entry point for the paceline server
// ABOUTME: Multi-tenant training log with passkey authentication

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/paceline/paceline/internal/authn"
	"github.com/paceline/paceline/internal/config"
	"github.com/paceline/paceline/internal/server"
	"github.com/paceline/paceline/internal/store"
	"github.com/paceline/paceline/internal/tenant"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                       _ _
  _ __   __ _  ___ ___| (_)_ __   ___
 | '_ \ / _' |/ __/ _ \ | | '_ \ / _ \
 | |_) | (_| | (_|  __/ | | | | |  __/
 | .__/ \__,_|\___\___|_|_|_| |_|\___|
 |_|
`

// getConfigPath returns the path to the paceline config file.
// Priority: PACELINE_CONFIG env var > XDG_CONFIG_HOME/paceline/paceline.yaml > ~/.config/paceline/paceline.yaml
func getConfigPath() string {
	if envPath := os.Getenv("PACELINE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "paceline.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "paceline", "paceline.yaml")
}

// getDataPath returns the path to the paceline data directory.
// Priority: XDG_DATA_HOME/paceline > ~/.local/share/paceline
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "paceline")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: paceline <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                       Start the paceline server")
		fmt.Println("  init                        Create a new config file interactively")
		fmt.Println("  bootstrap --tenant SLUG --username NAME")
		fmt.Println("                              Create the first tenant and owner user")
		fmt.Println("  health                      Check server health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "bootstrap":
		err = runBootstrap(ctx)
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	// Version info
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	// Startup info
	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Path)

	fmt.Println()

	logger.Info("starting paceline",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.Run(ctx)
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

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
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

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
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

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
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
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Make HTTP request to health endpoint with context
	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

// bootstrapArgs holds the parsed bootstrap flags.
type bootstrapArgs struct {
	tenantSlug string
	username   string
	password   string
}

// parseBootstrapArgs parses bootstrap flags.
// Supports both "--flag value" and "--flag=value" formats.
func parseBootstrapArgs(args []string) (bootstrapArgs, error) {
	var parsed bootstrapArgs
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--tenant" || arg == "-t":
			if i+1 >= len(args) {
				return parsed, fmt.Errorf("--tenant requires a value")
			}
			parsed.tenantSlug = args[i+1]
			i++
		case strings.HasPrefix(arg, "--tenant="):
			parsed.tenantSlug = strings.TrimPrefix(arg, "--tenant=")
		case arg == "--username" || arg == "-u":
			if i+1 >= len(args) {
				return parsed, fmt.Errorf("--username requires a value")
			}
			parsed.username = args[i+1]
			i++
		case strings.HasPrefix(arg, "--username="):
			parsed.username = strings.TrimPrefix(arg, "--username=")
		case arg == "--password" || arg == "-p":
			if i+1 >= len(args) {
				return parsed, fmt.Errorf("--password requires a value")
			}
			parsed.password = args[i+1]
			i++
		case strings.HasPrefix(arg, "--password="):
			parsed.password = strings.TrimPrefix(arg, "--password=")
		case strings.HasPrefix(arg, "-"):
			return parsed, fmt.Errorf("unknown flag: %s", arg)
		default:
			return parsed, fmt.Errorf("unexpected argument: %s", arg)
		}
	}
	return parsed, nil
}

// runBootstrap performs first-time setup:
// 1. Creates config file with random token secret (if not exists)
// 2. Creates database, first tenant, and owner user
// 3. Generates an API token for the owner
//
// One-command setup: paceline bootstrap --tenant myclub --username alice
func runBootstrap(ctx context.Context) error {
	args, err := parseBootstrapArgs(os.Args[2:])
	if err != nil {
		return err
	}

	if args.tenantSlug == "" {
		return fmt.Errorf("--tenant flag is required")
	}
	if err := tenant.ValidateSlug(args.tenantSlug); err != nil {
		return fmt.Errorf("tenant slug must be alphanumeric, at most 64 characters")
	}
	if args.username == "" {
		return fmt.Errorf("--username flag is required")
	}

	args.username = strings.TrimSpace(args.username)
	if args.username == "" {
		return fmt.Errorf("username cannot be empty or whitespace only")
	}
	if len(args.username) > 100 {
		return fmt.Errorf("username exceeds maximum length of 100 characters")
	}

	configPath := getConfigPath()
	dataPath := getDataPath()
	dbPath := filepath.Join(dataPath, "paceline.db")

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	// Check if config exists, create if not
	var cfg *config.Config
	var tokenSecret string

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Generate random token secret
		secretBytes := make([]byte, 32)
		if _, err := rand.Read(secretBytes); err != nil {
			return fmt.Errorf("generating token secret: %w", err)
		}
		tokenSecret = base64.StdEncoding.EncodeToString(secretBytes)

		// Create config directory
		configDir := filepath.Dir(configPath)
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		// Create data directory
		if err := os.MkdirAll(dataPath, 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}

		// Write config file
		configContent := fmt.Sprintf(`# paceline configuration
# Generated by paceline bootstrap

server:
  http_addr: "localhost:8080"

database:
  path: "%s"

auth:
  base_url: "http://localhost:8080"
  token_secret: "%s"

logging:
  level: "info"
  format: "text"
`, dbPath, tokenSecret)

		if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}

		green.Printf("  ✓ Created config: %s\n", configPath)

		// Load the config we just created
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	} else {
		// Config exists, load it
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		tokenSecret = cfg.Auth.TokenSecret

		cyan.Printf("  Using existing config: %s\n", configPath)
	}

	// Open the store directly
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	green.Printf("  ✓ Database: %s\n", cfg.Database.Path)

	// Refuse to run twice
	count, err := s.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("checking users: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("bootstrap already complete: %d user(s) exist", count)
	}

	// Create the first tenant
	firstTenant := &store.Tenant{
		ID:          uuid.New().String(),
		Slug:        args.tenantSlug,
		SchemaName:  "tenant_" + args.tenantSlug,
		DisplayName: args.tenantSlug,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.CreateTenant(ctx, firstTenant); err != nil {
		return fmt.Errorf("creating tenant: %w", err)
	}

	green.Printf("  ✓ Created tenant: %s (schema %s)\n", firstTenant.Slug, firstTenant.SchemaName)

	// Create the owner user
	userID := uuid.New().String()
	user := &store.User{
		ID:          userID,
		Username:    args.username,
		DisplayName: args.username,
		CreatedAt:   time.Now().UTC(),
	}
	if args.password != "" {
		hash, err := authn.HashPassword(args.password)
		if err != nil {
			return fmt.Errorf("hashing password: %w", err)
		}
		user.PasswordHash = hash
	}

	if err := s.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("creating user: %w", err)
	}

	green.Printf("  ✓ Created owner user: %s\n", args.username)

	// Generate an API token
	verifier := authn.NewTokenVerifier([]byte(tokenSecret))

	// Default TTL: 30 days
	tokenTTL := 30 * 24 * time.Hour
	expiresAt := time.Now().Add(tokenTTL).UTC()

	token, err := verifier.Generate(userID, tokenTTL)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	// Save token to file for CLI tools to read
	tokenPath := filepath.Join(filepath.Dir(configPath), "token")
	if err := os.WriteFile(tokenPath, []byte(token), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}

	green.Printf("  ✓ Saved token: %s\n", tokenPath)

	// Print results
	fmt.Println()
	green.Println("  Bootstrap complete!")
	fmt.Println()
	cyan.Println("  Owner User")
	cyan.Println("  ----------")
	fmt.Printf("  ID:       %s\n", userID)
	fmt.Printf("  Username: %s\n", args.username)
	fmt.Printf("  Tenant:   %s\n", firstTenant.Slug)
	fmt.Printf("  Token:    %s (expires %s)\n", tokenPath, expiresAt.Format("Jan 02, 2006"))
	fmt.Println()

	yellow.Println("  Ready to go:")
	fmt.Println("    paceline serve    # start the server")
	fmt.Println("    then register a passkey at /auth/register/begin")
	fmt.Println()

	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("paceline configuration setup")
	fmt.Println("============================")
	fmt.Println()

	// Default paths
	defaultConfigPath := getConfigPath()
	defaultDataPath := getDataPath()
	defaultDbPath := filepath.Join(defaultDataPath, "paceline.db")

	// Output filename
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	// Check if file exists
	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	// Server configuration
	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8080")
	baseURL := prompt(reader, "Public base URL", "http://localhost:8080")

	// Database
	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", defaultDbPath)

	// Auth
	fmt.Println("\n--- Auth Configuration ---")
	rpName := prompt(reader, "Passkey display name", "paceline")
	sessionTTL := prompt(reader, "Session TTL", "168h")
	challengeTTL := prompt(reader, "Challenge TTL", "5m")

	// Generate random token secret
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return fmt.Errorf("generating token secret: %w", err)
	}
	tokenSecret := base64.StdEncoding.EncodeToString(secretBytes)

	// Logging
	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	// Generate config
	var cfg strings.Builder
	cfg.WriteString("# paceline configuration\n")
	cfg.WriteString("# Generated by paceline init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  base_url: \"%s\"\n", baseURL))
	cfg.WriteString(fmt.Sprintf("  rp_display_name: \"%s\"\n", rpName))
	cfg.WriteString(fmt.Sprintf("  token_secret: \"%s\"\n", tokenSecret))
	cfg.WriteString(fmt.Sprintf("  session_ttl: \"%s\"\n", sessionTTL))
	cfg.WriteString(fmt.Sprintf("  challenge_ttl: \"%s\"\n", challengeTTL))
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Ensure config directory exists
	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write config file
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	// Ensure data directory exists
	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  paceline serve\n")

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
