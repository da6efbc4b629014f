package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/caddyserver/certmagic"

	"doorman/internal/config"
	"doorman/internal/database"
	"doorman/internal/handlers"
	"doorman/internal/middleware"
	"doorman/internal/security"
	"doorman/internal/site"
)

const Version = "v1.0.0"

var (
	verbose = flag.Bool("verbose", false, "Enable verbose logging")
	quiet   = flag.Bool("quiet", false, "Quiet mode (errors only)")
)

func main() {
	// Check for subcommands first
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "init":
			handleInitCommand(os.Args[2:])
			return
		case "set-config":
			handleSetConfigCommand(os.Args[2:])
			return
		case "status":
			handleStatusCommand(os.Args[2:])
			return
		case "--version", "-version":
			printVersion()
			return
		case "--help", "-help", "-h":
			printHelp()
			return
		}
	}

	runServer()
}

func runServer() {
	// Parse CLI flags (also fills in the global --quiet/--verbose)
	flags := config.ParseFlags()

	if *quiet {
		log.SetOutput(io.Discard)
	}

	// Load configuration
	cfg, err := config.Load(flags)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	configPath := config.ExpandPath(flags.ConfigPath)
	configDir := filepath.Dir(configPath)

	// Ensure secure file permissions
	security.EnsureSecurePermissions(configPath, cfg.Database.Path)

	printBanner(cfg, configPath)

	// Initialize certificate database
	if err := database.Init(cfg.Database.Path); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	// Prepare the web root (writes the default entry page on first run)
	if err := site.Init(cfg.Entry.WebRoot, cfg.Entry.Target); err != nil {
		log.Fatalf("Failed to initialize web root: %v", err)
	}
	log.Printf("Web root: %s", site.GetWebRoot())

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/healthz", handlers.HealthHandler)

	// Static assets for the entry page
	fs := http.FileServer(http.Dir(filepath.Join(cfg.Entry.WebRoot, "static")))
	mux.Handle("/static/", http.StripPrefix("/static/", fs))

	// The entry page itself
	mux.HandleFunc("/"+cfg.Entry.Target, handlers.EntryPageHandler)

	// Live reload in development
	var hub *site.Hub
	var watcher *site.Watcher
	if cfg.IsDevelopment() {
		hub = site.NewHub()
		watcher = site.NewWatcher(cfg.Entry.WebRoot, 2*time.Second, hub)
		watcher.Start()
		mux.HandleFunc("/ws", hub.ServeWS)
		if *verbose {
			log.Println("Live reload enabled on /ws")
		}
	}

	// Everything else gets the entry redirect
	mux.HandleFunc("/", handlers.EntryHandler)

	// Apply middleware (order: logging -> security -> tracing -> body limit -> recovery -> mux)
	handler := loggingMiddleware(
		middleware.SecurityHeaders(
			middleware.RequestTracing(
				middleware.BodySizeLimit(middleware.MaxBodySize)(
					recoveryMiddleware(mux),
				),
			),
		),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := writePIDFile(configDir); err != nil {
		log.Printf("Warning: Failed to write PID file: %v", err)
	}
	defer removePIDFile(configDir)

	// ACME only makes sense on a public domain
	host := extractDomain(cfg.Server.Domain)
	useTLS := cfg.IsProduction() && host != "" && host != "localhost" && host != "127.0.0.1"

	var httpRedirect *http.Server
	if useTLS {
		httpRedirect = &http.Server{
			Addr:         ":80",
			Handler:      http.HandlerFunc(redirectToHTTPS),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
	}

	go func() {
		var err error
		if useTLS {
			err = serveTLS(srv, httpRedirect, cfg, host)
		} else {
			log.Printf("Server starting on :%s", cfg.Server.Port)
			log.Printf("Entry page: http://localhost:%s/%s", cfg.Server.Port, cfg.Entry.Target)
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down server...")

	if watcher != nil {
		watcher.Stop()
	}
	if hub != nil {
		hub.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if httpRedirect != nil {
		httpRedirect.Shutdown(ctx)
	}
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// serveTLS serves the handler over HTTPS with certificates managed by
// certmagic and persisted in the app database. A plain listener on :80
// redirects to HTTPS.
func serveTLS(srv, httpRedirect *http.Server, cfg *config.Config, host string) error {
	certmagic.Default.Storage = database.NewCertStorage(database.GetDB())
	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.Email = cfg.TLS.Email

	ln, err := certmagic.Listen([]string{host})
	if err != nil {
		return fmt.Errorf("failed to start TLS listener: %w", err)
	}

	go func() {
		if err := httpRedirect.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP redirect listener failed: %v", err)
		}
	}()

	log.Printf("Server starting on :443 for %s", host)
	log.Printf("Entry page: https://%s/%s", host, cfg.Entry.Target)
	return srv.Serve(ln)
}

// redirectToHTTPS sends plain-HTTP clients to the HTTPS listener
func redirectToHTTPS(w http.ResponseWriter, r *http.Request) {
	u := *r.URL
	u.Scheme = "https"
	u.Host = r.Host
	if idx := strings.LastIndex(u.Host, ":"); idx != -1 && !strings.Contains(u.Host, "]") {
		u.Host = u.Host[:idx]
	}

	http.Redirect(w, r, u.String(), http.StatusMovedPermanently)
}

// loggingMiddleware logs all HTTP requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Capture status code for the log line
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		log.Printf("%s %s %d %v", r.Method, r.URL.Path, wrapped.statusCode, duration)
	})
}

// recoveryMiddleware recovers from panics and logs the error
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("PANIC: %v", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack delegates to the underlying writer; WebSocket upgrades on /ws
// need the raw connection
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying ResponseWriter does not support hijacking")
	}
	return hj.Hijack()
}

// printBanner displays startup information
func printBanner(cfg *config.Config, configPath string) {
	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════════════")
	fmt.Printf("               Doorman %s - Starting Up\n", Version)
	fmt.Println("═══════════════════════════════════════════════════════════")
	fmt.Println()
	fmt.Printf("  Environment:  %s\n", cfg.Server.Env)
	fmt.Printf("  Port:         %s\n", cfg.Server.Port)
	fmt.Printf("  Domain:       %s\n", cfg.Server.Domain)
	fmt.Printf("  Target:       %s\n", cfg.Entry.Target)
	fmt.Printf("  Web Root:     %s\n", cfg.Entry.WebRoot)
	fmt.Printf("  Database:     %s\n", cfg.Database.Path)
	fmt.Printf("  Config File:  %s\n", configPath)
	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════════════")
	fmt.Println()
}

// handleInitCommand handles the "init" subcommand
func handleInitCommand(args []string) {
	initFlags := flag.NewFlagSet("init", flag.ExitOnError)
	domain := initFlags.String("domain", "", "Public domain (required)")
	port := initFlags.String("port", "4712", "Server port")
	env := initFlags.String("env", "development", "Environment: development or production")
	target := initFlags.String("target", "index.html", "Redirect target")
	configPath := initFlags.String("config", config.DefaultConfigPath, "Path to config file")

	initFlags.Usage = func() {
		fmt.Println("Usage: doorman init --domain <domain> [options]")
		fmt.Println()
		fmt.Println("Initialize server configuration.")
		fmt.Println()
		fmt.Println("Options:")
		initFlags.PrintDefaults()
	}

	if err := initFlags.Parse(args); err != nil {
		os.Exit(1)
	}

	if err := initCommand(*domain, *port, *env, *target, config.ExpandPath(*configPath)); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("✓ Configuration created!")
	fmt.Println()
	fmt.Printf("Config file: %s\n", config.ExpandPath(*configPath))
	fmt.Println()
	fmt.Println("To start the server:")
	fmt.Println("  doorman")
	fmt.Println()
}

// initCommand creates a fresh config file, refusing to clobber an existing one
func initCommand(domain, port, env, target, configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("already initialized: config exists at %s", configPath)
	}

	if domain == "" {
		return fmt.Errorf("domain is required")
	}
	if err := config.ValidatePort(port); err != nil {
		return err
	}
	if err := config.ValidateEnv(env); err != nil {
		return err
	}
	if err := config.ValidateTarget(target); err != nil {
		return err
	}

	configDir := filepath.Dir(configPath)
	cfg := &config.Config{
		Server: config.ServerConfig{
			Port:   port,
			Domain: domain,
			Env:    env,
		},
		Entry: config.EntryConfig{
			Target:  target,
			WebRoot: filepath.Join(configDir, "webroot"),
		},
		Database: config.DatabaseConfig{
			Path: filepath.Join(configDir, "data.db"),
		},
	}

	if err := config.SaveToFile(cfg, configPath); err != nil {
		return err
	}

	// Keep the directory itself owner-only too
	if err := os.Chmod(configDir, 0700); err != nil {
		return fmt.Errorf("failed to secure config directory: %w", err)
	}

	return nil
}

// handleSetConfigCommand handles the "set-config" subcommand
func handleSetConfigCommand(args []string) {
	scFlags := flag.NewFlagSet("set-config", flag.ExitOnError)
	domain := scFlags.String("domain", "", "Public domain")
	port := scFlags.String("port", "", "Server port")
	env := scFlags.String("env", "", "Environment: development or production")
	target := scFlags.String("target", "", "Redirect target")
	configPath := scFlags.String("config", config.DefaultConfigPath, "Path to config file")

	scFlags.Usage = func() {
		fmt.Println("Usage: doorman set-config [options]")
		fmt.Println()
		fmt.Println("Update server settings. At least one of --domain, --port,")
		fmt.Println("--env, or --target is required.")
		fmt.Println()
		fmt.Println("Options:")
		scFlags.PrintDefaults()
	}

	if err := scFlags.Parse(args); err != nil {
		os.Exit(1)
	}

	if err := setConfigCommand(*domain, *port, *env, *target, config.ExpandPath(*configPath)); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✓ Configuration updated")
}

// setConfigCommand updates the provided fields of an existing config
func setConfigCommand(domain, port, env, target, configPath string) error {
	if domain == "" && port == "" && env == "" && target == "" {
		return fmt.Errorf("at least one of --domain, --port, --env, or --target is required")
	}

	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("config not found at %s (run 'doorman init' first)", configPath)
		}
		return err
	}

	if domain != "" {
		cfg.Server.Domain = domain
	}
	if port != "" {
		if err := config.ValidatePort(port); err != nil {
			return err
		}
		cfg.Server.Port = port
	}
	if env != "" {
		if err := config.ValidateEnv(env); err != nil {
			return err
		}
		cfg.Server.Env = env
	}
	if target != "" {
		if err := config.ValidateTarget(target); err != nil {
			return err
		}
		cfg.Entry.Target = target
	}

	return config.SaveToFile(cfg, configPath)
}

// handleStatusCommand handles the "status" subcommand
func handleStatusCommand(args []string) {
	stFlags := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := stFlags.String("config", config.DefaultConfigPath, "Path to config file")

	if err := stFlags.Parse(args); err != nil {
		os.Exit(1)
	}

	path := config.ExpandPath(*configPath)
	output, err := statusCommand(path, filepath.Dir(path))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(output)
}

// statusCommand formats the current server status
func statusCommand(configPath, configDir string) (string, error) {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("config not found at %s (run 'doorman init' first)", configPath)
		}
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Doorman Server Status\n")
	fmt.Fprintf(&b, "---------------------\n")
	fmt.Fprintf(&b, "  Config:      %s\n", configPath)
	fmt.Fprintf(&b, "  Domain:      %s\n", cfg.Server.Domain)
	fmt.Fprintf(&b, "  Port:        %s\n", cfg.Server.Port)
	fmt.Fprintf(&b, "  Environment: %s\n", cfg.Server.Env)
	fmt.Fprintf(&b, "  Target:      %s\n", cfg.Entry.Target)
	fmt.Fprintf(&b, "  Web Root:    %s\n", cfg.Entry.WebRoot)

	if info, err := os.Stat(cfg.Database.Path); err == nil {
		fmt.Fprintf(&b, "  Database:    %s (%d bytes)\n", cfg.Database.Path, info.Size())
	} else {
		fmt.Fprintf(&b, "  Database:    %s (missing)\n", cfg.Database.Path)
	}

	if pid, running := serverRunning(configDir); running {
		fmt.Fprintf(&b, "  Server:      Running (PID %d)\n", pid)
	} else {
		fmt.Fprintf(&b, "  Server:      Not running\n")
	}

	return b.String(), nil
}

// pidFilePath returns the PID file location for a config directory
func pidFilePath(configDir string) string {
	return filepath.Join(configDir, "doorman.pid")
}

// writePIDFile records the server's PID for the status command
func writePIDFile(configDir string) error {
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return err
	}
	return os.WriteFile(pidFilePath(configDir), []byte(strconv.Itoa(os.Getpid())), 0600)
}

// removePIDFile cleans up the PID file on shutdown
func removePIDFile(configDir string) {
	os.Remove(pidFilePath(configDir))
}

// serverRunning reports whether the recorded PID refers to a live process
func serverRunning(configDir string) (int, bool) {
	data, err := os.ReadFile(pidFilePath(configDir))
	if err != nil {
		return 0, false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, false
	}
	// Signal 0 probes for existence without delivering anything
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return 0, false
	}

	return pid, true
}

// extractDomain extracts the domain from a URL (removes protocol and path)
func extractDomain(rawURL string) string {
	// Handle URLs with protocol
	if strings.Contains(rawURL, "://") {
		if parsed, err := url.Parse(rawURL); err == nil {
			return parsed.Hostname()
		}
	}
	// Handle bare domains
	if colonIdx := strings.Index(rawURL, ":"); colonIdx != -1 {
		return rawURL[:colonIdx]
	}
	return rawURL
}

// printVersion displays version information
func printVersion() {
	fmt.Printf("Doorman %s\n", Version)
	fmt.Printf("Go version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// printHelp displays usage information
func printHelp() {
	fmt.Printf("Doorman %s - Fixed-target entry redirect server\n", Version)
	fmt.Println()
	fmt.Println("Every request that is not the entry page, its static assets, or the")
	fmt.Println("health check is answered with '302 Found' pointing at the entry page.")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  doorman [command] [flags]")
	fmt.Println()
	fmt.Println("COMMANDS:")
	fmt.Println("  init                  Create the server configuration")
	fmt.Println("  set-config            Update domain/port/env/target")
	fmt.Println("  status                Show configuration and whether the server runs")
	fmt.Println("  (none)                Start the server")
	fmt.Println()
	fmt.Println("FLAGS:")
	fmt.Println("  --config <path>       Path to config file (default: ~/.config/doorman/config.json)")
	fmt.Println("  --port <port>         Server port (overrides config)")
	fmt.Println("  --domain <domain>     Public domain (overrides config)")
	fmt.Println("  --env <environment>   development or production (overrides config)")
	fmt.Println("  --target <path>       Redirect target (overrides config)")
	fmt.Println("  --webroot <dir>       Web root directory (overrides config)")
	fmt.Println("  --db <path>           Database file path (overrides config)")
	fmt.Println("  --version             Show version and exit")
	fmt.Println("  --help, -h            Show this help")
	fmt.Println("  --verbose             Enable verbose logging")
	fmt.Println("  --quiet               Quiet mode (errors only)")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # First-time setup")
	fmt.Println("  doorman init --domain https://example.com")
	fmt.Println()
	fmt.Println("  # Start with default config")
	fmt.Println("  doorman")
	fmt.Println()
	fmt.Println("  # Start on a custom port with a custom target")
	fmt.Println("  doorman --port 8080 --target start.html")
}
