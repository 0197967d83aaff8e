package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/akashsateesha/Clickless-IKEA/internal/api"
	"github.com/akashsateesha/Clickless-IKEA/internal/catalog"
	"github.com/akashsateesha/Clickless-IKEA/internal/config"
	"github.com/akashsateesha/Clickless-IKEA/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the shopping assistant HTTP and WebSocket API (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the shopping assistant as MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show clickless system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "clickless.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "clickless version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer os.Remove(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			printWarning("closing: %v", err)
		}
	}()

	if cfg.Server.Token == "" {
		slog.Warn("bearer auth disabled; set CLICKLESS_SERVER_TOKEN to enable it")
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr: addr,
		Handler: api.NewHandler(api.Deps{
			Shopper: a.agent,
			Turns:   a.store,
			Token:   cfg.Server.Token,
			Metrics: a.metrics,
		}),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go expireSessions(ctx, a.agent, cfg.Session.TTL)

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "clickless listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// sessionExpirer is the part of the agent the expiry loop needs.
type sessionExpirer interface {
	ExpireSessions(ctx context.Context, ttl time.Duration) (int, error)
}

// expireSessions sweeps idle sessions every ttl/4 until ctx is done.
func expireSessions(ctx context.Context, e sessionExpirer, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(max(ttl/4, time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.ExpireSessions(ctx, ttl); err != nil && ctx.Err() == nil {
				slog.Warn("session expiry failed", "error", err)
			}
		}
	}
}

func runMCP() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// stdout carries the MCP protocol; everything else goes to stderr.
	a, err := newApp(ctx, cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	go expireSessions(ctx, a.agent, cfg.Session.TTL)

	stdioSrv := server.NewStdioServer(api.NewMCPServer(a.agent, version))
	slog.Info("MCP server started (stdio transport)")
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, healthErr := client.Get(fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port))
	if healthErr != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	chatModel, embedModel := cfg.LLM.Models()
	printStatus("Provider", "%s", cmpProvider(cfg.LLM))
	printStatus("Chat model", "%s", chatModel)
	printStatus("Embed model", "%s", embedModel)
	printStatus("Cart", "%s (tax %.2f%%)", cfg.Cart.Mode, cfg.Cart.TaxRate*100)

	// Only read the database when no server holds it.
	if healthErr != nil {
		if n, ok := countProducts(cfg.Storage.DataDir); ok {
			printStatus("Catalog", "%d products", n)
		}
	}
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

func countProducts(dataDir string) (int, bool) {
	if _, err := os.Stat(filepath.Join(dataDir, "clickless.db")); err != nil {
		return 0, false
	}
	store, err := storage.Open(dataDir)
	if err != nil {
		return 0, false
	}
	defer store.Close()
	n, err := catalog.NewSQLiteStore(store.DB()).Count(context.Background())
	return n, err == nil
}
