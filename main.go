package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/gitcontext/gcc-mcp/internal/audit"
	"github.com/gitcontext/gcc-mcp/internal/commands"
	"github.com/gitcontext/gcc-mcp/internal/config"
	"github.com/gitcontext/gcc-mcp/internal/server"
)

func main() {
	transport := flag.String("transport", "stdio", "Transport mode: stdio or http")
	port := flag.String("port", "8081", "HTTP port (only used with --transport http)")
	dataRoot := flag.String("data-root", "", "Directory for session data (overrides config)")
	configPath := flag.String("config", "", "Optional YAML config file")
	flag.Parse()

	// Logs go to stderr; stdout belongs to the stdio transport.
	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *dataRoot != "" {
		cfg.DataRoot = *dataRoot
	}

	var auditStore *audit.Store
	if cfg.Audit.Enabled {
		auditStore, err = audit.Open(cfg.Audit.Dir, log)
		if err != nil {
			log.Error("failed to open audit store", "dir", cfg.Audit.Dir, "error", err)
			os.Exit(1)
		}
		defer auditStore.Close()
	}

	svc := commands.New(cfg, log)
	srv := server.New(svc, auditStore)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch *transport {
	case "stdio":
		log.Info("gcc-mcp server starting", "transport", "stdio", "data_root", cfg.DataRoot)
		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	case "http":
		addr := ":" + *port
		handler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
			return srv
		}, nil)

		mux := http.NewServeMux()
		mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{
				"status":  "ok",
				"version": server.Version,
			})
		})
		mux.Handle("/", handler)

		log.Info("gcc-mcp server listening", "addr", addr, "data_root", cfg.DataRoot)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error("http server error", "error", err)
			os.Exit(1)
		}
	default:
		log.Error("unknown transport (use stdio or http)", "transport", *transport)
		os.Exit(1)
	}
}
