// Package main is the kbserve CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/kbserve/internal/answer"
	"github.com/hyperjump/kbserve/internal/cli"
	"github.com/hyperjump/kbserve/internal/config"
	"github.com/hyperjump/kbserve/internal/health"
	"github.com/hyperjump/kbserve/internal/models"
	"github.com/hyperjump/kbserve/internal/server"
	"github.com/hyperjump/kbserve/internal/storage"
	"github.com/hyperjump/kbserve/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/kbserve/config.yaml"
	defaultServerURL  = "http://localhost:8000"
)

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory is preferred if it exists, and built-in defaults are used if neither exists.
// Returns the config and the path that was actually loaded ("" for built-in defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			cfg, err := config.Default()
			if err != nil {
				return nil, "", err
			}
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "health":
		os.Exit(runHealth(os.Args[2:], os.Stdout))
	case "ask":
		runAsk()
	case "init":
		runInit()
	case "version", "--version", "-v":
		fmt.Printf("kbserve version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func newReporter(cfg *config.Config, logger *zap.Logger) *health.Reporter {
	return health.NewReporter(
		health.SQLiteOpener(cfg.Storage.DatabasePath),
		cfg.APIKeySet(),
		health.WithTimeout(cfg.Health.Timeout),
		health.WithLogger(logger),
	)
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	port := fs.Int("port", 0, "override server port")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.String("database_path", cfg.Storage.DatabasePath),
		zap.Bool("api_key_set", cfg.APIKeySet()),
		zap.Bool("debug", debugMode),
	)

	srv := server.NewServer(
		newReporter(cfg, logger),
		answer.NewEchoAnswerer(),
		&cfg.Server,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// runHealth prints a readiness report and returns the process exit code:
// 0 when healthy, 1 when unhealthy, 2 on usage or transport errors.
func runHealth(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (for direct store mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL; empty checks the store directly")
	output := fs.String("output", "text", "output format: text or json")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	format, err := cli.ParseOutputFormat(*output)
	if err != nil {
		fmt.Fprintln(out, err)
		return 2
	}

	var report *models.HealthReport
	if *serverURL != "" {
		report, err = healthViaHTTP(*serverURL)
		if err != nil {
			fmt.Fprintf(out, "Health request failed: %v\n", err)
			return 2
		}
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(out, "Failed to load config: %v\n", err)
			return 2
		}
		report = newReporter(cfg, zap.NewNop()).Check(context.Background())
	}

	if err := cli.WriteHealthReport(out, report, format); err != nil {
		fmt.Fprintf(out, "Output failed: %v\n", err)
		return 2
	}
	if !report.Healthy() {
		return 1
	}
	return 0
}

func healthViaHTTP(serverURL string) (*models.HealthReport, error) {
	resp, err := http.Get(strings.TrimRight(serverURL, "/") + "/health")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var report models.HealthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("invalid health response: %w", err)
	}
	return &report, nil
}

// buildQuestion joins positional args into a single question.
func buildQuestion(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	question := buildQuestion(fs.Args())
	if question == "" {
		fmt.Println("Usage: kbserve ask [flags] <question>")
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*output)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	resp, err := askViaHTTP(*serverURL, &models.QueryRequest{Question: question})
	if err != nil {
		fmt.Printf("Query failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteAnswer(os.Stdout, resp, format); err != nil {
		fmt.Printf("Output failed: %v\n", err)
		os.Exit(1)
	}
}

func askViaHTTP(serverURL string, req *models.QueryRequest) (*models.QueryResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(strings.TrimRight(serverURL, "/")+"/query", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var out models.QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("invalid query response: %w", err)
	}
	return &out, nil
}

func runInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	writeConfig := fs.String("write-config", "", "also write the effective config to this path")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		fmt.Printf("Failed to initialize knowledge base: %v\n", err)
		os.Exit(1)
	}
	_ = store.Close()
	fmt.Printf("Knowledge base ready: %s\n", cfg.Storage.DatabasePath)

	if *writeConfig != "" {
		if err := config.Save(*writeConfig, cfg); err != nil {
			fmt.Printf("Failed to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Config written: %s\n", *writeConfig)
	}
}

func printUsage() {
	fmt.Println(`kbserve - Knowledge base question-answering service

Usage:
  kbserve server [flags]           Start the HTTP server
  kbserve health [flags]           Report knowledge base readiness
  kbserve ask [flags] <question>   Send a question to a running server
  kbserve init [flags]             Create the knowledge base schema
  kbserve version                  Show version
  kbserve help                     Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kbserve/config.yaml)
  --debug            Enable debug logging
  --port int         Override server port

Health Flags:
  --config string    Config file path (for direct store mode)
  --server string    Server URL (default: http://localhost:8000). Use empty (--server "") to check the store directly.
  --output string    Output format: text or json (default: text)

Ask Flags:
  --server string    Server URL (default: http://localhost:8000)
  --output string    Output format: text or json (default: text)

Init Flags:
  --config string        Config file path
  --write-config string  Write the effective config to this path

Environment:
  API_KEY            API credential (name configurable via auth.api_key_env; may be set in .env)

Examples:
  kbserve init --write-config ./config.yaml
  kbserve server --debug
  kbserve health
  kbserve health --server "" --output json
  kbserve ask "Should I use gpt-4o-mini or gpt-3.5-turbo?"`)
}
