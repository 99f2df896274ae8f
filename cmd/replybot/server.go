package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/replybot/internal/api"
	"github.com/kalambet/replybot/internal/config"
	"github.com/kalambet/replybot/internal/dispatch"
	"github.com/kalambet/replybot/internal/matrix"
	"github.com/kalambet/replybot/internal/reply"
	"github.com/kalambet/replybot/internal/schedule"
	"github.com/kalambet/replybot/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the replybot server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running replybot server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show replybot status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	startCmd.Flags().Bool("mcp", false, "also serve MCP over stdin/stdout")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "replybot.pid")
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

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "replybot version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg)

	// Refuse to start twice on the same port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("replybot is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("replybot is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The index is fitted before anything that answers messages starts.
	c, err := loadCorpus(ctx, cfg)
	if err != nil {
		return err
	}
	ix, err := fitIndex(c, cfg)
	if err != nil {
		return err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	replies := reply.NewService(ix, store)

	plan, err := buildSchedule(cfg, c.Pool)
	if err != nil {
		return err
	}

	var (
		bot       *matrix.Bot
		transport dispatch.Sender = dispatch.LogSender{}
	)
	if cfg.Matrix.Enabled() {
		var rooms []string
		if strings.HasPrefix(plan.Recipient, "!") {
			rooms = append(rooms, plan.Recipient)
		}
		bot, err = matrix.New(matrix.Config{
			Homeserver:  cfg.Matrix.Homeserver,
			UserID:      cfg.Matrix.UserID,
			AccessToken: cfg.Matrix.AccessToken,
			Rooms:       rooms,
			SendRate:    cfg.Matrix.SendRate,
		}, replies)
		if err != nil {
			return err
		}
		transport = bot
	} else {
		slog.Warn("matrix is not configured; outbound messages are only logged")
	}
	sender := dispatch.NewRecorder(transport, store, nil)

	sched, err := schedule.New(plan.Triggers, sender, schedule.Options{
		Location:  plan.Location,
		Recipient: plan.Recipient,
	})
	if err != nil {
		return err
	}

	if cfg.API.Token == "" {
		slog.Warn("REPLYBOT_API_TOKEN is empty; management routes are unauthenticated")
	}
	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr: addr,
		Handler: api.NewHandler(api.Deps{
			Replier:   replies,
			Corpus:    c.Stats(),
			Store:     store,
			Sender:    sender,
			Recipient: plan.Recipient,
			Token:     cfg.API.Token,
		}),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if len(plan.Triggers) > 0 {
		g.Go(func() error { return sched.Run(gctx) })
	} else {
		slog.Info("no scheduled triggers; set schedule.file or schedule.recipient to enable them")
	}

	if bot != nil {
		g.Go(func() error { return bot.Run(gctx) })
	}

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Replier:   replies,
			Sender:    sender,
			Recipient: plan.Recipient,
			Store:     store,
			Corpus:    c.Stats(),
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)")
	}

	slog.Info("bot is running", "pairs", len(c.Pairs), "triggers", len(plan.Triggers), "schedule", plan.Source, "matrix", bot != nil)

	err = g.Wait()
	slog.Info("shutting down")
	return err
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("replybot is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop replybot (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to replybot (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	client := &apiClient{
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
		token:      cfg.API.Token,
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}

	running := false
	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if running {
		var stats api.CorpusStatsResponse
		if resp, err := client.get(ctx, "/corpus/stats"); err == nil && decodeJSON(resp, &stats) == nil {
			printStatus("Corpus", "%d pairs from %d transcript(s), vocabulary %d", stats.Corpus.Pairs, len(stats.Corpus.Sources), stats.Index.Vocabulary)
		}
		var interactions api.CountsResponse
		if resp, err := client.get(ctx, "/interactions/counts"); err == nil && decodeJSON(resp, &interactions) == nil {
			printStatus("Interactions", "%s", formatCounts(interactions))
		}
		var dispatches api.CountsResponse
		if resp, err := client.get(ctx, "/dispatches/counts"); err == nil && decodeJSON(resp, &dispatches) == nil {
			printStatus("Dispatches", "%s", formatCounts(dispatches))
		}
	}

	if cfg.Matrix.Enabled() {
		printStatus("Matrix", "%s on %s", cfg.Matrix.UserID, cfg.Matrix.Homeserver)
	} else {
		printStatus("Matrix", "not configured")
	}
	switch {
	case cfg.Schedule.File != "":
		printStatus("Schedule", "%s (UTC%s)", cfg.Schedule.File, cfg.Schedule.UTCOffset)
	case cfg.Schedule.Recipient != "":
		printStatus("Schedule", "default triggers to %s (UTC%s)", cfg.Schedule.Recipient, cfg.Schedule.UTCOffset)
	default:
		printStatus("Schedule", "none")
	}
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

// formatCounts renders "12 (emoji 3, similarity 9)" with keys sorted.
func formatCounts(c api.CountsResponse) string {
	if c.Total == 0 {
		return "0"
	}
	keys := make([]string, 0, len(c.Counts))
	for k := range c.Counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s %d", k, c.Counts[k])
	}
	return fmt.Sprintf("%d (%s)", c.Total, strings.Join(parts, ", "))
}
