package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/wellsight/mailwatch/internal/api"
	"github.com/wellsight/mailwatch/internal/config"
	"github.com/wellsight/mailwatch/internal/extract"
	"github.com/wellsight/mailwatch/internal/mailstore"
	"github.com/wellsight/mailwatch/internal/monitor"
)

const defaultConfigPath = "config.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error); overrides the config file")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath, *configPath == defaultConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, config.ErrMissingCredentials) {
			fmt.Fprintln(os.Stderr, "set them in your environment:")
			fmt.Fprintln(os.Stderr, "  export EMAIL_USER='your-email@example.com'")
			fmt.Fprintln(os.Stderr, "  export EMAIL_PASSWORD='your-app-password'")
		}
		os.Exit(1)
	}

	logger := setupLogger(resolveLogLevel(*logLevel, cfg.LogLevel))

	switch flag.Arg(0) {
	case "start":
		if err := runStart(cfg, logger); err != nil {
			os.Exit(1)
		}
	case "stop":
		if err := runStop(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	default:
		usage()
		os.Exit(2)
	}
}

func runStart(cfg *config.Config, logger *slog.Logger) error {
	if err := os.MkdirAll(cfg.GetAttachmentsDir(), 0o755); err != nil {
		logger.Error("creating attachment directory failed", "error", err)
		return err
	}

	if err := writePidFile(cfg.GetPidFile()); err != nil {
		logger.Error("writing pidfile failed", "error", err)
		return err
	}
	defer os.Remove(cfg.GetPidFile())

	store := newStore(cfg, logger)
	sink := api.New(cfg.APIBaseURL)
	extractor := extract.New(cfg.GetAttachmentsDir(), logger)
	mon := monitor.New(store, sink, extractor, cfg.PollInterval(), logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Force exit on second signal.
	go func() {
		<-ctx.Done()
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		logger.Warn("forced shutdown")
		os.Exit(1)
	}()

	return mon.Run(ctx)
}

// runStop signals the running monitor through its pidfile, funneling
// into the same cooperative shutdown path as Ctrl-C.
func runStop(cfg *config.Config) error {
	data, err := os.ReadFile(cfg.GetPidFile())
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "monitor is not running")
			return nil
		}
		return fmt.Errorf("read pidfile: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("parse pidfile: %w", err)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH) {
			fmt.Fprintln(os.Stderr, "monitor is not running")
			os.Remove(cfg.GetPidFile())
			return nil
		}
		return fmt.Errorf("signal process %d: %w", pid, err)
	}

	fmt.Printf("stop requested (pid %d)\n", pid)
	return nil
}

func newStore(cfg *config.Config, logger *slog.Logger) mailstore.Store {
	if cfg.GetProtocol() == "pop3" {
		return mailstore.NewPOP3(cfg.Server, cfg.GetPort(), cfg.Username, cfg.Password, logger)
	}
	return mailstore.NewIMAP(cfg.Server, cfg.GetPort(), cfg.Username, cfg.Password, cfg.GetMailbox(), logger)
}

func writePidFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

// resolveLogLevel prefers the command-line flag over the config file.
func resolveLogLevel(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: mailwatch [flags] start|stop")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Required environment variables:")
	fmt.Fprintln(os.Stderr, "  EMAIL_USER     - mail account address")
	fmt.Fprintln(os.Stderr, "  EMAIL_PASSWORD - mail account app password")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Optional environment variables:")
	fmt.Fprintln(os.Stderr, "  IMAP_SERVER    - mail server (default: imap.gmail.com)")
	fmt.Fprintln(os.Stderr, "  API_BASE_URL   - API base URL (default: http://localhost:5000/api)")
	fmt.Fprintln(os.Stderr)
	flag.PrintDefaults()
}
