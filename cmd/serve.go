package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/issues/internal/api"
	"github.com/joescharf/issues/internal/daemon"
	"github.com/joescharf/issues/internal/store"
)

const (
	shutdownTimeout = 5 * time.Second
	stopTimeout     = 5 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the issue tracker REST API server",
	Long: `Run the issue tracker HTTP server in the foreground.

Issues live in memory for the lifetime of the process. The server stops
gracefully on SIGINT or SIGTERM. Use 'issues serve start' to run it in
the background instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun(cmd.Context())
	},
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the server in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

func init() {
	serveCmd.PersistentFlags().String("host", "", "interface to listen on (default all)")
	serveCmd.PersistentFlags().IntP("port", "p", 3000, "port to listen on")
	_ = viper.BindPFlag("server.host", serveCmd.PersistentFlags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.PersistentFlags().Lookup("port"))

	serveCmd.AddCommand(serveStartCmd)
	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveStatusCmd)
	rootCmd.AddCommand(serveCmd)
}

func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(statePath("issues-serve.pid"))
}

func serveLogPath() string {
	return statePath("issues-serve.log")
}

func serveAddr() string {
	return net.JoinHostPort(viper.GetString("server.host"), strconv.Itoa(viper.GetInt("server.port")))
}

func serveRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := stateDir(); err != nil {
		return err
	}

	pf := pidFile()
	if err := pf.Acquire(); err != nil {
		return err
	}
	defer func() { _ = pf.Release() }()

	logger := newLogger(os.Stderr)
	srv := api.NewServer(store.NewMemoryStore(), logger)

	addr := serveAddr()
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, shutdownSignals()...)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()
	logger.Info("issue tracker listening", "addr", addr, "pid", os.Getpid())

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func serveStartRun() error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		return fmt.Errorf("server already running (pid %d)", pid)
	}

	if _, err := stateDir(); err != nil {
		return err
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}

	args := []string{"serve",
		"--host", viper.GetString("server.host"),
		"--port", strconv.Itoa(viper.GetInt("server.port")),
	}
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		args = append(args, "--config", cfgFile)
	}

	if dryRun {
		ui.DryRunMsg("Would run in background: %s %v", exe, args)
		return nil
	}

	logPath := serveLogPath()
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	setDaemonAttrs(child)

	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	pid := child.Process.Pid
	_ = child.Process.Release()

	ui.Success("Server started (pid %d) on %s", pid, serveAddr())
	ui.VerboseLog("Logging to %s", logPath)
	return nil
}

func serveStopRun() error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	if !running {
		return fmt.Errorf("server not running")
	}

	if dryRun {
		ui.DryRunMsg("Would stop server (pid %d)", pid)
		return nil
	}

	if err := pf.Signal(sigTERM()); err != nil {
		return fmt.Errorf("signal server: %w", err)
	}
	if !pf.WaitExit(stopTimeout, 100*time.Millisecond) {
		ui.Warning("Server did not exit within %s, killing", stopTimeout)
		if err := pf.Signal(sigKILL()); err != nil {
			return fmt.Errorf("kill server: %w", err)
		}
		_ = pf.Remove()
	}

	ui.Success("Server stopped (pid %d)", pid)
	return nil
}

func serveStatusRun() error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	if !running {
		ui.Info("Server not running")
		return nil
	}
	ui.Info("Server running (pid %d) on %s", pid, serveAddr())
	return nil
}
