package cmd

import (
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/ollama/turntable/envconfig"
	"github.com/ollama/turntable/oracle"
	"github.com/ollama/turntable/runner"
)

func NewRunnerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "runner",
		Aliases: []string{"serve"},
		Short:   "Start a view synthesis runner",
		Args:    cobra.NoArgs,
		RunE:    RunServer,
	}

	appendEnvDocs(cmd, envDocs(
		"TURNTABLE_HOST",
		"TURNTABLE_RUNNER_PARALLEL",
		"TURNTABLE_ORIGINS",
		"TURNTABLE_DEBUG",
	))
	return cmd
}

// RunServer serves the built-in blend oracle on TURNTABLE_HOST.
func RunServer(cmd *cobra.Command, _ []string) error {
	if envconfig.LogLevel() >= slog.LevelInfo {
		gin.SetMode(gin.ReleaseMode)
	}

	ln, err := net.Listen("tcp", envconfig.Host().Host)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s := runner.NewServer(oracle.Blend{}, int(envconfig.RunnerParallel()))
	return runner.Serve(ctx, ln, s)
}
