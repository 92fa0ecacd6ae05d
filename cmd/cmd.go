package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ollama/turntable/envconfig"
	"github.com/ollama/turntable/logutil"
	"github.com/ollama/turntable/version"
)

func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-26s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

func envDocs(names ...string) []envconfig.EnvVar {
	all := envconfig.AsMap()
	envs := make([]envconfig.EnvVar, 0, len(names))
	for _, name := range names {
		envs = append(envs, all[name])
	}
	return envs
}

func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:          "turntable",
		Short:        "Grow a 360° turntable of views from a single photo",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Version: version.Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			slog.SetDefault(logutil.NewLogger(os.Stderr, envconfig.LogLevel()))
			return envconfig.Validate()
		},
	}

	rootCmd.SetVersionTemplate(`turntable version {{.Version}}` + "\n")

	rootCmd.AddCommand(
		NewRunCmd(),
		NewPlanCmd(),
		NewRunnerCmd(),
		NewConfigCmd(),
	)

	return rootCmd
}

// flagOr returns the flag value when it was given and the fallback otherwise.
func flagOr[T any](cmd *cobra.Command, name string, get func(string) (T, error), fallback T) (T, error) {
	if !cmd.Flags().Changed(name) {
		return fallback, nil
	}

	v, err := get(name)
	if err != nil {
		return fallback, fmt.Errorf("--%s: %w", name, err)
	}
	return v, nil
}
