package cmd

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ollama/turntable/envconfig"
)

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE:  configHandler,
	}

	cmd.Flags().Bool("example", false, "Print an example configuration file")
	appendEnvDocs(cmd, envDocs("TURNTABLE_CONFIG"))
	return cmd
}

func configHandler(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	if example, _ := cmd.Flags().GetBool("example"); example {
		_, err := io.WriteString(w, envconfig.GenerateExampleConfig())
		return err
	}

	writeConfig(w)
	return nil
}

func writeConfig(w io.Writer) {
	all := envconfig.AsMap()
	var data [][]string
	for _, name := range envconfig.Names() {
		v := all[name]
		data = append(data, []string{name, fmt.Sprintf("%v", v.Value), v.Description})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"NAME", "VALUE", "DESCRIPTION"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.SetAutoWrapText(false)
	table.AppendBulk(data)
	table.Render()

	if path := envconfig.ConfigPath(); path != "" {
		fmt.Fprintf(w, "\nloaded from %s\n", path)
	} else {
		fmt.Fprintln(w, "\nno configuration file found")
	}
}
