package main

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"github.com/ollama/turntable/cmd"
)

func main() {
	if err := cmd.LoadDotEnvFromTurntableFolder(); err != nil {
		log.Fatal(err)
	}
	cobra.CheckErr(cmd.NewCLI().ExecuteContext(context.Background()))
}
