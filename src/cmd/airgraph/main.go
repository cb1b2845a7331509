package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Blackdeer1524/airgraph/src/app"
)

func main() {
	var nuke bool

	root := &cobra.Command{
		Use:   "airgraph",
		Short: "Ingest an Airtable base into Neo4j as a labeled property graph",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(
				cmd.Context(),
				os.Interrupt,
				syscall.SIGTERM,
			)
			defer stop()

			e := &app.IngestEntrypoint{Nuke: nuke}
			if err := e.Init(ctx); err != nil {
				return fmt.Errorf("init: %w", err)
			}

			defer func() {
				if err := e.Close(); err != nil {
					fmt.Fprintln(os.Stderr, "close:", err)
				}
			}()

			return e.Run(ctx)
		},
		SilenceUsage: true,
	}

	root.Flags().BoolVar(
		&nuke,
		"nuke",
		false,
		"irreversibly wipe the whole graph store before ingesting",
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
