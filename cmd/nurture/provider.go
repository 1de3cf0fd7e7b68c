package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fernwell/nurture/internal/app"
	"github.com/fernwell/nurture/internal/config"
	"github.com/fernwell/nurture/internal/db"
	"github.com/fernwell/nurture/internal/dispatch"
	"github.com/fernwell/nurture/internal/provider"
	"github.com/fernwell/nurture/internal/queue"
)

var providerCmd = &cobra.Command{
	Use:   "provider",
	Short: "Email provider commands",
}

var providerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered providers",
	RunE:  runProviderList,
}

var providerTestCmd = &cobra.Command{
	Use:   "test <name>",
	Short: "Test connectivity to a provider",
	Args:  cobra.ExactArgs(1),
	RunE:  runProviderTest,
}

func init() {
	providerCmd.AddCommand(providerListCmd, providerTestCmd)
}

// openConfigured loads the config, opens storage and returns a registry
// with credentials applied from the environment and settings store.
func openConfigured() (*provider.Registry, func(), error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}

	database, err := db.New(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, nil, err
	}

	storage, err := queue.NewBoltStorage(cfg.Queue.Path)
	if err != nil {
		database.Close()
		return nil, nil, err
	}

	registry := app.NewRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	d := dispatch.New(database.DB, storage, registry, logger, cfg.Queue.BatchSize)
	if err := d.SyncEnvSettings(); err != nil {
		storage.Close()
		database.Close()
		return nil, nil, err
	}
	if err := d.ConfigureProviders(); err != nil {
		storage.Close()
		database.Close()
		return nil, nil, err
	}

	cleanup := func() {
		storage.Close()
		database.Close()
	}
	return registry, cleanup, nil
}

func runProviderList(cmd *cobra.Command, args []string) error {
	registry, cleanup, err := openConfigured()
	if err != nil {
		return err
	}
	defer cleanup()

	active := registry.ActiveName()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tACTIVE")
	for _, name := range registry.Names() {
		marker := ""
		if name == active {
			marker = "*"
		}
		fmt.Fprintf(w, "%s\t%s\n", name, marker)
	}
	return w.Flush()
}

func runProviderTest(cmd *cobra.Command, args []string) error {
	registry, cleanup, err := openConfigured()
	if err != nil {
		return err
	}
	defer cleanup()

	p, err := registry.Get(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result := p.TestConnection(ctx)
	if !result.Success {
		return fmt.Errorf("%s: %s", p.Name(), result.Message)
	}

	fmt.Printf("%s: %s\n", p.Name(), result.Message)
	return nil
}
