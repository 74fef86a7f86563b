package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hurttlocker/intake/internal/api"
	"github.com/hurttlocker/intake/internal/catalog"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	Long: `Serve the chat, record, job catalog and settings endpoints over HTTP.

The job catalog directory is watched; adding, editing or removing a .txt
file is picked up without a restart.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "address to listen on (default :8000)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := openApp(openOpts{listen: serveListen, needProvider: true})
	if err != nil {
		return err
	}
	defer a.close()

	srv, err := api.NewServer(api.ServerConfig{
		Engine:         a.engine,
		Store:          a.store,
		Catalog:        a.catalog,
		Logger:         a.log,
		AllowedOrigins: a.cfg.Origins(),
		Now:            time.Now,
	})
	if err != nil {
		return err
	}

	a.log.Info("starting intake",
		"version", version,
		"provider", a.provider.Name(),
		"db", a.cfg.DBPath.Value,
		"jobs_dir", a.cfg.JobsDir.Value,
		"jobs", a.catalog.Snapshot().Len(),
	)

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		return a.catalog.Watch(ctx, catalog.DefaultDebounce, func(err error) {
			if err != nil {
				a.log.Warn("catalog reload failed", "error", err)
			}
		})
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(ctx, a.cfg.Listen.Value); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	return g.Wait()
}
