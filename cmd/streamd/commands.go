package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"github.com/xtxerr/datastreams/internal/logging"
	"github.com/xtxerr/datastreams/internal/shell"
	"github.com/xtxerr/datastreams/internal/storage"
	"github.com/xtxerr/datastreams/internal/storage/config"
	"github.com/xtxerr/datastreams/internal/storage/parquet"
	"github.com/xtxerr/datastreams/internal/storage/query"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Open configured deployments and run until interrupted",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "shell",
				Usage: "run the interactive shell in the foreground",
			},
		},
		Action: serve,
	}
}

func shellCommand() *cli.Command {
	return &cli.Command{
		Name:  "shell",
		Usage: "Run shell commands interactively or from a script",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "script",
				Aliases: []string{"f"},
				Usage:   "read commands from `FILE` (- for stdin)",
			},
		},
		Action: runShell,
	}
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Describe a parquet snapshot",
		ArgsUsage: "<file>",
		Action:    inspect,
	}
}

// =============================================================================
// Service Setup
// =============================================================================

type daemon struct {
	cfg       *config.Config
	svc       *storage.Service
	analytics *query.Service
	metrics   *http.Server
}

// start builds the service, opens the configured deployments and imports
// their snapshots when enabled.
func start(cfg *config.Config) (*daemon, error) {
	log := logging.Component("streamd")

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	rt := &daemon{
		cfg: cfg,
		svc: storage.New(storage.WithSketchAccuracy(cfg.Stats.SketchAccuracy)),
	}

	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		rt.svc.RegisterMetrics(registry)

		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		rt.metrics = &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := rt.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", "error", err)
			}
		}()
		log.Info("metrics enabled", "listen", cfg.Metrics.Listen, "path", cfg.Metrics.Path)
	}

	analytics, err := query.New(cfg.Analytics)
	if err != nil {
		log.Warn("analytics unavailable", "error", err)
	} else {
		rt.analytics = analytics
	}

	for _, d := range cfg.Deployments {
		dc, err := d.Configuration()
		if err != nil {
			rt.stop()
			return nil, err
		}
		if err := rt.svc.OpenStreams(dc); err != nil {
			rt.stop()
			return nil, err
		}

		if cfg.Snapshot.ImportOnStart {
			if _, err := rt.svc.Import(dc.DeploymentID, cfg.SnapshotPath(dc.DeploymentID)); err != nil {
				rt.stop()
				return nil, err
			}
		}
	}

	log.Info("datastreams started",
		"version", Version,
		"deployments", len(cfg.Deployments))
	return rt, nil
}

// shutdown exports every deployment when enabled and releases resources.
func (rt *daemon) shutdown() error {
	log := logging.Component("streamd")

	var errs []error
	if rt.cfg.Snapshot.ExportOnShutdown {
		opts := parquet.DefaultOptions()
		opts.Compression = parquet.ParseCompressionType(rt.cfg.Snapshot.Compression)
		opts.RowGroupSize = rt.cfg.Snapshot.RowGroupSize

		for _, id := range rt.svc.Deployments() {
			if _, err := rt.svc.Export(id, rt.cfg.SnapshotPath(id), opts); err != nil {
				log.Error("snapshot export failed", "deployment", id, "error", err)
				errs = append(errs, err)
			}
		}
	}

	rt.stop()
	log.Info("datastreams stopped")
	return errors.Join(errs...)
}

func (rt *daemon) stop() {
	if rt.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rt.metrics.Shutdown(ctx)
		cancel()
	}
	if rt.analytics != nil {
		rt.analytics.Close()
	}
}

// =============================================================================
// Actions
// =============================================================================

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	rt, err := start(cfg)
	if err != nil {
		return err
	}

	if c.Bool("shell") {
		shell.NewExecutor(rt.svc, rt.analytics, cfg, os.Stdout).Run()
		return rt.shutdown()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logging.Component("streamd").Info("received signal, shutting down", "signal", sig)

	return rt.shutdown()
}

func runShell(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	rt, err := start(cfg)
	if err != nil {
		return err
	}

	e := shell.NewExecutor(rt.svc, rt.analytics, cfg, os.Stdout)

	switch script := c.String("script"); script {
	case "":
		e.Run()
	case "-":
		err = e.RunScript(os.Stdin)
	default:
		f, openErr := os.Open(script)
		if openErr != nil {
			rt.stop()
			return openErr
		}
		err = e.RunScript(f)
		f.Close()
	}

	return errors.Join(err, rt.shutdown())
}

func inspect(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: streamd inspect <file>")
	}
	path := c.Args().First()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	info, err := parquet.GetFileInfo(path)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "file\t%s\n", info.Path)
	fmt.Fprintf(w, "size\t%s\n", config.FormatBytes(info.Size))
	fmt.Fprintf(w, "rows\t%d\n", info.NumRows)
	fmt.Fprintf(w, "columns\t%d\n", info.NumCols)
	for _, key := range []string{parquet.MetaFormat, parquet.MetaDeployment, parquet.MetaSequences} {
		if v, ok := info.Metadata[key]; ok {
			fmt.Fprintf(w, "%s\t%s\n", key, v)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	analytics, err := query.New(cfg.Analytics)
	if err != nil {
		return err
	}
	defer analytics.Close()

	summaries, err := analytics.StreamSummaries(c.Context, path)
	if err != nil {
		return err
	}

	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STREAM\tSEQUENCES\tPOINTS\tFIRST\tLAST")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", s.Stream, s.Sequences, s.Points, s.MinSequenceID, s.MaxSequenceID)
	}
	return w.Flush()
}
