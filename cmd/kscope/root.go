package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/renato0307/kscope/internal/config"
	"github.com/renato0307/kscope/internal/engine"
	"github.com/renato0307/kscope/internal/k8s"
	"github.com/renato0307/kscope/internal/logging"
	"github.com/renato0307/kscope/internal/ui"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func newRootCommand(out io.Writer) *cobra.Command {
	var configFile string
	d := config.Default()

	cmd := &cobra.Command{
		Use:           "kscope",
		Short:         "Live terminal dashboard for Kubernetes clusters",
		Long:          "kscope polls the resources and utilization of a cluster and keeps them on screen, with describe, YAML and log streaming on demand. It never modifies the cluster.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		Args:          cobra.NoArgs,
	}
	cmd.SetOut(out)

	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "config file (default $XDG_CONFIG_HOME/kscope/config.yaml)")
	f.String("kubeconfig", "", "path to the kubeconfig file (default $KUBECONFIG or ~/.kube/config)")
	f.String("context", "", "kubeconfig context to open (default: current context)")
	f.StringP("namespace", "n", "", "namespace scope (default: all namespaces)")
	f.String("glob", "", "initial glob filter on resource names")
	f.Duration("poll-interval", d.PollInterval, "interval between fetches of each kind")
	f.Duration("tick-interval", d.TickInterval, "render and scheduling tick, below 1s")
	f.Duration("request-timeout", d.RequestTimeout, "timeout of a single API request")
	f.Duration("connect-timeout", d.ConnectTimeout, "timeout of the connectivity check on context activation")
	f.Int("metrics-stale-factor", d.MetricsStaleFactor, "poll intervals after which utilization samples are ignored")
	f.Int("log-buffer-lines", d.LogBufferLines, "lines kept for a log stream")
	f.Int64("log-tail-lines", d.LogTailLines, "existing lines shown when a log stream opens")
	f.Int("document-history", d.DocumentHistory, "describe and YAML requests kept")
	f.Bool("poll-custom-kinds", d.PollCustomKinds, "poll discovered custom resource kinds too")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. 127.0.0.1:9090")
	f.String("theme", d.Theme, fmt.Sprintf("color theme %v", ui.AvailableThemes()))
	f.String("log-file", "", "write logs to this file (default: no logging)")
	f.String("log-level", "info", "log level (debug, info, warn, error)")
	f.String("log-format", string(d.Log.Format), "log format (text, json)")

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		loader := config.NewLoader(configFile)
		if err := loader.BindFlags(cmd.Flags()); err != nil {
			return fmt.Errorf("bind flags: %w", err)
		}
		cfg, err := loader.Load()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return run(cmd.Context(), cfg)
	}
	return cmd
}

// run starts the engine, the optional metrics endpoint and the dashboard.
// It returns when the dashboard exits.
func run(ctx context.Context, cfg config.Config) error {
	if err := logging.Init(cfg.Log); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logging.Shutdown()
	silenceKlog()
	defer klog.Flush()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	kubeconfig := cfg.Kubeconfig
	if kubeconfig == "" {
		kubeconfig = k8s.DefaultKubeconfigPath()
	}
	eng := engine.New(engine.Options{
		Connector:          &k8s.KubeconfigConnector{Path: kubeconfig, RequestTimeout: cfg.RequestTimeout},
		KubeconfigPath:     kubeconfig,
		Context:            cfg.Context,
		Namespace:          cfg.Namespace,
		Glob:               cfg.Glob,
		TickInterval:       cfg.TickInterval,
		PollInterval:       cfg.PollInterval,
		RequestTimeout:     cfg.RequestTimeout,
		ConnectTimeout:     cfg.ConnectTimeout,
		MetricsStaleFactor: cfg.MetricsStaleFactor,
		PollCustomKinds:    cfg.PollCustomKinds,
		LogBufferLines:     cfg.LogBufferLines,
		LogTailLines:       cfg.LogTailLines,
		DocumentHistory:    cfg.DocumentHistory,
		Registerer:         reg,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(gctx)
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.MetricsAddr, reg)
		})
	}

	logging.Info("starting dashboard",
		"context", cfg.Context,
		"namespace", cfg.Namespace,
		"poll_interval", cfg.PollInterval,
		"tick_interval", cfg.TickInterval,
	)

	p := tea.NewProgram(
		ui.NewModel(eng, ui.GetTheme(cfg.Theme), cfg.TickInterval),
		tea.WithAltScreen(),
		tea.WithContext(gctx),
	)
	_, runErr := p.Run()
	cancel()

	if err := g.Wait(); err != nil {
		return err
	}
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("run dashboard: %w", runErr)
	}
	return nil
}

// silenceKlog keeps client-go from writing over the dashboard
func silenceKlog() {
	fs := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(fs)
	_ = fs.Set("logtostderr", "false")
	_ = fs.Set("stderrthreshold", "FATAL")
	_ = fs.Set("v", "0")
	klog.SetOutput(io.Discard)
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()

	logging.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve metrics on %s: %w", addr, err)
	}
	return nil
}
