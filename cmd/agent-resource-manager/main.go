package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	metricsv "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/opscart/agent-resource-manager/pkg/config"
	"github.com/opscart/agent-resource-manager/pkg/facade"
	"github.com/opscart/agent-resource-manager/pkg/manager"
	"github.com/opscart/agent-resource-manager/pkg/metricsexport"
	"github.com/opscart/agent-resource-manager/pkg/models"
	"github.com/opscart/agent-resource-manager/pkg/monitor"
	"github.com/opscart/agent-resource-manager/pkg/report"
	"github.com/opscart/agent-resource-manager/pkg/storage"
)

var (
	// run flags
	samplerKind string
	namespace   string
	kubeconfig  string
	listenAddr  string
	stateFile   string
	dryRun      bool

	// report flags
	reportFormat string
	reportLimit  int

	cfg *config.Config
)

func main() {
	cfg = config.NewConfig()

	rootCmd := &cobra.Command{
		Use:   "agent-resource-manager",
		Short: "Resource manager for a pool of long-running worker agents",
		Long:  `Monitors system resources, detects pressure, enforces allocation limits and autoscales registered worker agents.`,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the resource manager control loops",
		RunE:  runManager,
	}
	runCmd.Flags().StringVar(&samplerKind, "sampler", "prometheus", "Metrics source: prometheus, metrics-server")
	runCmd.Flags().StringVarP(&namespace, "namespace", "n", "default", "Namespace holding the agent Deployments")
	runCmd.Flags().StringVar(&kubeconfig, "kubeconfig", "", "Path to kubeconfig (in-cluster config when empty)")
	runCmd.Flags().StringVar(&listenAddr, "listen", ":9464", "Address for the /metrics endpoint")
	runCmd.Flags().StringVar(&stateFile, "state-file", "", "Restore state from this file on start and write it on shutdown")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Record scaling decisions without touching any backend")

	reportCmd := &cobra.Command{
		Use:   "report <agent-id>",
		Short: "Show persisted scaling history for an agent",
		Args:  cobra.ExactArgs(1),
		RunE:  runReport,
	}
	reportCmd.Flags().StringVar(&reportFormat, "format", "text", "Output format: text, markdown")
	reportCmd.Flags().IntVar(&reportLimit, "limit", 20, "Number of events to show")

	rootCmd.AddCommand(runCmd, reportCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func buildLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	if cfg.Verbose {
		zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zapCfg.Build()
}

func kubeClient() (kubernetes.Interface, *rest.Config, error) {
	var restCfg *rest.Config
	var err error
	if kubeconfig != "" {
		restCfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	} else {
		restCfg, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build kubernetes config: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build kubernetes client: %w", err)
	}
	return clientset, restCfg, nil
}

func buildSampler(logger *zap.Logger) (monitor.Sampler, error) {
	switch samplerKind {
	case "prometheus":
		return monitor.NewPrometheusSampler(cfg.PrometheusURL, logger.Named("sampler"))
	case "metrics-server":
		clientset, restCfg, err := kubeClient()
		if err != nil {
			return nil, err
		}
		metricsClient, err := metricsv.NewForConfig(restCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to build metrics client: %w", err)
		}
		return monitor.NewMetricsServerSampler(clientset, metricsClient), nil
	default:
		return nil, fmt.Errorf("unknown sampler %q", samplerKind)
	}
}

func buildScaler() (manager.Scaler, error) {
	if dryRun {
		return manager.NewNoopScaler(), nil
	}
	clientset, _, err := kubeClient()
	if err != nil {
		return nil, err
	}
	return manager.NewKubernetesScaler(clientset, namespace), nil
}

func runManager(cmd *cobra.Command, _ []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := buildLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	sampler, err := buildSampler(logger)
	if err != nil {
		return err
	}
	scaler, err := buildScaler()
	if err != nil {
		return err
	}

	var store storage.Store
	if cfg.StorageEnabled {
		store, err = storage.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to storage: %w", err)
		}
		defer store.Close()
	}

	exporter := metricsexport.New(prometheus.DefaultRegisterer)

	f, err := facade.New(logger, cfg, facade.Options{
		Sampler:  sampler,
		Scaler:   scaler,
		Store:    store,
		Exporter: exporter,
	})
	if err != nil {
		return err
	}

	if stateFile != "" {
		if data, readErr := os.ReadFile(stateFile); readErr == nil {
			if importErr := f.ImportState(data); importErr != nil {
				return fmt.Errorf("failed to restore state from %s: %w", stateFile, importErr)
			}
			logger.Info("state restored", zap.String("file", stateFile))
		} else if !os.IsNotExist(readErr) {
			return readErr
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := f.Initialize(ctx); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: listenAddr, Handler: mux}
	go func() {
		logger.Info("metrics endpoint listening", zap.String("addr", listenAddr))
		if serveErr := server.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Error("metrics endpoint failed", zap.Error(serveErr))
		}
	}()

	// Drain the unified event stream into the log until shutdown
	go func() {
		for event := range f.Events() {
			logger.Info("event",
				zap.String("type", string(event.Type)),
				zap.String("agent_id", event.AgentID))
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if stateFile != "" {
		if data, exportErr := f.ExportState(); exportErr == nil {
			if writeErr := os.WriteFile(stateFile, data, 0o600); writeErr != nil {
				logger.Error("failed to write state file", zap.Error(writeErr))
			}
		} else {
			logger.Error("failed to export state", zap.Error(exportErr))
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics endpoint shutdown", zap.Error(err))
	}
	return f.Shutdown(shutdownCtx)
}

func runReport(cmd *cobra.Command, args []string) error {
	agentID := args[0]

	if !cfg.StorageEnabled {
		return fmt.Errorf("the report command reads persisted history; set STORAGE_ENABLED=true and DATABASE_URL")
	}

	store, err := storage.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to storage: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	events, err := store.ListScalingEvents(ctx, agentID, reportLimit)
	if err != nil {
		return fmt.Errorf("failed to load scaling events: %w", err)
	}
	usage, err := store.GetUsageHistory(ctx, agentID, 1)
	if err != nil {
		return fmt.Errorf("failed to load usage history: %w", err)
	}

	snapshot := facade.HealthReport{Timestamp: time.Now()}
	if len(usage) > 0 {
		latest := usage[0]
		snapshot.RegisteredAgents = 1
		snapshot.Agents = []facade.AgentSummary{{
			AgentID:                  latest.AgentID,
			Status:                   latest.Status,
			CPUUtilizationPercent:    latest.CPU.UtilizationPercent,
			MemoryUtilizationPercent: latest.Memory.UtilizationPercent,
			Replicas:                 latest.Replicas,
		}}
	}

	history := make([]models.ScalingEvent, 0, len(events))
	for _, event := range events {
		history = append(history, *event)
	}

	return report.New(report.Format(reportFormat)).Render(os.Stdout, snapshot,
		map[string][]models.ScalingEvent{agentID: history})
}
