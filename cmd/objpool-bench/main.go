// Command objpool-bench exercises and diagnoses a pool.Pool from the command
// line: creating a local or shared-owner pool and churning it, attaching to
// an already-created shared segment as a client, or serving Prometheus
// metrics alongside a continuous churn workload.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/SlickQuant/slick-object-pool/pool"
)

const serveShutdownGrace = 2 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("OBJPOOL_BENCH")
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "objpool-bench",
		Short: "Exercise and diagnose a slick-object-pool Pool",
	}
	root.PersistentFlags().String("config", "", "path to an optional config file (yaml/json/toml)")
	root.PersistentFlags().Uint64("capacity", 1024, "pool capacity (power of two)")
	root.PersistentFlags().Int("workers", runtime.NumCPU(), "churn worker count")
	root.PersistentFlags().Int("iterations", 100000, "allocate/free round-trips per worker (0 = unbounded)")
	root.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().Bool("dev", false, "use development (console) logging")
	_ = v.BindPFlags(root.PersistentFlags())

	root.AddCommand(newCreateCmd(v), newAttachCmd(v), newServeCmd(v))
	return root
}

func bindConfigFile(v *viper.Viper, cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file %s: %w", path, err)
	}
	return nil
}

func newCreateCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a local or shared-owner pool and run a churn workload against it",
		RunE: func(cmd *cobra.Command, args []string) error {
			// serve binds its own --shared flag to the same key; rebind so
			// this command's flag is the one viper reads.
			if err := v.BindPFlag("shared", cmd.Flags().Lookup("shared")); err != nil {
				return err
			}
			if err := bindConfigFile(v, cmd); err != nil {
				return err
			}
			cfg, err := loadRunConfig(v)
			if err != nil {
				return err
			}
			log, err := newLogger(cfg.LogLevel, cfg.Development)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			p, err := buildPool(cfg)
			if err != nil {
				return err
			}
			defer p.Close()

			log.Info("pool created",
				zap.String("mode", p.Mode().String()),
				zap.Uint64("capacity", p.Capacity()),
				zap.String("name", p.Name()))

			result, err := runChurn(cmd.Context(), p, cfg, nil, log)
			if err != nil {
				return err
			}
			reportChurn(log, p, result)
			return nil
		},
	}
	cmd.Flags().String("shared", "", "shared-memory segment name (creates it if absent)")
	_ = v.BindPFlag("shared", cmd.Flags().Lookup("shared"))
	return cmd
}

// reportChurn logs the throughput, fallback-path hit rate, and final
// reserved/consumed equality a completed churn run produced.
func reportChurn(log *zap.Logger, p *pool.Pool[bench], result churnResult) {
	throughput := float64(result.totalAllocations) / result.elapsed.Seconds()
	var fallbackRate float64
	if result.totalAllocations > 0 {
		fallbackRate = float64(result.heapFallbacks) / float64(result.totalAllocations)
	}
	log.Info("churn report",
		zap.Float64("allocations_per_second", throughput),
		zap.Float64("fallback_rate", fallbackRate),
		zap.Uint64("reserved", p.Reserved()),
		zap.Uint64("consumed", p.Consumed()),
		zap.Bool("reserved_consumed_equal", p.Reserved() == p.Consumed()))
}

func newAttachCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attach NAME",
		Short: "Attach to an existing shared segment as a client and run a churn workload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := bindConfigFile(v, cmd); err != nil {
				return err
			}
			cfg, err := loadRunConfig(v)
			if err != nil {
				return err
			}
			cfg.SharedName = args[0]

			log, err := newLogger(cfg.LogLevel, cfg.Development)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			p, err := pool.AttachShared[bench](cfg.SharedName)
			if err != nil {
				return fmt.Errorf("attach %q: %w", cfg.SharedName, err)
			}
			defer p.Close()

			log.Info("attached to shared pool",
				zap.String("name", cfg.SharedName),
				zap.Uint64("capacity", p.Capacity()))

			result, err := runChurn(cmd.Context(), p, cfg, nil, log)
			if err != nil {
				return err
			}
			reportChurn(log, p, result)
			return nil
		},
	}
	return cmd
}

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a continuous churn workload while serving Prometheus metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := bindConfigFile(v, cmd); err != nil {
				return err
			}
			cfg, err := loadRunConfig(v)
			if err != nil {
				return err
			}
			cfg.Iterations = 0 // serve runs until interrupted

			log, err := newLogger(cfg.LogLevel, cfg.Development)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			p, err := buildPool(cfg)
			if err != nil {
				return err
			}
			defer p.Close()

			reg := prometheus.NewRegistry()
			m := newPoolMetrics(reg, poolLabel(cfg))

			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			addr := cfg.MetricsAddr
			if addr == "" {
				addr = ":9090"
			}
			srv := &http.Server{Addr: addr, Handler: mux}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go func() {
				log.Info("serving metrics", zap.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("metrics server failed", zap.Error(err))
				}
			}()

			_, err = runChurn(ctx, p, cfg, m, log)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownGrace)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
			return err
		},
	}
	cmd.Flags().String("shared", "", "shared-memory segment name (creates it if absent)")
	cmd.Flags().String("metrics-addr", ":9090", "address to serve /metrics on")
	_ = v.BindPFlag("shared", cmd.Flags().Lookup("shared"))
	_ = v.BindPFlag("metrics-addr", cmd.Flags().Lookup("metrics-addr"))
	return cmd
}

func buildPool(cfg runConfig) (*pool.Pool[bench], error) {
	if cfg.SharedName == "" {
		return pool.New[bench](cfg.Capacity)
	}
	return pool.NewShared[bench](cfg.Capacity, cfg.SharedName)
}

func poolLabel(cfg runConfig) string {
	if cfg.SharedName != "" {
		return cfg.SharedName
	}
	return "local"
}
