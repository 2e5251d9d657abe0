// Package main provides the replication server.
//
// Architecture Overview:
//
//	┌─────────────┐     ┌─────────────┐     ┌─────────────┐
//	│   Origin    │────▶│  Controller │────▶│    Ring     │
//	│  Commands   │     │ (mode, SDB) │     │   Buffer    │
//	└─────────────┘     └──────┬──────┘     └──────┬──────┘
//	                           │                    │
//	                           ▼                    ▼
//	                    ┌─────────────┐     ┌─────────────┐
//	                    │  RESP / RPC │     │   Reader    │
//	                    │   Server    │◀────│   Workers   │
//	                    └─────────────┘     └─────────────┘
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

	"github.com/rishav/replcore/internal/config"
	"github.com/rishav/replcore/internal/logging"
	"github.com/rishav/replcore/internal/metrics"
	"github.com/rishav/replcore/internal/replication"
	"github.com/rishav/replcore/internal/ring"
	"github.com/rishav/replcore/internal/slab"
	"github.com/rishav/replcore/internal/transport"
)

// Server wires the ring, the replication controller, the RPC transport
// server, and an optional Prometheus exporter into one running process.
type Server struct {
	cfg        config.Config
	controller *replication.Controller
	rpcServer  *transport.Server
	metricsSrv *http.Server
}

// NewServer constructs every component from cfg without starting
// anything.
func NewServer(cfg config.Config) (*Server, error) {
	log, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("server: building logger: %w", err)
	}

	var coll *metrics.Collector
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		coll = metrics.New(reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
	}

	ctrl, err := replication.New(
		ring.Config{Capacity: cfg.Ring.Capacity, MaxReplicas: cfg.Ring.MaxReplicas},
		slab.Config{SlabSize: int(cfg.Ring.SlabSize.Bytes()), ObjSize: int(cfg.Ring.SlabObjectSize.Bytes())},
		log, coll,
	)
	if err != nil {
		return nil, fmt.Errorf("server: building controller: %w", err)
	}
	rpcServer := transport.NewServer(cfg.Listen, ctrl, log)

	return &Server{
		cfg:        cfg,
		controller: ctrl,
		rpcServer:  rpcServer,
		metricsSrv: metricsSrv,
	}, nil
}

// Start runs the RPC server and, if enabled, the metrics server. It
// blocks until Shutdown is called or the RPC server stops on its own.
func (s *Server) Start() error {
	if s.metricsSrv != nil {
		go func() {
			_ = s.metricsSrv.ListenAndServe()
		}()
	}
	return s.rpcServer.Serve()
}

// Shutdown stops accepting new connections, evicts every replica, and
// tears down the metrics server, honoring ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	_ = s.rpcServer.Close()
	s.controller.Stop()
	if s.metricsSrv != nil {
		return s.metricsSrv.Shutdown(ctx)
	}
	return nil
}

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "replica-serverd",
		Short: "Run the replication core as a standalone server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			srv, err := NewServer(cfg)
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case <-sigCh:
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(ctx)
			}
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
