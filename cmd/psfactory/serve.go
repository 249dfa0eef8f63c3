// Frontline Perception System
// Copyright (C) 2020-2025 TurbineOne LLC
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/TurbineOne/pixel-shell/pkg/archive"
	"github.com/TurbineOne/pixel-shell/pkg/converter"
	"github.com/TurbineOne/pixel-shell/pkg/ffmpeg"
	"github.com/TurbineOne/pixel-shell/pkg/metrics"
	"github.com/TurbineOne/pixel-shell/pkg/service"
)

const (
	lAddr   = "addr"
	lSocket = "socket"
)

const metricsShutdownTimeout = 5 * time.Second

func runServe(ctx context.Context, args []string) error {
	fs := newFlagSet("serve", "[flags]")
	socketRoot := fs.String("socket-root", currentConfig.Service.ServiceSocketRoot, "directory for the gRPC socket")
	metricsAddr := fs.String("metrics", currentConfig.Service.MetricsAddr, "address to serve /metrics on; empty disables")

	if err := fs.Parse(args); err != nil {
		return err //nolint:wrapcheck // Reported by the flag package.
	}

	serviceSocket := filepath.Join(*socketRoot, service.SocketName)
	if err := os.RemoveAll(serviceSocket); err != nil {
		log.Error().Err(err).Msg("failed to remove existing socket")
	}

	l, err := net.Listen("unix", serviceSocket)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}

	defer func() {
		_ = l.Close()
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	ff := ffmpeg.New(&currentConfig.FFmpeg, &log)
	conv := converter.New(&currentConfig.Converter, ff, m, &log)
	b := archive.New(&currentConfig.Builder, m, &log)
	factory := service.New(&currentConfig.Service, conv, b, &log)

	server, health := service.NewServer(factory)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str(lSocket, serviceSocket).Msg("starting server")

		if err := server.Serve(l); err != nil {
			return fmt.Errorf("gRPC server failed: %w", err)
		}

		return nil
	})

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

		hs := &http.Server{Addr: *metricsAddr, Handler: mux, ReadHeaderTimeout: time.Second}

		g.Go(func() error {
			log.Info().Str(lAddr, *metricsAddr).Msg("serving metrics")

			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server failed: %w", err)
			}

			return nil
		})

		g.Go(func() error {
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()

			return hs.Shutdown(shutdownCtx) //nolint:wrapcheck // Only on shutdown.
		})
	}

	g.Go(func() error {
		<-ctx.Done()

		health.Shutdown()
		server.Stop()

		return nil
	})

	err = g.Wait()

	log.Info().Msg("server stopped")

	return err //nolint:wrapcheck // Already wrapped.
}
