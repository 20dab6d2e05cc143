package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/museumbook/internal/api/router"
	"github.com/wolfman30/museumbook/internal/console"
)

func serveCmd(ctx context.Context, a *app, args []string) error {
	flagSet := a.newFlagSet("serve")
	port := flagSet.String("port", a.cfg.ConsolePort, "listen port")
	submitRate := flagSet.Float64("submit-rate", 1, "bulk submissions per second per client, 0 disables the limit")
	submitBurst := flagSet.Int("submit-burst", 3, "bulk submission burst per client")
	if ok, err := parseFlags(flagSet, args); !ok {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.reg = reg

	rt, err := a.runtime(ctx)
	if err != nil {
		return err
	}
	if rt.Session.RequireToken() != nil {
		a.logger.Warn("not signed in, submissions will be rejected until `museumbook login` is run")
	}

	consoleHandler := console.NewHandler(rt.Parser, rt.Submitter, rt.Window, a.logger).
		WithMetrics(rt.Metrics)
	handler := router.New(&router.Config{
		Logger:              a.logger,
		Console:             consoleHandler,
		MetricsHandler:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSAllowedOrigins:  a.cfg.CORSAllowedOrigins,
		Upstream:            rt.API,
		SubmitRatePerSecond: *submitRate,
		SubmitBurst:         *submitBurst,
	})

	srv := &http.Server{
		Addr:              ":" + *port,
		Handler:           handler,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("console listening", "addr", srv.Addr, "api", a.cfg.APIBaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("shutting down console...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("serve: forced shutdown: %w", err)
	}
	a.logger.Info("console stopped")
	return nil
}
