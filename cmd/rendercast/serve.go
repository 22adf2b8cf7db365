package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"

	"github.com/muurk/rendercast/internal/logging"
	"github.com/muurk/rendercast/internal/registry"
	"github.com/muurk/rendercast/internal/server"
)

// serviceTimeout bounds how long the supervisor waits for a service to stop.
const serviceTimeout = 15 * time.Second

var (
	servePort int
	serveHost string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntVar(&servePort, "port", -1, "Listen port, 0 for any (default from config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen address (default from config)")
}

// serveCmd runs discovery and the event server under a supervisor
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run discovery and publish devices over HTTP",
	Long: `Run a discovery session continuously and publish its devices.

Routes:
  GET  /devices  delivered devices as JSON
  GET  /events   WebSocket stream of {"event":"found","device":{...}}
  POST /search   trigger another search
  GET  /metrics  Prometheus metrics

Discovery and the server are supervised and restarted on failure.`,
	Example: `  # Serve on a free port
  rendercast serve

  # Fixed port, debug logging
  rendercast serve --port 8089 --log-level debug`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	alloc := newAllocator(settings)
	defer alloc.Locks().Close()

	cfg := serverConfig(settings)
	if servePort >= 0 {
		cfg.Port = servePort
	}
	if serveHost != "" {
		cfg.Host = serveHost
	}

	svc := newService(settings, alloc, nil)
	srv, err := server.New(cfg, alloc, svc)
	if err != nil {
		return err
	}
	if err := srv.Listen(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Serving on port %d\n", srv.Port())

	sup := suture.New("rendercast", supervisorSpec())
	sup.Add(svc)
	sup.Add(srv)

	err = sup.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func supervisorSpec() suture.Spec {
	return suture.Spec{
		EventHook: func(e suture.Event) {
			logging.Warn("Supervisor event",
				zap.String("event", e.String()),
				zap.Any("details", e.Map()),
			)
		},
		Timeout:           serviceTimeout,
		PassThroughPanics: true,
	}
}

func writeJSON(w io.Writer, devices []registry.Device) error {
	if devices == nil {
		devices = []registry.Device{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(devices)
}
