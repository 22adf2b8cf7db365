package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/muurk/rendercast/internal/config"
	"github.com/muurk/rendercast/internal/discovery"
	"github.com/muurk/rendercast/internal/portalloc"
	"github.com/muurk/rendercast/internal/registry"
	"github.com/muurk/rendercast/internal/ui"
)

// Command flags
var (
	scanTimeout int
	scanJSON    bool

	portPorts   []int
	portRange   string
	portExclude []int
	portHost    string
	portCount   int

	configForce bool
)

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(portCmd)
	rootCmd.AddCommand(configCmd)

	scanCmd.Flags().IntVar(&scanTimeout, "timeout", 5, "Scan timeout in seconds")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Print devices as JSON")

	portCmd.Flags().IntSliceVar(&portPorts, "port", nil, "Preferred port, tried in order (repeatable)")
	portCmd.Flags().StringVar(&portRange, "range", "", "Preferred port range FROM-TO, tried after --port")
	portCmd.Flags().IntSliceVar(&portExclude, "exclude", nil, "Port that must not be returned (repeatable)")
	portCmd.Flags().StringVar(&portHost, "host", "", "Check only this local address")
	portCmd.Flags().IntVar(&portCount, "count", 1, "Number of ports to allocate")

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// scanCmd runs one discovery session for a fixed time
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for media renderers",
	Long: `Search for UPnP media renderers and list them when the timeout expires.

A search is issued at start. With discovery.research_interval set, further
searches run during the scan.`,
	Example: `  # Scan for 5 seconds (default)
  rendercast scan

  # Longer scan for slow networks
  rendercast scan --timeout 15

  # JSON output for scripting
  rendercast scan --json`,
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanTimeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", scanTimeout)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, time.Duration(scanTimeout)*time.Second)
	defer cancelTimeout()

	alloc := newAllocator(settings)
	defer alloc.Locks().Close()

	p := ui.NewPrinter(cmd.OutOrStdout())
	if !scanJSON {
		p.PrintHeader("Discovery", "rendercast scan", map[string]string{
			"Target":  settings.Discovery.SearchTarget,
			"Timeout": fmt.Sprintf("%ds", scanTimeout),
		})
	}

	svc := newService(settings, alloc, nil)
	var devices []registry.Device
	err := runUntilDone(ctx, svc, func() { devices = svc.Devices() })
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if scanJSON {
		return writeJSON(cmd.OutOrStdout(), devices)
	}
	p.PrintDevices(devices)
	return nil
}

// runUntilDone serves svc until ctx is done, calling snapshot just before
// the session stops and clears its registry.
func runUntilDone(ctx context.Context, svc *discovery.Service, snapshot func()) error {
	serveCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan error, 1)
	go func() { done <- svc.Serve(serveCtx) }()

	select {
	case err := <-done:
		stop()
		return err
	case <-ctx.Done():
	}

	snapshot()
	stop()
	return <-done
}

// watchCmd shows devices as they are delivered
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch for media renderers",
	Long: `Search continuously and show each renderer as it is found.

On a terminal this opens a live view: press r to search again and q to
quit. Otherwise one tab-separated line is printed per delivery:

  found<TAB>name<TAB>host<TAB>location`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	alloc := newAllocator(settings)
	defer alloc.Locks().Close()

	if !ui.IsTerminal() {
		return watchPlain(ctx, cmd, alloc)
	}

	var program *tea.Program
	svc := newService(settings, alloc, func(err error) {
		if program != nil {
			program.Send(ui.ErrMsg{Err: err})
		}
	})
	program = tea.NewProgram(ui.NewWatchModel(svc), tea.WithContext(ctx))

	unsubscribe := svc.Subscribe(func(d registry.Device) {
		program.Send(ui.DeviceMsg(d))
	})
	defer unsubscribe()

	serveCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- svc.Serve(serveCtx) }()

	_, runErr := program.Run()
	stop()
	serveErr := <-done

	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("watch UI failed: %w", runErr)
	}
	return serveErr
}

func watchPlain(ctx context.Context, cmd *cobra.Command, alloc *portalloc.Allocator) error {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	svc := newService(settings, alloc, func(err error) {
		fmt.Fprintf(errOut, "error\t%v\n", err)
	})
	unsubscribe := svc.Subscribe(func(d registry.Device) {
		fmt.Fprintln(out, ui.FormatDevicePlain("found", d))
	})
	defer unsubscribe()

	return svc.Serve(ctx)
}

// portCmd exposes the port allocator
var portCmd = &cobra.Command{
	Use:   "port",
	Short: "Allocate a free local port",
	Long: `Allocate a free TCP port the way rendercast allocates its own responder ports.

Preferred ports are tried in order, then an OS-assigned port. A port handed
out within the lock window (ports.lock_window) is never handed out again;
asking for it explicitly fails with "locked". With --count, each allocation
after the first gets a different port; when that would reuse an explicit
--port or --range port, the command stops at the locked refusal.`,
	Example: `  # Any free port
  rendercast port

  # Prefer 8080, fall back to any free port
  rendercast port --port 8080

  # First free port in a range, excluding one
  rendercast port --range 9000-9010 --exclude 9003

  # Three distinct ports from one lock window
  rendercast port --count 3

  # A second request for 8080 within the window is refused as locked
  rendercast port --port 8080 --count 2`,
	RunE: runPort,
}

func runPort(cmd *cobra.Command, args []string) error {
	if portCount < 1 {
		return fmt.Errorf("count must be at least 1, got %d", portCount)
	}

	ports := append([]int(nil), portPorts...)
	if portRange != "" {
		r, err := parseRange(portRange)
		if err != nil {
			return err
		}
		ports = append(ports, r...)
	}

	alloc := newAllocator(settings)
	defer alloc.Locks().Close()

	host := portHost
	if host == "" {
		host = settings.Ports.BindHost
	}
	req := portalloc.Request{Ports: ports, Exclude: portExclude, Host: host}

	p := ui.NewPrinter(cmd.OutOrStdout())
	var got []string
	for i := 0; i < portCount; i++ {
		port, err := alloc.Allocate(cmd.Context(), req)
		if err != nil {
			if len(got) > 0 {
				p.PrintSuccess("Ports allocated", map[string]string{"Ports": strings.Join(got, ", ")})
			}
			p.PrintError("Port allocation", err)
			return err
		}
		got = append(got, strconv.Itoa(port))
	}

	if portCount == 1 {
		fmt.Fprintln(cmd.OutOrStdout(), got[0])
		return nil
	}
	p.PrintSuccess("Ports allocated", map[string]string{
		"Ports":       strings.Join(got, ", "),
		"Lock window": settings.Ports.LockWindow.String(),
	})
	return nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if path == "" {
			p, err := config.GetConfigPath()
			if err != nil {
				return err
			}
			path = p
		}

		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		written, err := config.WriteDefault(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", written)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := settings.Marshal()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}
