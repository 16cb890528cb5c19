package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-motionexec/internal/config"
	"github.com/teslashibe/go-motionexec/internal/log"
	"github.com/teslashibe/go-motionexec/internal/storage"
	"github.com/teslashibe/go-motionexec/pkg/bridge"
	"github.com/teslashibe/go-motionexec/pkg/cloud"
	"github.com/teslashibe/go-motionexec/pkg/controllers"
	"github.com/teslashibe/go-motionexec/pkg/execution"
	"github.com/teslashibe/go-motionexec/pkg/gate"
	"github.com/teslashibe/go-motionexec/pkg/hub"
	"github.com/teslashibe/go-motionexec/pkg/journal"
	"github.com/teslashibe/go-motionexec/pkg/managed"
	"github.com/teslashibe/go-motionexec/pkg/markers"
	"github.com/teslashibe/go-motionexec/pkg/protocol"
	"github.com/teslashibe/go-motionexec/pkg/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dispatcher and operator API",
	Long: `Runs the motion dispatcher behind the operator API.

In joint_publisher mode commands go out over WebSocket, either to controller
bridges connected at /ws/controller (transport.mode = serve) or to a bridge
the service dials (transport.mode = dial). In execution_manager mode they are
handed to an external execution service over HTTP.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		printError("config", err)
		return err
	}
	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	log.Init(level)
	logger := log.WithComponent("serve")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g := gate.New(cfg.Gate(), nil)
	markerHub := hub.New("markers", nil)
	viz := markers.New(markerHub, nil)

	execOpts := []execution.Option{execution.WithVisualizer(viz)}
	webOpts := []web.Option{web.WithMarkers(viz, markerHub)}

	backend, bridges, closeBackend, err := newBackend(ctx, cfg)
	if err != nil {
		printError("backend", err)
		return err
	}
	defer closeBackend()
	if bridges != nil {
		webOpts = append(webOpts, web.WithBridges(bridges))
	}

	if cfg.Journal.Enabled {
		db, err := storage.OpenSQLite(ctx, cfg.JournalPath())
		if err != nil {
			printError("journal", err)
			return err
		}
		defer db.Close()
		j := journal.New(db, nil)
		execOpts = append(execOpts, execution.WithJournal(j))
		webOpts = append(webOpts, web.WithJournal(j))
	}

	if cfg.Controllers.URL != "" {
		lister, err := controllers.NewHTTPLister(cfg.Controllers.URL, cfg.Controllers.Timeout)
		if err != nil {
			printError("controllers", err)
			return err
		}
		webOpts = append(webOpts, web.WithControllerChecker(controllers.NewChecker(lister, cfg.Controllers.ControlType, nil)))
	}

	d, err := execution.New(cfg.Execution(), g, backend, execOpts...)
	if err != nil {
		printError("dispatcher", err)
		return err
	}

	srv := web.NewServer(cfg.Listen, d, webOpts...)
	logger.Info("motionexec starting",
		"mode", d.Mode(),
		"listen", cfg.Listen,
		"autonomous", cfg.Autonomous,
		"full_autonomous", cfg.FullAutonomous,
	)
	if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		printError("server", err)
		return err
	}
	logger.Info("motionexec stopped")
	return nil
}

// newBackend builds the configured backend. bridges is set only when
// controller bridges connect to this service.
func newBackend(ctx context.Context, cfg config.Config) (execution.Backend, *cloud.Hub, func(), error) {
	logger := log.WithComponent("serve")
	noop := func() {}

	switch cfg.Mode() {
	case execution.ModeManaged:
		client, err := managed.New(cfg.Managed, nil)
		if err != nil {
			return nil, nil, noop, err
		}
		return execution.NewManagedBackend(client, nil), nil, noop, nil

	case execution.ModeDirect:
		if cfg.Transport.Mode == config.TransportDial {
			client, err := bridge.New(bridge.Config{
				URL:                   cfg.Transport.BridgeURL,
				JointTrajectoryTopic:  cfg.JointTrajectoryTopic,
				CartesianCommandTopic: cfg.CartesianCommandTopic,
			}, nil)
			if err != nil {
				return nil, nil, noop, err
			}
			client.OnState = func(state *protocol.StateData) {
				logger.Info("bridge state", "state", state.State, "connected", state.Connected, "error", state.Error)
			}
			if err := client.Connect(ctx); err != nil {
				// Publishing dials again on demand.
				logger.Warn("bridge not reachable yet", "url", cfg.Transport.BridgeURL, "error", err)
			}
			return execution.NewDirectBackend(client, nil), nil, func() { _ = client.Close() }, nil
		}

		bridges := cloud.NewHub(cfg.Hub(), nil)
		bridges.OnState(func(id string, state *protocol.StateData) {
			logger.Info("bridge state", "bridge", id, "state", state.State, "connected", state.Connected, "error", state.Error)
		})
		return execution.NewDirectBackend(bridges, nil), bridges, noop, nil
	}
	return nil, nil, noop, fmt.Errorf("unknown command mode %q", cfg.CommandMode)
}
