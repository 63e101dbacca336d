// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Thermoquad/coldmesh/pkg/admin"
	"github.com/Thermoquad/coldmesh/pkg/config"
	"github.com/Thermoquad/coldmesh/pkg/envelope"
	"github.com/Thermoquad/coldmesh/pkg/logging"
	"github.com/Thermoquad/coldmesh/pkg/mesh"
	"github.com/Thermoquad/coldmesh/pkg/radio"
	"github.com/Thermoquad/coldmesh/pkg/sensor"
	"github.com/Thermoquad/coldmesh/pkg/templog"
)

// defaultAdminAddr is used when the config has no admin.listen
const defaultAdminAddr = "127.0.0.1:7373"

var (
	runTUI         bool
	runAdminListen string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a mesh node",
	Long: `Run a Keep-It-Cold node: read the probes, broadcast status over the LoRa
modem, track every node heard and raise alarms for silent roster members.

The config file is created with defaults on first run. Roster changes,
silence and the node id are written back to it.

With --tui a dashboard replaces the log output. Keys: s silence alarms,
a add a node to the roster, q quit.`,
	RunE: runNode,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show the node dashboard")
	runCmd.Flags().StringVar(&runAdminListen, "admin-listen", "", "Admin RPC address (default from config, then "+defaultAdminAddr+")")
}

func runNode(cmd *cobra.Command, args []string) error {
	store, err := config.Open(configPath)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	if runTUI {
		logger = logging.Discard()
	}

	link, err := linkConfig(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	modem, err := radio.NewModem(ctx, func(ctx context.Context) (radio.Connection, error) {
		return radio.Dial(ctx, link)
	}, radio.ModemOptions{TxTimeout: cfg.Radio.TxTimeout, Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to open modem: %w", err)
	}
	defer modem.Close()

	probes, err := openSensor(cfg)
	if err != nil {
		return err
	}

	key, err := meshKey(cfg)
	if err != nil {
		return err
	}
	opts := nodeOptions(cfg, key, logger)
	opts.Persister = store
	opts.Alerter = &bellAlerter{enabled: cfg.Alarm.Bell, out: os.Stderr}
	if cfg.Log.CSV != "" {
		opts.TempLog = templog.NewWriter(cfg.Log.CSV)
	}

	node, err := mesh.NewNode(modem, probes, opts)
	if err != nil {
		return err
	}

	addr := runAdminListen
	if addr == "" {
		addr = cfg.Admin.Listen
	}
	if addr == "" {
		addr = defaultAdminAddr
	}
	l, err := admin.Listen(addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	logger.Info("node starting",
		"node", cfg.Node.ID,
		"link", link.Describe(),
		"roster", cfg.Roster,
		"admin", l.Addr().String())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return node.Run(gctx) })
	g.Go(func() error { return admin.Serve(gctx, l, admin.NewService(node, store)) })

	if runTUI {
		m := newDashboard(node, fmt.Sprintf("%s | admin %s", link.Describe(), l.Addr()))
		p := tea.NewProgram(m, tea.WithAltScreen())
		forwardSnapshots(gctx, node, p)
		g.Go(func() error {
			defer cancel()
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("TUI error: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			p.Quit()
			return nil
		})
	}

	return g.Wait()
}

// nodeOptions maps the config onto mesh options. Persistence, alerts and the
// temperature log are left to the caller.
func nodeOptions(cfg *config.Config, key envelope.Key, logger *slog.Logger) mesh.Options {
	var silenceUntil time.Time
	if cfg.SilenceUntil > 0 {
		silenceUntil = time.Unix(cfg.SilenceUntil, 0)
	}
	start, end := cfg.Alarm.DayWindow()
	daytime := mesh.DayWindow{StartHour: start, EndHour: end}
	return mesh.Options{
		Self:           cfg.Node.ID,
		Roster:         cfg.Roster,
		Key:            key,
		IVSource:       envelope.RandSource(cfg.Crypto.IVSource),
		Clock:          mesh.NewClock(cfg.Node.TrustedClock, 0),
		SilenceUntil:   silenceUntil,
		Tick:           cfg.Timing.Tick,
		Read:           cfg.Timing.Read,
		Broadcast:      cfg.Timing.Broadcast,
		Jitter:         cfg.Timing.Jitter,
		Monitor:        cfg.Timing.Monitor,
		Freshness:      cfg.Timing.Freshness,
		LogEvery:       cfg.Timing.Log,
		Daytime:        &daytime,
		Location:       cfg.Location(),
		SilenceFor:     cfg.Alarm.Silence,
		AnnounceRoster: cfg.Node.AnnounceRoster,
		Logger:         logger,
	}
}

func openSensor(cfg *config.Config) (sensor.Sensor, error) {
	switch cfg.Sensor.Driver {
	case "sim":
		return sensor.NewSim(time.Now().UnixNano(), cfg.Node.Probes, 4.0), nil
	default:
		w1, err := sensor.NewW1(cfg.Sensor.Root, cfg.Sensor.Devices)
		if err != nil {
			return nil, fmt.Errorf("failed to open 1-Wire probes: %w", err)
		}
		if w1.Probes() > cfg.Node.Probes {
			w1.Devices = w1.Devices[:cfg.Node.Probes]
		}
		return w1, nil
	}
}

// forwardSnapshots feeds node snapshots to the dashboard without ever
// blocking the control loop; only the newest pending snapshot is kept.
func forwardSnapshots(ctx context.Context, node *mesh.Node, p *tea.Program) {
	latest := make(chan mesh.Snapshot, 1)
	node.Subscribe(func(s mesh.Snapshot) {
		select {
		case <-latest:
		default:
		}
		select {
		case latest <- s:
		default:
		}
	})
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case s := <-latest:
				p.Send(snapshotMsg(s))
			}
		}
	}()
}
