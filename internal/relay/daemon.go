package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"zrelay/internal/bridge"
	"zrelay/internal/config"
	"zrelay/internal/history"
	"zrelay/internal/logging"
	"zrelay/internal/security"
	"zrelay/internal/serialport"
	"zrelay/internal/stt"
)

// Daemon assembles the relay: instance lock, agent bridge, transcriber,
// history store, device monitor, and the HTTP front door.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	lockPath string
	lock     *flock.Flock

	agent        bridge.AgentBridge
	bridgeTarget string
	mode         string
	transcriber  stt.Transcriber
	store        *history.Store
	monitor      *serialport.Monitor
	server       *Server

	devicePresent atomic.Bool
}

// New builds a daemon from configuration. It resolves the serial device and
// constructs the bridge but does not open it; Run does.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	transcriber, err := stt.NewTranscriber(cfg.STT, cfg.STTTimeout())
	if err != nil {
		return nil, fmt.Errorf("configure transcriber: %w", err)
	}

	d := &Daemon{
		cfg:         cfg,
		logger:      logging.NewComponentLogger(logger, "daemon"),
		lockPath:    filepath.Join(cfg.LogDir, "zrelay.lock"),
		transcriber: transcriber,
	}
	d.lock = flock.New(d.lockPath)
	d.devicePresent.Store(true)

	if cfg.Mock.Enabled {
		d.agent = bridge.NewMock(cfg.MockLatency())
		d.bridgeTarget = bridge.MockTarget
		d.mode = "mock"
	} else {
		port, resolveErr := serialport.Resolve(cfg.Serial.Port)
		if resolveErr != nil {
			return nil, resolveErr
		}
		d.agent = bridge.NewSerial(bridge.SerialConfig{
			Port:            port,
			Baud:            cfg.Serial.Baud,
			ReadTimeout:     cfg.SerialReadTimeout(),
			ResponseTimeout: cfg.ResponseTimeout(),
			IdleTimeout:     cfg.IdleTimeout(),
			STTTimeout:      cfg.STTTimeout(),
			LogTraffic:      cfg.Serial.LogTraffic,
		}, logger, transcriber)
		d.bridgeTarget = port
		d.mode = "serial"
		d.monitor = serialport.NewMonitor(logger, port, func(present bool) {
			d.devicePresent.Store(present)
		})
	}

	if cfg.History.Enabled {
		store, storeErr := history.Open(cfg.History.Path)
		if storeErr != nil {
			return nil, fmt.Errorf("open history store: %w", storeErr)
		}
		d.store = store
	}

	d.server = NewServer(ServerConfig{
		BindAddress:  cfg.BindAddress(),
		APIKey:       cfg.Server.APIKey,
		CORSOrigin:   cfg.Server.CORSOrigin,
		BridgeTarget: d.bridgeTarget,
		Mode:         d.mode,
	}, logger, d.agent, transcriber, d.store, &d.devicePresent)

	return d, nil
}

// BridgeTarget returns the label reported to clients.
func (d *Daemon) BridgeTarget() string { return d.bridgeTarget }

// Run starts the relay and blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	if err := security.ValidateBindSecurity(d.cfg.Server.Host, d.cfg.Server.APIKey); err != nil {
		return err
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !ok {
		return errors.New("another zrelay instance is already running")
	}
	defer func() {
		if unlockErr := d.lock.Unlock(); unlockErr != nil {
			d.logger.Warn("release instance lock", logging.Error(unlockErr))
		}
	}()

	if err := d.agent.Open(ctx); err != nil {
		return fmt.Errorf("open agent bridge: %w", err)
	}
	defer func() {
		if closeErr := d.agent.Close(); closeErr != nil {
			d.logger.Warn("close agent bridge", logging.Error(closeErr))
		}
	}()

	if d.monitor != nil {
		if err := d.monitor.Start(ctx); err != nil {
			return fmt.Errorf("start port monitor: %w", err)
		}
		defer d.monitor.Stop()
	}

	if d.store != nil {
		defer func() {
			if closeErr := d.store.Close(); closeErr != nil {
				d.logger.Warn("close history store", logging.Error(closeErr))
			}
		}()
	}

	if err := d.server.Start(ctx); err != nil {
		return err
	}
	defer d.server.Stop()

	d.logger.Info("relay running",
		logging.String("address", d.server.Addr()),
		logging.String("bridge_target", d.bridgeTarget),
		logging.String("mode", d.mode),
		logging.Bool("voice_stt", d.transcriber != nil),
		logging.Bool("history", d.store != nil),
	)

	<-ctx.Done()
	d.logger.Info("relay shutting down")
	return nil
}
