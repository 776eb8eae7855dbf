package client

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"synapseguard/application"
	apptun "synapseguard/application/network/tun"
	"synapseguard/infrastructure/settings"
	"synapseguard/infrastructure/tun"
	"synapseguard/infrastructure/tunnel"
)

// Runner owns one tunnel lifecycle: load config, bring the tunnel up, relay
// state transitions to the log, tear down on context cancellation.
type Runner struct {
	configPath string
	logger     application.Logger

	// openDevice is swappable for tests.
	openDevice func(cfg settings.TunnelConfig) (apptun.Device, error)
}

func NewRunner(configPath string, logger application.Logger) *Runner {
	return &Runner{
		configPath: configPath,
		logger:     logger,
		openDevice: openPlatformDevice,
	}
}

func (r *Runner) Run(ctx context.Context) error {
	cfg, err := r.loadConfig()
	if err != nil {
		return err
	}

	device, err := r.openDevice(cfg)
	if err != nil {
		return fmt.Errorf("failed to open tun device: %w", err)
	}

	t, err := tunnel.Start(cfg, tunnel.Deps{Device: device, Logger: r.logger})
	if err != nil {
		_ = device.Close()
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return t.Stop()
		case e := <-t.States():
			if e.Err != nil {
				r.logger.Printf("tunnel: %s (%v)", e.State, e.Err)
				continue
			}
			r.logger.Printf("tunnel: %s", e.State)
		}
	}
}

func (r *Runner) loadConfig() (settings.TunnelConfig, error) {
	var cfg settings.TunnelConfig
	raw, err := os.ReadFile(r.configPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", r.configPath, err)
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", r.configPath, err)
	}
	return cfg, nil
}

func openPlatformDevice(cfg settings.TunnelConfig) (apptun.Device, error) {
	return tun.OpenDevice("sg0", cfg.MTU)
}
