package presentation

import (
	"context"

	"synapseguard/infrastructure/logging"
	"synapseguard/presentation/runners/client"
)

// StartClient runs the tunnel client until the context is cancelled.
func StartClient(ctx context.Context, configPath string) error {
	logger := logging.NewLogLogger()
	runner := client.NewRunner(configPath, logger)
	return runner.Run(ctx)
}
