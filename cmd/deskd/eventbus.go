package main

import (
	"github.com/deskd/deskd/internal/common/config"
	"github.com/deskd/deskd/internal/common/logger"
	"github.com/deskd/deskd/internal/hostbus"
)

// provideBus selects the host bus backend: NATS when a URL is configured,
// in-memory otherwise.
func provideBus(cfg *config.Config, log *logger.Logger) (hostbus.Bus, error) {
	if cfg.Bus.URL != "" {
		return hostbus.NewNATSBus(cfg.Bus, log)
	}
	return hostbus.NewMemoryBus(log), nil
}
