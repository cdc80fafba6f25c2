package main

import (
	"go.uber.org/zap"

	"github.com/deskd/deskd/internal/common/config"
	"github.com/deskd/deskd/internal/common/logger"
	"github.com/deskd/deskd/internal/storage"
)

// provideStorage opens the shell's key-value store.
func provideStorage(cfg *config.Config, log *logger.Logger) (*storage.Store, error) {
	store, err := storage.NewStore(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	log.Info("Storage initialized", zap.String("db_path", cfg.Storage.Path))
	return store, nil
}
