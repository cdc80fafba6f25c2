// Package opener implements file-open routing: mapping a file extension to
// the app that should handle it, with per-user overrides persisted in the
// shell's storage.
package opener

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/deskd/deskd/internal/apps"
	"github.com/deskd/deskd/internal/common/logger"
	"github.com/deskd/deskd/internal/storage"
)

// shellOwner is the pseudo app id that owns shell-level storage rows.
// Overrides live outside every real app's scope so no grant reaches them.
const shellOwner = "deskd.shell"

const storageNamespace = "opener"

// Service resolves and persists extension -> app associations and opens
// files by launching or focusing the associated app.
type Service struct {
	store    *storage.Store
	registry *apps.Registry
	launcher apps.Launcher
	logger   *logger.Logger
}

// NewService creates the opener service. launcher may be nil in hosts that
// only resolve associations without launching.
func NewService(store *storage.Store, registry *apps.Registry, launcher apps.Launcher, log *logger.Logger) *Service {
	return &Service{
		store:    store,
		registry: registry,
		launcher: launcher,
		logger:   log.WithFields(zap.String("component", "opener")),
	}
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	return strings.TrimPrefix(ext, ".")
}

// Default returns the app id associated with an extension, if any.
func (s *Service) Default(ctx context.Context, ext string) (string, bool, error) {
	ext = normalizeExt(ext)
	if ext == "" {
		return "", false, fmt.Errorf("extension is required")
	}

	value, err := s.store.Get(ctx, shellOwner, storageNamespace, ext)
	if err != nil {
		return "", false, err
	}
	if value == nil {
		return "", false, nil
	}

	var appID string
	if err := json.Unmarshal(value, &appID); err != nil {
		return "", false, fmt.Errorf("corrupt opener entry for '%s': %w", ext, err)
	}
	return appID, true, nil
}

// SetDefault persists an extension association. The app must be installed.
func (s *Service) SetDefault(ctx context.Context, ext, appID string) error {
	ext = normalizeExt(ext)
	if ext == "" {
		return fmt.Errorf("extension is required")
	}
	if _, installed := s.registry.Manifest(appID); !installed {
		return fmt.Errorf("app '%s' is not installed", appID)
	}

	value, _ := json.Marshal(appID)
	if err := s.store.Set(ctx, shellOwner, storageNamespace, ext, value); err != nil {
		return err
	}

	s.logger.Info("Opener default set",
		zap.String("extension", ext),
		zap.String("app_id", appID))
	return nil
}

// Open resolves the handler app for a path and launches it (or focuses it if
// already running). Returns the chosen app id.
func (s *Service) Open(ctx context.Context, path string) (string, error) {
	ext := normalizeExt(filepath.Ext(path))
	if ext == "" {
		return "", fmt.Errorf("path '%s' has no extension", path)
	}

	appID, found, err := s.Default(ctx, ext)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("no app associated with extension '%s'", ext)
	}

	if s.launcher != nil {
		if s.registry.IsRunning(appID) {
			if err := s.launcher.Focus(appID); err != nil {
				return "", fmt.Errorf("failed to focus app '%s': %w", appID, err)
			}
		} else if err := s.launcher.Launch(ctx, appID); err != nil {
			return "", fmt.Errorf("failed to launch app '%s': %w", appID, err)
		}
	}
	return appID, nil
}
