// Package fs provides the per-app sandboxed file service. Every app gets an
// isolated directory under the shell's data root; paths in requests are
// relative to it and can never escape it.
package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/deskd/deskd/internal/common/logger"
)

// EntryInfo describes one directory entry.
type EntryInfo struct {
	Name     string    `json:"name"`
	IsDir    bool      `json:"is_dir"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// Service performs sandboxed file operations.
type Service struct {
	root   string
	logger *logger.Logger
}

// NewService creates the file service rooted at dataRoot.
func NewService(dataRoot string, log *logger.Logger) *Service {
	return &Service{
		root:   dataRoot,
		logger: log.WithFields(zap.String("component", "fs_service")),
	}
}

// resolve maps an app-relative path onto the app's sandbox directory,
// rejecting any path that would escape it.
func (s *Service) resolve(appID, relPath string) (string, error) {
	if appID == "" {
		return "", fmt.Errorf("app id is required")
	}
	appRoot := filepath.Join(s.root, appID)

	cleaned := filepath.Clean("/" + relPath) // force-rooted before joining
	full := filepath.Join(appRoot, cleaned)

	if full != appRoot && !strings.HasPrefix(full, appRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path '%s' escapes the app sandbox", relPath)
	}
	return full, nil
}

// ReadFile returns the contents of a file in the app's sandbox.
func (s *Service) ReadFile(appID, relPath string) ([]byte, error) {
	full, err := s.resolve(appID, relPath)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

// WriteFile writes a file in the app's sandbox, creating parent directories
// as needed.
func (s *Service) WriteFile(appID, relPath string, data []byte) error {
	full, err := s.resolve(appID, relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return os.WriteFile(full, data, 0o644)
}

// List returns the entries of a directory in the app's sandbox. A missing
// directory lists as empty: the sandbox is created lazily on first write.
func (s *Service) List(appID, relPath string) ([]EntryInfo, error) {
	full, err := s.resolve(appID, relPath)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(full)
	if os.IsNotExist(err) {
		return []EntryInfo{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]EntryInfo, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, EntryInfo{
			Name:     e.Name(),
			IsDir:    e.IsDir(),
			Size:     info.Size(),
			Modified: info.ModTime().UTC(),
		})
	}
	return out, nil
}

// Remove deletes a file or empty directory in the app's sandbox. The return
// value reports whether anything was removed.
func (s *Service) Remove(appID, relPath string) (bool, error) {
	full, err := s.resolve(appID, relPath)
	if err != nil {
		return false, err
	}
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
