// Package catalog lists the issued client configs and splits them into pages.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/adamscao/ovpnbot/internal/policy"
	"github.com/spf13/afero"
)

// DefaultPageSize is used when a non-positive page size is requested
const DefaultPageSize = 10

var (
	// ErrCatalogDirMissing is returned when the config directory does not exist
	ErrCatalogDirMissing = errors.New("config directory not found")

	// ErrConfigFileNotFound is returned when a user has no config file
	ErrConfigFileNotFound = errors.New("config file not found")
)

// Entry is the listing view of one client config
type Entry struct {
	Username string  `json:"username"`
	SizeKB   float64 `json:"size_kb"`
	Path     string  `json:"path"`
}

// Service reads the config directory. Nothing is cached: every call reflects
// the directory as it is.
type Service struct {
	fs       afero.Fs
	dir      string
	ext      string
	pageSize int
}

// NewService creates a new catalog service
func NewService(fs afero.Fs, dir, ext string, pageSize int) *Service {
	if ext == "" {
		ext = ".ovpn"
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Service{
		fs:       fs,
		dir:      dir,
		ext:      ext,
		pageSize: pageSize,
	}
}

// PageSize returns the configured page size
func (s *Service) PageSize() int {
	return s.pageSize
}

// ListUsers returns one entry per config file, ordered by username
func (s *Service) ListUsers() ([]Entry, error) {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrCatalogDirMissing, s.dir)
		}
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}

	entries := []Entry{}
	for _, info := range infos {
		name := info.Name()
		if info.IsDir() || !strings.HasSuffix(name, s.ext) || strings.HasPrefix(name, ".") {
			continue
		}

		entries = append(entries, Entry{
			Username: strings.TrimSuffix(name, s.ext),
			SizeKB:   float64(info.Size()) / 1024,
			Path:     filepath.Join(s.dir, name),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Username < entries[j].Username
	})

	return entries, nil
}

// GetUserConfigPath returns the path of username's config file
func (s *Service) GetUserConfigPath(username string) (string, error) {
	if err := policy.ValidateUsername(username); err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, username+s.ext)
	info, err := s.fs.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrConfigFileNotFound, username)
		}
		return "", fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrConfigFileNotFound, username)
	}

	return path, nil
}

// ReadUserConfig returns the config file contents for username
func (s *Service) ReadUserConfig(username string) (string, []byte, error) {
	path, err := s.GetUserConfigPath(username)
	if err != nil {
		return "", nil, err
	}

	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return "", nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return path, data, nil
}

// Page lists the users and returns page pageIndex using the configured size
func (s *Service) Page(pageIndex int) (Page, error) {
	entries, err := s.ListUsers()
	if err != nil {
		return Page{}, err
	}
	return Paginate(entries, pageIndex, s.pageSize), nil
}
