// Package ovpn assembles distributable OpenVPN client configuration files.
package ovpn

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/adamscao/ovpnbot/internal/logging"
	"github.com/spf13/afero"
)

// ErrTemplateMissing is returned when the shared client template is absent
var ErrTemplateMissing = errors.New("client template not found")

// Options configures the assembler
type Options struct {
	TemplatePath string
	OutputDir    string
	Extension    string
	// InlinePath maps a username to its inline credential file.
	InlinePath func(username string) string
}

// Assembler merges the shared template with per-user inline credentials
type Assembler struct {
	fs     afero.Fs
	opts   Options
	logger logging.Logger
}

// NewAssembler creates a new config assembler
func NewAssembler(fs afero.Fs, opts Options, logger logging.Logger) *Assembler {
	if opts.Extension == "" {
		opts.Extension = ".ovpn"
	}
	return &Assembler{
		fs:     fs,
		opts:   opts,
		logger: logger,
	}
}

// ConfigPath returns the final location of the client config for username
func (a *Assembler) ConfigPath(username string) string {
	return filepath.Join(a.opts.OutputDir, username+a.opts.Extension)
}

// Assemble writes <output_dir>/<username><ext> and returns its path.
//
// Template lines starting with '#' are dropped. The inline credential file is
// appended verbatim when present; a missing one yields a template-only config.
// The file is written to a temporary name and renamed into place, so readers
// never see a partially written config under the final name.
func (a *Assembler) Assemble(ctx context.Context, username string) (string, error) {
	if err := a.fs.MkdirAll(a.opts.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	tmpl, err := a.fs.Open(a.opts.TemplatePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrTemplateMissing, a.opts.TemplatePath)
		}
		return "", fmt.Errorf("failed to open template: %w", err)
	}
	defer tmpl.Close()

	var buf bytes.Buffer
	reader := bufio.NewReader(tmpl)
	for {
		line, readErr := reader.ReadString('\n')
		if line != "" && !strings.HasPrefix(line, "#") {
			buf.WriteString(line)
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return "", fmt.Errorf("failed to read template: %w", readErr)
		}
	}

	if a.opts.InlinePath != nil {
		inlinePath := a.opts.InlinePath(username)
		inline, err := afero.ReadFile(a.fs, inlinePath)
		switch {
		case err == nil:
			if buf.Len() > 0 && !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
				buf.WriteByte('\n')
			}
			buf.Write(inline)
		case errors.Is(err, os.ErrNotExist):
			a.logger.Warn(ctx, "inline credentials missing, writing template-only config",
				"username", username, "path", inlinePath)
		default:
			return "", fmt.Errorf("failed to read inline credentials: %w", err)
		}
	}

	path := a.ConfigPath(username)
	if err := a.writeAtomic(path, buf.Bytes()); err != nil {
		return "", err
	}

	return path, nil
}

// writeAtomic writes data to a hidden temp file next to path and renames it
// onto path. The temp name never carries the config extension.
func (a *Assembler) writeAtomic(path string, data []byte) error {
	dir, name := filepath.Split(path)

	tmp, err := afero.TempFile(a.fs, dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		a.fs.Remove(tmpName)
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		a.fs.Remove(tmpName)
		return fmt.Errorf("failed to write config: %w", err)
	}

	if err := a.fs.Chmod(tmpName, 0o600); err != nil {
		a.fs.Remove(tmpName)
		return fmt.Errorf("failed to set config permissions: %w", err)
	}

	if err := a.fs.Rename(tmpName, path); err != nil {
		a.fs.Remove(tmpName)
		return fmt.Errorf("failed to move config into place: %w", err)
	}

	return nil
}
