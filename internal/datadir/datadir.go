// Package datadir resolves foreman's on-disk data directory and loads
// .env files from it. All paths under the data root go through here.
package datadir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default data directory name under $HOME.
	DefaultDirName = ".foreman"

	// EnvVar is the environment variable that overrides the data directory.
	EnvVar = "FOREMAN_DATA_DIR"

	// subdirectory names inside the data root
	databaseSubdir  = "data"
	backupSubdir    = "backups"
	sequencesSubdir = "sequences"
)

// DataDir provides a single source of truth for all data-directory paths.
// Use New to construct an instance, which resolves the root and optionally
// creates the directory tree.
type DataDir struct {
	root string
}

// New returns a DataDir rooted at the resolved data directory.
// It does NOT create subdirectories; call EnsureDirs for that.
//
// Resolution priority:
//  1. FOREMAN_DATA_DIR environment variable
//  2. configValue argument (from config.json data_dir field)
//  3. ~/.foreman/
func New(configValue string) (*DataDir, error) {
	root, err := resolveRoot(configValue)
	if err != nil {
		return nil, err
	}
	return &DataDir{root: root}, nil
}

// Root returns the base data directory path.
func (d *DataDir) Root() string { return d.root }

// DatabaseDir returns {root}/data/.
func (d *DataDir) DatabaseDir() string { return filepath.Join(d.root, databaseSubdir) }

// BackupDir returns {root}/backups/.
func (d *DataDir) BackupDir() string { return filepath.Join(d.root, backupSubdir) }

// SequencesDir returns {root}/sequences/.
func (d *DataDir) SequencesDir() string { return filepath.Join(d.root, sequencesSubdir) }

// FilePath returns the full path to a file directly inside the root directory.
func (d *DataDir) FilePath(filename string) string {
	return filepath.Join(d.root, filename)
}

// DatabasePath returns the full path to a database file in the data subdirectory.
func (d *DataDir) DatabasePath(filename string) string {
	return filepath.Join(d.DatabaseDir(), filename)
}

// subdirectories returns all managed subdirectory paths.
func (d *DataDir) subdirectories() []string {
	return []string{
		d.DatabaseDir(),
		d.BackupDir(),
		d.SequencesDir(),
	}
}

// EnsureDirs creates the root and all subdirectories with 0700 permissions.
func (d *DataDir) EnsureDirs() error {
	dirs := append([]string{d.root}, d.subdirectories()...)
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Resolve returns the data directory path, creating it with 0700 permissions
// if it doesn't already exist.
//
// Resolution priority:
//  1. FOREMAN_DATA_DIR environment variable
//  2. configValue argument (from config.json data_dir field)
//  3. ~/.foreman/
func Resolve(configValue string) (string, error) {
	root, err := resolveRoot(configValue)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(root, 0700); err != nil {
		return "", fmt.Errorf("failed to create data directory %s: %w", root, err)
	}
	return root, nil
}

// resolveRoot determines the root path without creating it.
func resolveRoot(configValue string) (string, error) {
	dir := os.Getenv(EnvVar)
	if dir == "" {
		dir = configValue
	}
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		dir = filepath.Join(home, DefaultDirName)
	}
	return dir, nil
}
