// Package backup archives and restores the foreman vault database and
// server config as a single .tar.gz with an embedded manifest.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"foreman/internal/config"
	"foreman/internal/version"

	_ "modernc.org/sqlite"
)

const manifestVersion = "1"

// Archive entry names.
const (
	entryManifest = "manifest.json"
	entryDatabase = "foreman.db"
	entryConfig   = "config.json"
)

// Create produces a .tar.gz archive containing the vault database and config.
func Create(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	configDir, err := filepath.Abs(filepath.Dir(opts.ConfigPath))
	if err != nil {
		return nil, fmt.Errorf("resolve config dir: %w", err)
	}

	dbPath := cfg.Database.Path
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(configDir, dbPath)
	}

	// Snapshot the database to a temp file so the archive never contains
	// a mid-write WAL state.
	tmpDir, err := os.MkdirTemp("", "foreman-backup-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	snapshotPath := filepath.Join(tmpDir, entryDatabase)
	dbInfo, err := snapshotDatabase(ctx, dbPath, snapshotPath)
	if err != nil {
		return nil, fmt.Errorf("snapshot database: %w", err)
	}

	absConfigPath, err := filepath.Abs(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	manifest := &Manifest{
		Version:        manifestVersion,
		Timestamp:      time.Now().UTC(),
		ForemanVersion: version.Info(),
		OriginalConfig: absConfigPath,
		OriginalDB:     dbPath,
		DatabaseInfo:   dbInfo,
	}

	outPath := opts.OutputPath
	if outPath == "" {
		outPath = fmt.Sprintf("foreman-backup-%s.tar.gz", time.Now().Format("20060102-150405"))
	}
	outPath, err = filepath.Abs(outPath)
	if err != nil {
		return nil, fmt.Errorf("resolve output path: %w", err)
	}

	if err := writeArchive(outPath, manifest, snapshotPath, absConfigPath); err != nil {
		return nil, err
	}

	stat, err := os.Stat(outPath)
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}

	return &Result{
		ArchivePath: outPath,
		Size:        stat.Size(),
		Duration:    time.Since(start),
		Manifest:    manifest,
	}, nil
}

// List reads just the manifest from an archive.
func List(archivePath string) (*Manifest, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read archive entry: %w", err)
		}
		if hdr.Name != entryManifest {
			continue
		}

		var m Manifest
		if err := json.NewDecoder(tr).Decode(&m); err != nil {
			return nil, fmt.Errorf("parse manifest: %w", err)
		}
		if m.Version == "" {
			return nil, fmt.Errorf("manifest missing version")
		}
		return &m, nil
	}
	return nil, fmt.Errorf("archive has no manifest")
}

// Restore extracts the database and config from an archive into destDir.
// It refuses to overwrite existing files.
func Restore(archivePath, destDir string) (*RestoreResult, error) {
	if _, err := List(archivePath); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(destDir, 0700); err != nil {
		return nil, fmt.Errorf("create destination: %w", err)
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	defer gz.Close()

	result := &RestoreResult{}
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read archive entry: %w", err)
		}

		switch hdr.Name {
		case entryDatabase:
			result.DatabasePath = filepath.Join(destDir, entryDatabase)
			if err := extractFile(tr, result.DatabasePath); err != nil {
				return nil, err
			}
		case entryConfig:
			result.ConfigPath = filepath.Join(destDir, entryConfig)
			if err := extractFile(tr, result.ConfigPath); err != nil {
				return nil, err
			}
		}
	}

	if result.DatabasePath == "" {
		return nil, fmt.Errorf("archive has no database")
	}
	return result, nil
}

// snapshotDatabase copies the database via VACUUM INTO when possible,
// falling back to a plain file copy.
func snapshotDatabase(ctx context.Context, srcPath, dstPath string) (DatabaseInfo, error) {
	info := DatabaseInfo{}

	stat, err := os.Stat(srcPath)
	if err != nil {
		return info, fmt.Errorf("stat database: %w", err)
	}
	info.Size = stat.Size()

	db, err := sql.Open("sqlite", srcPath+"?mode=ro")
	if err == nil {
		defer db.Close()

		var count int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type='table'").Scan(&count); err == nil {
			info.TableCount = count
		}

		_, vacErr := db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", strings.ReplaceAll(dstPath, "'", "''")))
		if vacErr == nil {
			return info, nil
		}
	}

	if err := copyFile(srcPath, dstPath); err != nil {
		return info, fmt.Errorf("copy database: %w", err)
	}
	return info, nil
}

func writeArchive(outPath string, manifest *Manifest, dbSnapshot, configPath string) error {
	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer out.Close()

	gz := gzip.NewWriter(out)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := writeTarBytes(tw, entryManifest, manifestData); err != nil {
		return err
	}
	if err := writeTarFile(tw, entryDatabase, dbSnapshot); err != nil {
		return err
	}
	if err := writeTarFile(tw, entryConfig, configPath); err != nil {
		return err
	}
	return nil
}

func writeTarBytes(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    0600,
		Size:    int64(len(data)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write %s header: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func writeTarFile(tw *tar.Writer, archivePath, diskPath string) error {
	f, err := os.Open(diskPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", diskPath, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", diskPath, err)
	}

	hdr := &tar.Header{
		Name:    archivePath,
		Mode:    0600,
		Size:    stat.Size(),
		ModTime: stat.ModTime(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write %s header: %w", archivePath, err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("write %s: %w", archivePath, err)
	}
	return nil
}

func extractFile(tr *tar.Reader, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("refusing to overwrite %s", dest)
	}

	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("create %s: %w", dest, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, tr); err != nil {
		return fmt.Errorf("extract %s: %w", dest, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
