package backup

import "time"

// Options controls backup creation.
type Options struct {
	// ConfigPath is the server config file to read and include.
	ConfigPath string
	// OutputPath is the archive destination. Empty means a timestamped
	// name in the current directory.
	OutputPath string
}

// Manifest describes the contents and origin of a backup archive.
type Manifest struct {
	Version        string       `json:"version"`
	Timestamp      time.Time    `json:"timestamp"`
	ForemanVersion string       `json:"foreman_version"`
	OriginalConfig string       `json:"original_config"`
	OriginalDB     string       `json:"original_db"`
	DatabaseInfo   DatabaseInfo `json:"database_info"`
}

// DatabaseInfo records vault database details at backup time.
type DatabaseInfo struct {
	Size       int64 `json:"size"`
	TableCount int   `json:"table_count"`
}

// Result summarizes a completed backup.
type Result struct {
	ArchivePath string        `json:"archive_path"`
	Size        int64         `json:"size"`
	Duration    time.Duration `json:"duration"`
	Manifest    *Manifest     `json:"manifest"`
}

// RestoreResult summarizes a completed restore.
type RestoreResult struct {
	ConfigPath   string `json:"config_path"`
	DatabasePath string `json:"database_path"`
}
