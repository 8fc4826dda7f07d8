package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config in TOML form. Pointers distinguish an unset
// boolean from false.
type FileConfig struct {
	SRAAccession string `toml:"sra_accession"`
	ArchiveDir   string `toml:"archive_dir"`
	Threads      int    `toml:"threads"`
	Index        string `toml:"index"`
	Output       string `toml:"output"`
	AlignerArgs  string `toml:"aligner_args"`
	LibType      string `toml:"libtype"`
	BatchSize    int    `toml:"batch_size"`
	MaxReads     int64  `toml:"max_reads"`
	Format       string `toml:"format"`
	WorkDir      string `toml:"workdir"`
	LogLevel     string `toml:"log_level"`
	MetricsFile  string `toml:"metrics_file"`
	WatchOutput  *bool  `toml:"watch_output"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.sraship/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".sraship", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("sra-accession", fc.SRAAccession, &cfg.SRAAccession)
	s.setString("archive-dir", fc.ArchiveDir, &cfg.ArchiveDir)
	s.setString("index", fc.Index, &cfg.Index)
	s.setString("output", fc.Output, &cfg.Output)
	s.setString("aligner-args", fc.AlignerArgs, &cfg.AlignerArgs)
	s.setString("libtype", fc.LibType, &cfg.LibType)
	s.setString("format", fc.Format, &cfg.Format)
	s.setString("workdir", fc.WorkDir, &cfg.WorkDir)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("metrics-file", fc.MetricsFile, &cfg.MetricsFile)

	s.setInt("threads", fc.Threads, &cfg.Threads)
	s.setInt("batch-size", fc.BatchSize, &cfg.BatchSize)
	s.setInt64("max-reads", fc.MaxReads, &cfg.MaxReads)

	s.setBool("watch-output", fc.WatchOutput, &cfg.WatchOutput)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
