package cliconfig

import "os"

// EnvPrefix prefixes every environment variable sraship reads.
const EnvPrefix = "SRASHIP_"

// ApplyEnvConfig applies configuration from environment variables (SRASHIP_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("sra-accession", env("SRA_ACCESSION"), &cfg.SRAAccession)
	s.setString("archive-dir", env("ARCHIVE_DIR"), &cfg.ArchiveDir)
	s.setString("index", env("INDEX"), &cfg.Index)
	s.setString("output", env("OUTPUT"), &cfg.Output)
	s.setString("aligner-args", env("ALIGNER_ARGS"), &cfg.AlignerArgs)
	s.setString("libtype", env("LIBTYPE"), &cfg.LibType)
	s.setString("format", env("FORMAT"), &cfg.Format)
	s.setString("workdir", env("WORKDIR"), &cfg.WorkDir)
	s.setString("log-level", env("LOG_LEVEL"), &cfg.LogLevel)
	s.setString("metrics-file", env("METRICS_FILE"), &cfg.MetricsFile)

	if err := s.setIntFromString("threads", env("THREADS"), &cfg.Threads); err != nil {
		return err
	}
	if err := s.setIntFromString("batch-size", env("BATCH_SIZE"), &cfg.BatchSize); err != nil {
		return err
	}
	if err := s.setInt64FromString("max-reads", env("MAX_READS"), &cfg.MaxReads); err != nil {
		return err
	}

	s.setBoolFromString("watch-output", env("WATCH_OUTPUT"), &cfg.WatchOutput)

	return nil
}

func env(name string) string {
	return os.Getenv(EnvPrefix + name)
}
