package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/sraship"
	logAdapter "github.com/bft-labs/sraship/internal/adapters/log"
	"github.com/bft-labs/sraship/internal/cliconfig"
	"github.com/bft-labs/sraship/internal/format"
)

const helpDescription = `
Stream paired reads from a sequencing read archive straight into an aligner
or quantifier, without writing FASTQ files to disk.

Highlights:
  - Reads are formatted in batches and written to two named pipes, one per mate.
  - The downstream tool sees ordinary files and runs unmodified.
  - Pipes, temp directories and the child process are always cleaned up.
  - Configure via file, env, or flags.
`

var longHelp = strings.TrimSpace(helpDescription)

var exampleUsage = strings.TrimSpace(`
  sraship run salmon -a SRR5000000 -i /ref/salmon_index -o /out/SRR5000000 -t 8
  sraship run star -a SRR5000000 -i /ref/star -o /out/SRR5000000.bam --aligner-args "--outSAMattributes NH HI"
  sraship run mock -a SRR5000000 --max-reads 10 --format tsv
  sraship list
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	log := cliconfig.Logger(zerolog.InfoLevel)
	exitCode := 1

	root := &cobra.Command{
		Use:           "sraship",
		Short:         "Stream paired reads from a read archive into an analysis tool",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd := &cobra.Command{
		Use:   "run <pipeline>",
		Short: "Run a pipeline for one accession",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Pipeline = args[0]

			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				fc, err := cliconfig.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}

			// SRASHIP_* override the file but not flags.
			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			log = cliconfig.Logger(cfg.Level())
			log.Info().Interface("config", cfg).Msg("configuration")

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res, err := sraship.Run(ctx, cfg, sraship.WithLogger(logAdapter.NewZerologAdapterWithLogger(log)))
			if err != nil {
				var toolErr *sraship.ToolError
				if errors.As(err, &toolErr) && toolErr.ExitCode > 0 {
					exitCode = toolErr.ExitCode
				}
				return err
			}

			event := log.Info().
				Str("run_id", res.RunID).
				Int64("pairs", res.Pairs).
				Dur("duration", res.Duration)
			if len(res.Artifacts) > 0 {
				event = event.Strs("artifacts", res.Artifacts)
			}
			event.Msg("done")
			return nil
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the supported pipelines",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range sraship.Pipelines() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}

	// Flags
	f := runCmd.Flags()
	f.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.sraship/config.toml)")
	f.StringVarP(&cfg.SRAAccession, "sra-accession", "a", cfg.SRAAccession, "accession of the read collection")
	f.StringVar(&cfg.ArchiveDir, "archive-dir", cfg.ArchiveDir, "directory holding <accession>_1/_2 FASTQ files")

	f.IntVarP(&cfg.Threads, "threads", "t", cfg.Threads, "threads passed to the tool")
	f.StringVarP(&cfg.Index, "index", "i", cfg.Index, "tool index directory or file")
	f.StringVarP(&cfg.Output, "output", "o", cfg.Output, "output file or directory")
	f.StringVar(&cfg.AlignerArgs, "aligner-args", cfg.AlignerArgs, "extra arguments appended to the tool command line")
	f.StringVar(&cfg.LibType, "libtype", cfg.LibType, "library type (salmon: passed as -l; kallisto: F or R selects strandedness)")

	f.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "read pairs per batch and per archive request")
	f.Int64Var(&cfg.MaxReads, "max-reads", cfg.MaxReads, "stop after this many pairs (0 = all)")
	f.StringVar(&cfg.Format, "format", cfg.Format, fmt.Sprintf("record format %v", format.Names()))
	f.StringVar(&cfg.WorkDir, "workdir", cfg.WorkDir, "parent of the per-run pipe directory (default: system temp dir)")

	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	f.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "write run metrics in Prometheus textfile format")
	f.BoolVar(&cfg.WatchOutput, "watch-output", cfg.WatchOutput, "record the files the tool writes")

	root.AddCommand(runCmd, listCmd)

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("sraship")
		os.Exit(exitCode)
	}
}
