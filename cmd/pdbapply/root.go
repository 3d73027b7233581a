package main

import (
	"fmt"
	"io"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"
)

var (
	outputFile string
	logLevel   string
	output     io.Writer
	logger     log.Logger = log.NewNopLogger()
)

var rootCmd = &cobra.Command{
	Use:   "pdbapply",
	Short: "Apply PDB symbol records to an analysis context",
	Long: `pdbapply decodes the CodeView symbol streams of a Microsoft PDB
(Program Database) file and applies them record by record: sections,
COFF groups, procedures, lexical blocks, data, publics and labels.

Malformed records are reported as faults and never stop a run.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		lvl, err := levelFilter(logLevel)
		if err != nil {
			return err
		}
		logger = level.NewFilter(log.NewLogfmtLogger(log.NewSyncWriter(os.Stderr)), lvl)
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)

		if outputFile != "" {
			f, err := os.Create(outputFile)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			output = f
		} else {
			output = os.Stdout
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if f, ok := output.(*os.File); ok && f != os.Stdout {
			f.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "write output to file instead of stdout")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log.level", "info", "log level: debug, info, warn or error")

	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(modulesCmd)
	rootCmd.AddCommand(sectionsCmd)
	rootCmd.AddCommand(recordsCmd)
	rootCmd.AddCommand(applyCmd)
}

func levelFilter(l string) (level.Option, error) {
	switch l {
	case "debug":
		return level.AllowDebug(), nil
	case "info":
		return level.AllowInfo(), nil
	case "warn":
		return level.AllowWarn(), nil
	case "error":
		return level.AllowError(), nil
	}
	return nil, fmt.Errorf("unknown log level %q", l)
}
