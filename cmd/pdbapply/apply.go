package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/skdltmxn/pdb-apply/applicator"
	"github.com/skdltmxn/pdb-apply/codeview"
	"github.com/skdltmxn/pdb-apply/pdb"
)

var (
	applyConfigFile     string
	applyImageBase      uint64
	applyModule         int
	applyJobs           int
	applyTimeout        time.Duration
	applyResolvePending bool
	applyShowFaults     bool
	applyShowMetrics    bool
	applyConfig         = applicator.DefaultConfig()
)

var applyCmd = &cobra.Command{
	Use:   "apply <pdb-file>",
	Short: "Apply module symbol records and summarize the result",
	Long: `Decode the symbol stream of every module and apply the records, in
module order, to a single analysis context. Section bases come from the
PE section headers in the PDB relative to the image base.

Config values are read from --config first; flags given on the command
line override them.`,
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

func init() {
	f := applyCmd.Flags()
	f.StringVar(&applyConfigFile, "config", "", "YAML file with applicator config")
	f.Uint64Var(&applyImageBase, "image-base", 0, "image base for section addresses (default from the target machine)")
	f.IntVarP(&applyModule, "module", "m", -1, "apply only the module with this index")
	f.IntVarP(&applyJobs, "jobs", "j", 4, "number of modules decoded concurrently")
	f.DurationVar(&applyTimeout, "timeout", 0, "cancel the run after this duration")
	f.BoolVar(&applyResolvePending, "resolve-pending", true, "resolve sections and placements left pending once all modules are applied")
	f.BoolVar(&applyShowFaults, "faults", false, "list every fault")
	f.BoolVar(&applyShowMetrics, "metrics", false, "print the run metrics in the Prometheus text format")
	applyConfig.RegisterFlags(f)
}

// moduleRun pairs a module with the outcome of applying it.
type moduleRun struct {
	Module    *pdb.Module
	Records   int
	DecodeErr error
	Result    *applicator.Result
	Discarded int // scopes left open at the end of the module
}

// applyReport is everything an apply run produced.
type applyReport struct {
	Context   *applicator.Context
	Modules   []moduleRun
	Sections  int // sections resolved after the run
	Addresses int // placements resolved after the run
}

type applyOptions struct {
	Config         applicator.Config
	ImageBase      uint64
	Module         int
	Jobs           int
	ResolvePending bool
	Logger         log.Logger
	Registerer     prometheus.Registerer
}

func runApply(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(applyConfigFile, cmd.Flags())
	if err != nil {
		return err
	}

	f, err := pdb.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open PDB: %w", err)
	}
	defer f.Close()

	ctx := cmd.Context()
	if applyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, applyTimeout)
		defer cancel()
	}

	reg := prometheus.NewRegistry()
	report, runErr := applyModules(ctx, f, applyOptions{
		Config:         cfg,
		ImageBase:      applyImageBase,
		Module:         applyModule,
		Jobs:           applyJobs,
		ResolvePending: applyResolvePending,
		Logger:         logger,
		Registerer:     reg,
	})
	if report != nil {
		printReport(report)
		if applyShowFaults {
			printFaults(report)
		}
	}
	if applyShowMetrics {
		if err := printMetrics(reg); err != nil {
			return err
		}
	}
	return runErr
}

// loadConfig reads the config file, if any, and then applies the flags set
// on the command line on top of it.
func loadConfig(path string, flags *pflag.FlagSet) (applicator.Config, error) {
	cfg := applicator.DefaultConfig()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to open config: %w", err)
		}
		defer file.Close()

		dec := yaml.NewDecoder(file)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	overrides := pflag.NewFlagSet("config", pflag.ContinueOnError)
	cfg.RegisterFlags(overrides)
	var err error
	flags.Visit(func(fl *pflag.Flag) {
		if err != nil || overrides.Lookup(fl.Name) == nil {
			return
		}
		err = overrides.Set(fl.Name, fl.Value.String())
	})
	if err != nil {
		return cfg, fmt.Errorf("invalid config flag: %w", err)
	}
	return cfg, cfg.Validate()
}

// applyModules decodes the selected modules concurrently and applies them
// in module order to one Context. The returned report is non-nil whenever
// at least the PDB metadata could be read, including on cancellation.
func applyModules(ctx context.Context, f *pdb.File, opts applyOptions) (*applyReport, error) {
	if opts.Logger == nil {
		opts.Logger = log.NewNopLogger()
	}

	mods, err := f.Modules()
	if err != nil {
		return nil, fmt.Errorf("failed to get modules: %w", err)
	}
	if opts.Module >= 0 {
		mod, err := f.Module(opts.Module)
		if err != nil {
			return nil, err
		}
		mods = []*pdb.Module{mod}
	}

	base := opts.ImageBase
	if base == 0 {
		machine, err := f.Machine()
		if err != nil {
			return nil, fmt.Errorf("failed to read machine: %w", err)
		}
		base = defaultImageBase(machine)
	}

	var layout applicator.Layout
	secs, err := f.Sections()
	switch {
	case err == nil:
		layout = secs.Layout(base)
	case errors.Is(err, pdb.ErrNoSectionHeaders):
		level.Warn(opts.Logger).Log("msg", "no section headers, sections stay pending")
	default:
		return nil, fmt.Errorf("failed to read section headers: %w", err)
	}

	d, err := applicator.NewDispatcher(opts.Config,
		applicator.WithLogger(opts.Logger),
		applicator.WithRegisterer(opts.Registerer),
	)
	if err != nil {
		return nil, err
	}

	records, decodeErrs, err := decodeModules(ctx, mods, opts.Jobs)
	if err != nil {
		return nil, err
	}

	report := &applyReport{Context: applicator.NewContext(layout)}
	c := report.Context
	for i, mod := range mods {
		run := moduleRun{Module: mod, Records: len(records[i]), DecodeErr: decodeErrs[i]}
		if run.DecodeErr != nil {
			level.Warn(opts.Logger).Log("msg", "symbol stream damaged, applying records before the damage", "module", mod.Name(), "err", run.DecodeErr)
		}

		res, err := d.Run(ctx, applicator.NewStream(records[i]), c)
		run.Result = res
		run.Discarded = c.DiscardScopes()
		if run.Discarded > 0 {
			level.Debug(opts.Logger).Log("msg", "scopes left open at end of module", "module", mod.Name(), "scopes", run.Discarded)
		}
		report.Modules = append(report.Modules, run)
		if err != nil {
			return report, fmt.Errorf("module %d (%s): %w", mod.Index(), mod.Name(), err)
		}
	}

	if opts.ResolvePending && layout != nil {
		report.Sections = c.ResolvePending(layout)
		report.Addresses = c.ResolvePlacements()
		level.Info(opts.Logger).Log("msg", "resolved pending", "sections", report.Sections, "placements", report.Addresses, "unresolved", len(c.Unresolved()))
	}
	return report, nil
}

// decodeModules decodes the symbol streams of mods with at most jobs
// modules in flight. A damaged stream yields the records before the damage
// and its *pdb.ParseError in the second slice; any other error fails the
// whole decode.
func decodeModules(ctx context.Context, mods []*pdb.Module, jobs int) ([][]codeview.Record, []error, error) {
	records := make([][]codeview.Record, len(mods))
	decodeErrs := make([]error, len(mods))

	g, gctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, mod := range mods {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			recs, err := mod.Records()
			records[i] = recs
			var perr *pdb.ParseError
			if errors.As(err, &perr) {
				decodeErrs[i] = err
				return nil
			}
			if err != nil {
				return fmt.Errorf("module %d (%s): %w", mod.Index(), mod.Name(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, nil, fmt.Errorf("%w while decoding: %w", applicator.ErrCancelled, ctx.Err())
		}
		return nil, nil, err
	}
	return records, decodeErrs, nil
}

func printReport(r *applyReport) {
	table := tablewriter.NewWriter(output)
	table.SetHeader([]string{"#", "Module", "Records", "Applied", "Skipped", "Faulted", "Status"})
	for _, run := range r.Modules {
		status := "-"
		var applied, skipped, faulted int
		if run.Result != nil {
			status = run.Result.Status.String()
			applied, skipped, faulted = run.Result.Processed, run.Result.Skipped, run.Result.Faulted
		}
		if run.DecodeErr != nil {
			status += " (damaged)"
		}
		table.Append([]string{
			strconv.Itoa(run.Module.Index()),
			run.Module.Name(),
			strconv.Itoa(run.Records),
			strconv.Itoa(applied),
			strconv.Itoa(skipped),
			strconv.Itoa(faulted),
			status,
		})
	}
	table.Render()

	c := r.Context
	fmt.Fprintf(output, "\nSections: %d (%d pending)\n", len(c.Sections), len(c.Pending()))
	fmt.Fprintf(output, "COFF groups: %d\n", len(c.Groups))
	fmt.Fprintf(output, "Compile units: %d\n", len(c.CompileUnits))
	fmt.Fprintf(output, "Procedures: %d\n", len(c.Procedures))
	fmt.Fprintf(output, "Blocks: %d\n", len(c.Blocks))
	fmt.Fprintf(output, "Thunks: %d\n", len(c.Thunks))
	fmt.Fprintf(output, "Inline sites: %d\n", len(c.InlineSites))
	fmt.Fprintf(output, "Data: %d\n", len(c.Data))
	fmt.Fprintf(output, "Publics: %d\n", len(c.Publics))
	fmt.Fprintf(output, "Labels: %d\n", len(c.Labels))
	fmt.Fprintf(output, "Unresolved placements: %d\n", len(c.Unresolved()))
}

func printFaults(r *applyReport) {
	table := tablewriter.NewWriter(output)
	table.SetHeader([]string{"Module", "Record", "Offset", "Kind", "Class", "Detail"})
	for _, run := range r.Modules {
		if run.Result == nil {
			continue
		}
		for _, f := range run.Result.Faults {
			table.Append([]string{
				strconv.Itoa(run.Module.Index()),
				strconv.Itoa(f.Position),
				fmt.Sprintf("0x%08X", f.Offset),
				f.Kind.String(),
				f.Class.String(),
				f.Err.Error(),
			})
		}
	}
	table.Render()
}

func printMetrics(g prometheus.Gatherer) error {
	mfs, err := g.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	fmt.Fprintln(output)
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(output, mf); err != nil {
			return err
		}
	}
	return nil
}
