package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/go-kit/log/level"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/skdltmxn/pdb-apply/applicator"
	"github.com/skdltmxn/pdb-apply/codeview"
	"github.com/skdltmxn/pdb-apply/pdb"
)

var (
	recordsModule      int
	recordsUnsupported bool
)

var recordsCmd = &cobra.Command{
	Use:   "records <pdb-file>",
	Short: "List the symbol records of a module",
	Long: `List the decoded symbol records of one module with their stream offset,
kind and whether the default registry has an applier for the kind.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecords,
}

func init() {
	recordsCmd.Flags().IntVarP(&recordsModule, "module", "m", 0, "module index")
	recordsCmd.Flags().BoolVar(&recordsUnsupported, "unsupported", false, "only list records without an applier")
}

func runRecords(cmd *cobra.Command, args []string) error {
	f, err := pdb.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open PDB: %w", err)
	}
	defer f.Close()

	mod, err := f.Module(recordsModule)
	if err != nil {
		return fmt.Errorf("failed to get module: %w", err)
	}

	recs, err := mod.Records()
	var perr *pdb.ParseError
	if errors.As(err, &perr) {
		level.Warn(logger).Log("msg", "symbol stream damaged, listing records before the damage", "module", mod.Name(), "err", err)
	} else if err != nil {
		return fmt.Errorf("failed to decode records: %w", err)
	}

	registry := applicator.DefaultRegistry(applicator.DefaultConfig())
	table := tablewriter.NewWriter(output)
	table.SetHeader([]string{"#", "Offset", "Kind", "Applier", "Name"})
	listed := 0
	for i, rec := range recs {
		supported := registry.Supports(rec.Kind())
		if recordsUnsupported && supported {
			continue
		}
		table.Append([]string{
			strconv.Itoa(i),
			fmt.Sprintf("0x%08X", rec.StreamOffset()),
			rec.Kind().String(),
			strconv.FormatBool(supported),
			recordName(rec),
		})
		listed++
	}
	table.Render()

	fmt.Fprintf(output, "\nModule %d (%s): %d of %d records\n", mod.Index(), mod.Name(), listed, len(recs))
	return nil
}

func recordName(rec codeview.Record) string {
	switch r := rec.(type) {
	case *codeview.SectionSym:
		return r.Name
	case *codeview.CoffGroupSym:
		return r.Name
	case *codeview.ProcSym:
		return r.Name
	case *codeview.ThunkSym:
		return r.Name
	case *codeview.BlockSym:
		return r.Name
	case *codeview.DataSym:
		return r.Name
	case *codeview.PublicSym:
		return r.Name
	case *codeview.LabelSym:
		return r.Name
	case *codeview.ObjNameSym:
		return r.Name
	case *codeview.CompileSym:
		return r.Version
	}
	return ""
}
