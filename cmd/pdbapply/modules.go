package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/skdltmxn/pdb-apply/pdb"
)

var modulesCmd = &cobra.Command{
	Use:   "modules <pdb-file>",
	Short: "List modules (compilation units) in the PDB file",
	Long:  `List all modules (compilation units/object files) in a PDB file with the size of their symbol streams.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runModules,
}

func runModules(cmd *cobra.Command, args []string) error {
	f, err := pdb.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open PDB: %w", err)
	}
	defer f.Close()

	modules, err := f.Modules()
	if err != nil {
		return fmt.Errorf("failed to get modules: %w", err)
	}

	table := tablewriter.NewWriter(output)
	table.SetHeader([]string{"Index", "Section", "Symbols", "Name", "Object"})
	for _, mod := range modules {
		symbols := "-"
		if mod.HasSymbols() {
			symbols = humanize.IBytes(uint64(mod.SymbolBytes()))
		}
		object := mod.ObjectFileName()
		if object == mod.Name() {
			object = ""
		}
		table.Append([]string{
			strconv.Itoa(mod.Index()),
			fmt.Sprintf("%04X", mod.Section()),
			symbols,
			mod.Name(),
			object,
		})
	}
	table.Render()

	fmt.Fprintf(output, "\nTotal: %d modules\n", len(modules))
	return nil
}
