package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/skdltmxn/pdb-apply/pdb"
)

var sectionsCmd = &cobra.Command{
	Use:   "sections <pdb-file>",
	Short: "List the PE section headers stored in the PDB file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSections,
}

func runSections(cmd *cobra.Command, args []string) error {
	f, err := pdb.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open PDB: %w", err)
	}
	defer f.Close()

	secs, err := f.Sections()
	if err != nil {
		return fmt.Errorf("failed to read section headers: %w", err)
	}

	table := tablewriter.NewWriter(output)
	table.SetHeader([]string{"#", "Name", "RVA", "Virtual Size", "Raw Size", "Flags"})
	for i, sec := range secs.All() {
		table.Append([]string{
			strconv.Itoa(i + 1),
			sec.Name,
			fmt.Sprintf("0x%08X", sec.VirtualAddress),
			humanize.IBytes(uint64(sec.VirtualSize)),
			humanize.IBytes(uint64(sec.SizeOfRawData)),
			sec.Flags(),
		})
	}
	table.Render()
	return nil
}
