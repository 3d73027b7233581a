package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/skdltmxn/pdb-apply/internal/dbi"
	"github.com/skdltmxn/pdb-apply/pdb"
)

var infoCmd = &cobra.Command{
	Use:   "info <pdb-file>",
	Short: "Display PDB file information",
	Long:  `Display general information about a PDB file including version, GUID, age, target machine and stream counts.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	pdbPath := args[0]

	f, err := pdb.Open(pdbPath)
	if err != nil {
		return fmt.Errorf("failed to open PDB: %w", err)
	}
	defer f.Close()

	info, err := f.Info()
	if err != nil {
		return fmt.Errorf("failed to read PDB info: %w", err)
	}

	fmt.Fprintf(output, "PDB File: %s\n", pdbPath)
	fmt.Fprintf(output, "Version: %d\n", info.Version)
	fmt.Fprintf(output, "Signature: 0x%08X\n", info.Signature)
	fmt.Fprintf(output, "Age: %d\n", info.Age)
	fmt.Fprintf(output, "GUID: %s\n", formatGUID(info.GUID))
	fmt.Fprintf(output, "Block Size: %s\n", humanize.IBytes(uint64(f.BlockSize())))
	fmt.Fprintf(output, "Number of Streams: %d\n", f.NumStreams())

	if machine, err := f.Machine(); err == nil {
		fmt.Fprintf(output, "Machine: %s\n", machineName(machine))
	}
	if mods, err := f.Modules(); err == nil {
		fmt.Fprintf(output, "Number of Modules: %d\n", len(mods))
	}
	if secs, err := f.Sections(); err == nil {
		fmt.Fprintf(output, "Number of Sections: %d\n", secs.Count())
	}
	return nil
}

func formatGUID(guid [16]byte) string {
	return fmt.Sprintf("{%08X-%04X-%04X-%02X%02X-%02X%02X%02X%02X%02X%02X}",
		uint32(guid[0])|uint32(guid[1])<<8|uint32(guid[2])<<16|uint32(guid[3])<<24,
		uint16(guid[4])|uint16(guid[5])<<8,
		uint16(guid[6])|uint16(guid[7])<<8,
		guid[8], guid[9],
		guid[10], guid[11], guid[12], guid[13], guid[14], guid[15])
}

func machineName(m uint16) string {
	switch m {
	case dbi.MachineI386:
		return "x86"
	case dbi.MachineAMD64:
		return "x64"
	case dbi.MachineARM64:
		return "arm64"
	}
	return fmt.Sprintf("0x%04x", m)
}

// defaultImageBase returns the linker's default image base for machine.
func defaultImageBase(machine uint16) uint64 {
	switch machine {
	case dbi.MachineAMD64, dbi.MachineARM64:
		return 0x140000000
	}
	return 0x400000
}
