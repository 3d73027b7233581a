package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/pdb-apply/applicator"
	"github.com/skdltmxn/pdb-apply/codeview"
	"github.com/skdltmxn/pdb-apply/internal/cvtest"
	"github.com/skdltmxn/pdb-apply/internal/dbi"
	"github.com/skdltmxn/pdb-apply/internal/msftest"
	"github.com/skdltmxn/pdb-apply/internal/pdbtest"
	"github.com/skdltmxn/pdb-apply/pdb"
)

// openImage builds a PDB with a compiland whose procedure is never closed
// and a linker module defining the sections after it.
func openImage(t *testing.T) *pdb.File {
	t.Helper()

	compiland := pdbtest.SymbolStream(
		cvtest.Record(uint16(codeview.S_OBJNAME), new(cvtest.Payload).U32(0).CString(`C:\obj\main.obj`).Bytes()),
		cvtest.Record(uint16(codeview.S_GPROC32), new(cvtest.Payload).
			U32(0).U32(0).U32(0).
			U32(0x30).U32(0).U32(0x30).
			U32(0x1001).U32(0x40).U16(1).U8(0).
			CString("main").Bytes()),
		cvtest.Record(uint16(codeview.S_UDT), new(cvtest.Payload).U32(0x1002).CString("point").Bytes()),
	)
	linker := pdbtest.SymbolStream(
		cvtest.Record(uint16(codeview.S_SECTION), new(cvtest.Payload).
			U16(1).U8(12).U8(0).U32(0x1000).U32(0x200).U32(0x60000020).CString(".text").Bytes()),
	)

	info := binary.LittleEndian.AppendUint32(nil, 20000404)
	info = append(info, make([]byte, 24)...)

	dbiStream := pdbtest.DBI(dbi.MachineAMD64, []pdbtest.Module{
		{Name: `C:\obj\main.obj`, ObjectName: `C:\obj\main.obj`, SymStream: 5, SymBytes: uint32(len(compiland))},
		{Name: "* Linker *", SymStream: 7, SymBytes: uint32(len(linker))},
	}, 6)
	headers := pdbtest.SectionHeaders(
		pdbtest.Section{Name: ".text", VirtualSize: 0x200, VirtualAddress: 0x1000, RawSize: 0x200, Characteristics: 0x60000020},
	)

	img := msftest.Build(4096, [][]byte{{}, info, {}, dbiStream, nil, compiland, headers, linker})
	f, err := pdb.OpenReader(bytes.NewReader(img), int64(len(img)))
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestApplyModules(t *testing.T) {
	f := openImage(t)
	reg := prometheus.NewRegistry()

	report, err := applyModules(context.Background(), f, applyOptions{
		Config:         applicator.DefaultConfig(),
		Module:         -1,
		Jobs:           2,
		ResolvePending: true,
		Registerer:     reg,
	})
	require.NoError(t, err)
	require.Len(t, report.Modules, 2)

	compiland := report.Modules[0]
	assert.Equal(t, 3, compiland.Records)
	assert.Equal(t, 2, compiland.Result.Processed)
	assert.Equal(t, 1, compiland.Result.Skipped)
	assert.Equal(t, 1, compiland.Discarded)
	assert.Empty(t, compiland.Result.Faults)

	c := report.Context
	assert.Equal(t, 0, c.Depth())
	assert.Equal(t, 1, report.Addresses)
	require.Len(t, c.Procedures, 1)
	assert.Equal(t, uint64(0x140001040), c.Procedures[0].Placement.Address)
	assert.Empty(t, c.Unresolved())

	// One series per kind and outcome: S_OBJNAME, S_GPROC32, S_SECTION applied, S_UDT skipped.
	n, err := testutil.GatherAndCount(reg, "pdbapply_records_total")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestApplySingleModule(t *testing.T) {
	f := openImage(t)

	report, err := applyModules(context.Background(), f, applyOptions{
		Config:         applicator.DefaultConfig(),
		Module:         0,
		ImageBase:      0x10000000,
		ResolvePending: true,
	})
	require.NoError(t, err)
	require.Len(t, report.Modules, 1)

	// Without the linker module no section is ever defined.
	assert.Empty(t, report.Context.Sections)
	assert.Equal(t, 0, report.Addresses)
	assert.Len(t, report.Context.Unresolved(), 1)

	_, err = applyModules(context.Background(), f, applyOptions{Config: applicator.DefaultConfig(), Module: 9})
	assert.ErrorIs(t, err, pdb.ErrModuleNotFound)
}

func TestApplyCancelled(t *testing.T) {
	f := openImage(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := applyModules(ctx, f, applyOptions{Config: applicator.DefaultConfig(), Module: -1})
	assert.ErrorIs(t, err, applicator.ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, report)
}

func TestApplyInvalidConfig(t *testing.T) {
	f := openImage(t)
	_, err := applyModules(context.Background(), f, applyOptions{Config: applicator.Config{}, Module: -1})
	assert.ErrorIs(t, err, applicator.ErrInvalidConfig)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("skip_procedure_bodies: true\nmax_scope_depth: 8\n"), 0o644))

	newFlags := func(args ...string) *pflag.FlagSet {
		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		cfg := applicator.DefaultConfig()
		cfg.RegisterFlags(fs)
		require.NoError(t, fs.Parse(args))
		return fs
	}

	cfg, err := loadConfig(path, newFlags())
	require.NoError(t, err)
	assert.True(t, cfg.SkipProcedureBodies)
	assert.Equal(t, 8, cfg.MaxScopeDepth)

	cfg, err = loadConfig(path, newFlags("--max-scope-depth=16", "--skip-block-bodies"))
	require.NoError(t, err)
	assert.True(t, cfg.SkipProcedureBodies)
	assert.True(t, cfg.SkipBlockBodies)
	assert.Equal(t, 16, cfg.MaxScopeDepth)

	cfg, err = loadConfig("", newFlags())
	require.NoError(t, err)
	assert.Equal(t, applicator.DefaultConfig(), cfg)

	_, err = loadConfig("", newFlags("--max-scope-depth=0"))
	assert.ErrorIs(t, err, applicator.ErrInvalidConfig)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("skip_everything: true\n"), 0o644))
	_, err = loadConfig(bad, newFlags())
	assert.Error(t, err)
}

func TestPrintReport(t *testing.T) {
	f := openImage(t)
	report, err := applyModules(context.Background(), f, applyOptions{
		Config:         applicator.DefaultConfig(),
		Module:         -1,
		ResolvePending: true,
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	output = &buf
	t.Cleanup(func() { output = nil })

	printReport(report)
	assert.Contains(t, buf.String(), "* Linker *")
	assert.Contains(t, buf.String(), "Procedures: 1")
	assert.Contains(t, buf.String(), "Sections: 1 (0 pending)")

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "pdbapply_test_total", Help: "Test counter."}))
	buf.Reset()
	require.NoError(t, printMetrics(reg))
	assert.Contains(t, buf.String(), "pdbapply_test_total 0")
}

func TestLevelFilter(t *testing.T) {
	for _, l := range []string{"debug", "info", "warn", "error"} {
		_, err := levelFilter(l)
		assert.NoError(t, err, l)
	}
	_, err := levelFilter("trace")
	assert.Error(t, err)
}

func TestDefaultImageBase(t *testing.T) {
	assert.Equal(t, uint64(0x140000000), defaultImageBase(dbi.MachineAMD64))
	assert.Equal(t, uint64(0x140000000), defaultImageBase(dbi.MachineARM64))
	assert.Equal(t, uint64(0x400000), defaultImageBase(dbi.MachineI386))
	assert.Equal(t, "x64", machineName(dbi.MachineAMD64))
	assert.Equal(t, "0x1234", machineName(0x1234))
}
