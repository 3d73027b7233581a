package applicator

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skdltmxn/pdb-apply/codeview"
)

func classes(faults []*Fault) []FaultClass {
	out := make([]FaultClass, 0, len(faults))
	for _, f := range faults {
		out = append(out, f.Class)
	}
	return out
}

func TestRunSectionResolvesBase(t *testing.T) {
	var b recs
	b.section(3, 0x1000, 0x200)

	c := NewContext(FixedBase(0x400000))
	res, err := Run(context.Background(), b.stream(), c)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 1, res.Processed)
	assert.Empty(t, res.Faults)
	assert.Empty(t, res.Skips)
	assert.NoError(t, res.Err())

	sec, ok := c.Section(3)
	require.True(t, ok)
	assert.True(t, sec.Resolved)
	assert.Equal(t, uint64(0x401000), sec.Base)
	assert.Equal(t, uint32(0x200), sec.Length)

	addr, ok := c.Resolve(3, 0x10)
	require.True(t, ok)
	assert.Equal(t, uint64(0x401010), addr)
	assert.Empty(t, c.Pending())
}

func TestRunUnsupportedKindAdvancesOne(t *testing.T) {
	var b recs
	b.raw(0x1111)
	b.raw(codeview.S_UDT)
	b.section(1, 0x1000, 0x10)

	c := NewContext(FixedBase(0x400000))
	var events []Event
	d, err := NewDispatcher(DefaultConfig(), WithObserver(func(e Event) { events = append(events, e) }))
	require.NoError(t, err)

	res, err := d.Run(context.Background(), b.stream(), c)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 1, res.Processed)
	assert.Zero(t, res.Faulted)
	require.Len(t, res.Skips, 2)
	assert.Equal(t, 0, res.Skips[0].Position)
	assert.Equal(t, 1, res.Skips[1].Position)
	assert.Equal(t, codeview.Kind(0x1111), res.Skips[0].Kind)
	assert.ErrorIs(t, res.Skips[0], ErrUnsupportedKind)
	assert.Equal(t, ClassUnsupportedKind, res.Skips[0].Class)
	assert.NoError(t, res.Err())

	require.Len(t, events, 3)
	assert.Equal(t, []Outcome{OutcomeSkipped, OutcomeSkipped, OutcomeApplied},
		[]Outcome{events[0].Outcome, events[1].Outcome, events[2].Outcome})
	assert.Contains(t, c.Sections, uint16(1))
}

func TestRunSectionValidation(t *testing.T) {
	for _, tc := range []struct {
		name string
		sec  func(*recs)
	}{
		{"section zero", func(b *recs) { b.section(0, 0x1000, 0x10) }},
		{"alignment too large", func(b *recs) { b.section(1, 0x1000, 0x10).Alignment = 14 }},
		{"range overflow", func(b *recs) { b.section(1, 0xffffff00, 0x1000) }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var b recs
			tc.sec(&b)
			c := NewContext(FixedBase(0x400000))
			res, err := Run(context.Background(), b.stream(), c)
			require.NoError(t, err)

			assert.Equal(t, 1, res.Faulted)
			assert.Equal(t, []FaultClass{ClassMalformedField}, classes(res.Faults))
			assert.Equal(t, SeverityData, res.Faults[0].Class.Severity())
			assert.Empty(t, c.Sections)
		})
	}
}

func TestRunSectionAlignment(t *testing.T) {
	var b recs
	b.section(1, 0x1000, 0x10).Alignment = 12
	b.section(2, 0x2000, 0x10)

	c := NewContext(nil)
	res, err := Run(context.Background(), b.stream(), c)
	require.NoError(t, err)
	require.Empty(t, res.Faults)

	assert.Equal(t, uint32(4096), c.Sections[1].Alignment)
	assert.Equal(t, uint32(0), c.Sections[2].Alignment)
}

func TestRunBalancedScopes(t *testing.T) {
	var b recs
	b.section(1, 0x1000, 0x1000)
	p := b.proc(codeview.S_GPROC32_ID, "main", 1, 0x10, 0x40)
	blk := b.block(1, 0x18, 0x8)
	blk.End = b.end(codeview.S_END)
	p.End = b.end(codeview.S_PROC_ID_END)

	c := NewContext(FixedBase(0x400000))
	var depths []int
	d, err := NewDispatcher(DefaultConfig(), WithObserver(func(Event) { depths = append(depths, c.Depth()) }))
	require.NoError(t, err)

	res, err := d.Run(context.Background(), b.stream(), c)
	require.NoError(t, err)

	assert.Empty(t, res.Faults)
	assert.Equal(t, 5, res.Processed)
	assert.Equal(t, []int{0, 1, 2, 1, 0}, depths)
	assert.Zero(t, c.Depth())

	require.Len(t, c.Procedures, 1)
	proc := c.Procedures[0]
	assert.Equal(t, "main", proc.Name)
	assert.True(t, proc.Global)
	assert.Equal(t, 1, proc.Blocks)
	assert.Equal(t, uint64(0x401010), proc.Placement.Address)

	require.Len(t, c.Blocks, 1)
	assert.Equal(t, 0, c.Blocks[0].Procedure)
	assert.Equal(t, -1, c.Blocks[0].Parent)
}

func TestRunScopeFrames(t *testing.T) {
	var b recs
	p := b.proc(codeview.S_LPROC32, "f", 1, 0x10, 0x40)
	outer := b.block(1, 0x14, 0x20)
	b.block(1, 0x18, 0x8)

	c := NewContext(nil)
	res, err := Run(context.Background(), b.stream(), c)
	require.NoError(t, err)
	require.Empty(t, res.Faults)

	frames := c.Scopes()
	require.Len(t, frames, 3)
	assert.Equal(t, ScopeProcedure, frames[0].Kind)
	assert.Equal(t, -1, frames[0].Parent)
	assert.Equal(t, 0, frames[0].Position)
	assert.Equal(t, p.End, frames[0].End)
	assert.Equal(t, ScopeBlock, frames[1].Kind)
	assert.Equal(t, 0, frames[1].Parent)
	assert.Equal(t, outer.End, frames[1].End)
	assert.Equal(t, 1, frames[2].Parent)

	assert.Equal(t, 0, c.Blocks[1].Parent)
	assert.Equal(t, 2, c.Procedures[0].Blocks)

	frames[0].Name = "changed"
	assert.Equal(t, "f", c.Scopes()[0].Name)
}

func TestRunNestedKinds(t *testing.T) {
	var b recs
	b.section(1, 0x1000, 0x1000)
	p := b.proc(codeview.S_GPROC32_ID, "f", 1, 0x10, 0x40)
	site := b.inlineSite(0x1003)
	site.End = b.end(codeview.S_INLINESITE_END)
	p.End = b.end(codeview.S_PROC_ID_END)
	th := b.thunk("ILT+0(f)", 1, 0x5)
	th.End = b.end(codeview.S_END)

	c := NewContext(FixedBase(0x400000))
	res, err := Run(context.Background(), b.stream(), c)
	require.NoError(t, err)

	assert.Empty(t, res.Faults)
	assert.Zero(t, c.Depth())
	require.Len(t, c.InlineSites, 1)
	assert.Equal(t, uint32(0x1003), c.InlineSites[0].Inlinee)
	assert.Equal(t, 0, c.InlineSites[0].Procedure)
	require.Len(t, c.Thunks, 1)
	assert.Equal(t, uint64(0x401005), c.Thunks[0].Placement.Address)
	assert.Equal(t, uint32(5), c.Thunks[0].Length)
}

func TestRunUnmatchedEnd(t *testing.T) {
	var b recs
	b.end(codeview.S_END)
	b.section(1, 0x1000, 0x10)

	c := NewContext(FixedBase(0x400000))
	res, err := Run(context.Background(), b.stream(), c)
	require.NoError(t, err)

	assert.Equal(t, []FaultClass{ClassScopeImbalance}, classes(res.Faults))
	assert.ErrorIs(t, res.Faults[0], ErrScopeImbalance)
	assert.Equal(t, 1, res.Faulted)
	assert.Equal(t, 1, res.Processed)
	assert.Contains(t, c.Sections, uint16(1))
}

func TestRunBlockThenProcedureEnd(t *testing.T) {
	var b recs
	b.block(1, 0x10, 0x4)
	b.end(codeview.S_PROC_ID_END)
	b.section(1, 0x1000, 0x10)

	c := NewContext(FixedBase(0x400000))
	res, err := Run(context.Background(), b.stream(), c)
	require.NoError(t, err)

	assert.Zero(t, c.Depth())
	assert.Equal(t, []FaultClass{ClassScopeImbalance}, classes(res.Faults))
	assert.Equal(t, 1, res.Faults[0].Position)
	assert.Equal(t, codeview.S_PROC_ID_END, res.Faults[0].Kind)
	assert.Equal(t, 2, res.Processed)
	assert.Contains(t, c.Sections, uint16(1))
}

func TestRunUnwindsToCompatibleFrame(t *testing.T) {
	var b recs
	b.proc(codeview.S_GPROC32_ID, "f", 1, 0x10, 0x40)
	b.block(1, 0x14, 0x4)
	b.end(codeview.S_PROC_ID_END)
	b.proc(codeview.S_GPROC32, "g", 1, 0x100, 0x10)
	b.end(codeview.S_END)

	c := NewContext(nil)
	res, err := Run(context.Background(), b.stream(), c)
	require.NoError(t, err)

	assert.Equal(t, []FaultClass{ClassScopeImbalance}, classes(res.Faults))
	assert.Zero(t, c.Depth())
	assert.Len(t, c.Procedures, 2)
}

func TestRunAbortsAfterCancel(t *testing.T) {
	var b recs
	b.section(1, 0x1000, 0x1000)
	p := b.proc(codeview.S_GPROC32, "f", 1, 0x10, 0x20)
	b.data(codeview.S_LDATA32, "s", 2, 0x8)
	b.label("l", 1, 0x14)
	p.End = b.end(codeview.S_END)
	b.raw(0x1111)
	b.end(codeview.S_END)
	b.section(2, 0x2000, 0x1000)
	b.public("f", 1, 0x10)

	for k := 0; k <= len(b.list); k++ {
		ctx, cancel := context.WithCancel(context.Background())
		n := 0
		d, err := NewDispatcher(DefaultConfig(), WithObserver(func(Event) {
			n++
			if n == k {
				cancel()
			}
		}))
		require.NoError(t, err)
		if k == 0 {
			cancel()
		}

		got := NewContext(FixedBase(0x400000))
		res, err := d.Run(ctx, NewStream(b.list), got)
		require.ErrorIs(t, err, ErrCancelled)
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, StatusCancelled, res.Status)
		cancel()

		want := NewContext(FixedBase(0x400000))
		wantRes, err := Run(context.Background(), NewStream(b.list[:k]), want)
		require.NoError(t, err)

		assert.Equal(t, want, got, "after %d records", k)
		assert.Equal(t, wantRes.Processed, res.Processed, "after %d records", k)
		assert.Equal(t, wantRes.Skipped, res.Skipped, "after %d records", k)
		assert.Equal(t, wantRes.Faulted, res.Faulted, "after %d records", k)
		assert.Equal(t, classes(wantRes.Faults), classes(res.Faults), "after %d records", k)
		assert.Equal(t, k, n)
	}
}

func TestRunCancelledDeadline(t *testing.T) {
	var b recs
	b.section(1, 0x1000, 0x10)

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-ctx.Done()

	var buf bytes.Buffer
	d, err := NewDispatcher(DefaultConfig(), WithLogger(log.NewLogfmtLogger(&buf)))
	require.NoError(t, err)

	c := NewContext(nil)
	res, err := d.Run(ctx, b.stream(), c)
	require.ErrorIs(t, err, ErrCancelled)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, res.Processed)
	assert.Empty(t, c.Sections)
	assert.Contains(t, buf.String(), `msg="run cancelled"`)
}

func TestRunSkipProcedureBodies(t *testing.T) {
	var b recs
	b.section(1, 0x1000, 0x1000)
	p := b.proc(codeview.S_GPROC32, "f", 1, 0x10, 0x20)
	b.data(codeview.S_LDATA32, "s", 1, 0x30)
	blk := b.block(1, 0x12, 0x4)
	blk.End = b.end(codeview.S_END)
	b.label("l", 1, 0x14)
	p.End = b.end(codeview.S_END)
	b.public("f", 1, 0x10)

	cfg := DefaultConfig()
	cfg.SkipProcedureBodies = true
	reg := prometheus.NewPedanticRegistry()
	var events []Event
	d, err := NewDispatcher(cfg, WithRegisterer(reg), WithObserver(func(e Event) { events = append(events, e) }))
	require.NoError(t, err)

	c := NewContext(FixedBase(0x400000))
	res, err := d.Run(context.Background(), b.stream(), c)
	require.NoError(t, err)

	assert.Empty(t, res.Faults)
	assert.Equal(t, 4, res.Processed)
	assert.Equal(t, 4, res.Skipped)
	assert.Zero(t, c.Depth())
	assert.Len(t, c.Procedures, 1)
	assert.Empty(t, c.Data)
	assert.Empty(t, c.Blocks)
	assert.Empty(t, c.Labels)
	assert.Len(t, c.Publics, 1)

	require.Len(t, events, 4)
	assert.Equal(t, codeview.S_GPROC32, events[1].Kind)
	assert.Equal(t, 4, events[1].Jumped)
	assert.Equal(t, 6, events[2].Position)

	assert.Equal(t, float64(1), testutil.ToFloat64(d.metrics.records.WithLabelValues("S_LDATA32", "skipped")))
	assert.Equal(t, float64(2), testutil.ToFloat64(d.metrics.records.WithLabelValues("S_END", "skipped")) +
		testutil.ToFloat64(d.metrics.records.WithLabelValues("S_END", "applied")))
}

func TestRunSkipBlockBodies(t *testing.T) {
	var b recs
	p := b.proc(codeview.S_GPROC32, "f", 1, 0x10, 0x20)
	b.label("before", 1, 0x11)
	blk := b.block(1, 0x12, 0x4)
	b.label("inside", 1, 0x13)
	blk.End = b.end(codeview.S_END)
	b.label("after", 1, 0x18)
	p.End = b.end(codeview.S_END)

	cfg := DefaultConfig()
	cfg.SkipBlockBodies = true
	d, err := NewDispatcher(cfg)
	require.NoError(t, err)

	c := NewContext(nil)
	res, err := d.Run(context.Background(), b.stream(), c)
	require.NoError(t, err)

	assert.Empty(t, res.Faults)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, c.Labels, 2)
	assert.Equal(t, "before", c.Labels[0].Name)
	assert.Equal(t, "after", c.Labels[1].Name)
	assert.Zero(t, c.Depth())
}

func TestRunSkipWithBadEnd(t *testing.T) {
	for _, tc := range []struct {
		name string
		end  uint32
	}{
		{"unknown offset", 0x999},
		{"backward offset", 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var b recs
			b.section(1, 0x1000, 0x1000)
			p := b.proc(codeview.S_GPROC32, "f", 1, 0x10, 0x20)
			b.data(codeview.S_LDATA32, "s", 1, 0x30)
			b.end(codeview.S_END)
			p.End = tc.end

			cfg := DefaultConfig()
			cfg.SkipProcedureBodies = true
			d, err := NewDispatcher(cfg)
			require.NoError(t, err)

			c := NewContext(nil)
			res, err := d.Run(context.Background(), b.stream(), c)
			require.NoError(t, err)

			assert.Equal(t, []FaultClass{ClassMalformedField}, classes(res.Faults))
			assert.Equal(t, 1, res.Faults[0].Position)
			assert.Len(t, c.Data, 1)
			assert.Len(t, c.Procedures, 1)
			assert.Zero(t, c.Depth())
		})
	}
}

func TestRunMaxScopeDepth(t *testing.T) {
	var b recs
	b.proc(codeview.S_GPROC32, "f", 1, 0x10, 0x20)
	b.block(1, 0x12, 0x4)
	b.end(codeview.S_END)
	b.data(codeview.S_LDATA32, "inside_f", 2, 0x8)
	b.end(codeview.S_END)

	cfg := DefaultConfig()
	cfg.MaxScopeDepth = 1
	c := NewContext(nil)
	var depths []int
	d, err := NewDispatcher(cfg, WithObserver(func(Event) { depths = append(depths, c.Depth()) }))
	require.NoError(t, err)

	res, err := d.Run(context.Background(), b.stream(), c)
	require.NoError(t, err)

	// The refused block has no effect and its end leaves f open.
	assert.Equal(t, []FaultClass{ClassMalformedField}, classes(res.Faults))
	assert.Equal(t, 1, res.Faults[0].Position)
	assert.Equal(t, []int{1, 1, 1, 1, 0}, depths)
	assert.Empty(t, c.Blocks)
	assert.Zero(t, c.Procedures[0].Blocks)
	require.Len(t, c.Data, 1)
	assert.Equal(t, 0, c.Data[0].Procedure)
	assert.Zero(t, c.Depth())
}

func TestRunMaxScopeDepthNested(t *testing.T) {
	var b recs
	b.proc(codeview.S_GPROC32_ID, "f", 1, 0x10, 0x40)
	b.block(1, 0x12, 0x10)
	b.inlineSite(0x1005)
	b.thunk("t", 1, 0x14)
	b.end(codeview.S_END)
	b.end(codeview.S_INLINESITE_END)
	b.label("l", 1, 0x18)
	b.end(codeview.S_END)
	b.end(codeview.S_PROC_ID_END)

	cfg := DefaultConfig()
	cfg.MaxScopeDepth = 2
	d, err := NewDispatcher(cfg)
	require.NoError(t, err)

	c := NewContext(nil)
	res, err := d.Run(context.Background(), b.stream(), c)
	require.NoError(t, err)

	assert.Equal(t, []FaultClass{ClassMalformedField, ClassMalformedField}, classes(res.Faults))
	assert.Empty(t, c.InlineSites)
	assert.Empty(t, c.Thunks)
	require.Len(t, c.Labels, 1)
	assert.Equal(t, 0, c.Labels[0].Procedure)
	assert.Equal(t, 1, c.Procedures[0].Blocks)
	assert.Zero(t, c.Depth())
	assert.Zero(t, c.overflow)
}

func TestRunRangeFaultsKeepScope(t *testing.T) {
	var b recs
	p := b.proc(codeview.S_GPROC32, "f", 1, 0x10, 0x10)
	p.DbgStart, p.DbgEnd = 5, 3
	blk := b.block(1, 0x30, 0x4)
	blk.End = b.end(codeview.S_END)
	p.End = b.end(codeview.S_END)

	c := NewContext(nil)
	res, err := Run(context.Background(), b.stream(), c)
	require.NoError(t, err)

	assert.Equal(t, []FaultClass{ClassMalformedField, ClassMalformedField}, classes(res.Faults))
	assert.Equal(t, []int{0, 1}, []int{res.Faults[0].Position, res.Faults[1].Position})
	assert.Zero(t, c.Depth())
	assert.Len(t, c.Blocks, 1)
	assert.Equal(t, 1, c.Procedures[0].Blocks)
}

func TestRunDispatchMismatch(t *testing.T) {
	var b recs
	b.public("f", 1, 0x10)
	b.label("l", 1, 0x14)
	b.section(1, 0x1000, 0x10)

	r := DefaultRegistry(DefaultConfig())
	r.Register(codeview.S_PUB32, sectionApplier{})
	r.Register(codeview.S_LABEL32, ApplierFunc(func(*Stream, *Context) error { return nil }))

	var buf bytes.Buffer
	d, err := NewDispatcher(DefaultConfig(), WithRegistry(r), WithLogger(log.NewLogfmtLogger(&buf)))
	require.NoError(t, err)

	s := b.stream()
	c := NewContext(FixedBase(0x400000))
	res, err := d.Run(context.Background(), s, c)
	require.NoError(t, err)

	assert.Equal(t, []FaultClass{ClassDispatchMismatch, ClassDispatchMismatch}, classes(res.Faults))
	for _, f := range res.Faults {
		assert.Equal(t, SeverityProgramming, f.Class.Severity())
		assert.ErrorIs(t, f, ErrDispatchMismatch)
	}
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 3, s.Position())
	assert.Contains(t, c.Sections, uint16(1))
	assert.Contains(t, buf.String(), "level=error")
	assert.Contains(t, buf.String(), `msg="record fault"`)
}

func TestRunCustomApplierError(t *testing.T) {
	var b recs
	b.raw(0x2222)

	r := NewRegistry()
	r.Register(0x2222, ApplierFunc(func(s *Stream, _ *Context) error {
		_, err := s.Next()
		if err != nil {
			return err
		}
		return errors.New("bad payload")
	}))
	d, err := NewDispatcher(DefaultConfig(), WithRegistry(r))
	require.NoError(t, err)

	res, err := d.Run(context.Background(), b.stream(), NewContext(nil))
	require.NoError(t, err)
	assert.Equal(t, []FaultClass{ClassMalformedField}, classes(res.Faults))
}

func TestRunDataPublicLabel(t *testing.T) {
	var b recs
	b.section(1, 0x1000, 0x1000)
	b.section(2, 0x3000, 0x1000)
	b.data(codeview.S_GDATA32, "g", 2, 0x20)
	b.data(codeview.S_GTHREAD32, "tls", 3, 0x4)
	p := b.proc(codeview.S_LPROC32, "f", 1, 0x100, 0x40)
	b.data(codeview.S_LDATA32, "static", 2, 0x40)
	b.label("$loop", 1, 0x110)
	p.End = b.end(codeview.S_END)
	b.public("f", 1, 0x100)
	b.public("abs", 0, 0x1234)
	b.data(codeview.S_LDATA32, "", 2, 0)

	c := NewContext(FixedBase(0x400000))
	res, err := Run(context.Background(), b.stream(), c)
	require.NoError(t, err)

	assert.Equal(t, 10, res.Processed)
	assert.Equal(t, []FaultClass{ClassMalformedField}, classes(res.Faults))

	require.Len(t, c.Data, 3)
	g, tls, static := c.Data[0], c.Data[1], c.Data[2]
	assert.Equal(t, uint64(0x403020), g.Placement.Address)
	assert.True(t, g.Global)
	assert.Equal(t, -1, g.Procedure)
	assert.True(t, tls.ThreadLocal)
	assert.False(t, tls.Placement.Resolved)
	assert.False(t, static.Global)
	assert.Equal(t, 0, static.Procedure)
	assert.Equal(t, uint32(0x74), static.TypeIndex)

	require.Len(t, c.Labels, 1)
	assert.Equal(t, 0, c.Labels[0].Procedure)
	assert.Equal(t, uint64(0x401110), c.Labels[0].Placement.Address)

	require.Len(t, c.Publics, 2)
	assert.Equal(t, uint64(0x401100), c.Publics[0].Placement.Address)
	assert.True(t, c.Publics[0].Flags.IsFunction())
	assert.False(t, c.Publics[1].Placement.Resolved)

	unresolved := c.Unresolved()
	require.Len(t, unresolved, 1)
	assert.Equal(t, uint16(3), unresolved[0].Segment)
}

func TestRunCompileUnits(t *testing.T) {
	var b recs
	b.add(&codeview.ObjNameSym{Header: b.hdr(codeview.S_OBJNAME), Name: `C:\obj\a.obj`})
	b.add(&codeview.CompileSym{
		Header:        b.hdr(codeview.S_COMPILE3),
		Flags:         0x1,
		Machine:       0xd0,
		FrontendMajor: 19,
		FrontendMinor: 38,
		FrontendBuild: 33135,
		BackendMajor:  19,
		BackendMinor:  38,
		BackendBuild:  33135,
		Version:       "Microsoft (R) Optimizing Compiler",
	})
	p := b.proc(codeview.S_GPROC32, "f", 1, 0, 0x10)
	p.End = b.end(codeview.S_END)
	b.add(&codeview.CompileSym{Header: b.hdr(codeview.S_COMPILE3), Version: "clang"})

	c := NewContext(nil)
	res, err := Run(context.Background(), b.stream(), c)
	require.NoError(t, err)
	require.Empty(t, res.Faults)

	require.Len(t, c.CompileUnits, 2)
	cu := c.CompileUnits[0]
	assert.Equal(t, `C:\obj\a.obj`, cu.ObjectName)
	assert.Equal(t, uint8(1), cu.Language)
	assert.Equal(t, uint16(0xd0), cu.Machine)
	assert.Equal(t, [4]uint16{19, 38, 33135, 0}, cu.Frontend)
	assert.Equal(t, "Microsoft (R) Optimizing Compiler", cu.Compiler)

	assert.Empty(t, c.CompileUnits[1].ObjectName)
	assert.Equal(t, "clang", c.CompileUnits[1].Compiler)
	assert.Equal(t, 0, c.Procedures[0].CompileUnit)
}

func TestRunCoffGroups(t *testing.T) {
	var b recs
	group := func(name string, seg uint16) {
		b.add(&codeview.CoffGroupSym{Header: b.hdr(codeview.S_COFFGROUP), Name: name, Segment: seg, Size: 0x100, Characteristics: 0x60000020})
	}
	group(".text$mn", 1)
	group(".text$mn", 1)
	group(".text$mn", 2)
	group("", 1)
	group(".bss", 0)

	c := NewContext(nil)
	res, err := Run(context.Background(), b.stream(), c)
	require.NoError(t, err)

	assert.Equal(t, []FaultClass{ClassMalformedField, ClassMalformedField}, classes(res.Faults))
	require.Len(t, c.Groups, 1)
	g := c.Groups[".text$mn"]
	assert.Equal(t, []uint16{1, 2}, g.Sections)
	assert.Equal(t, uint32(0x100), g.Size)
}

func TestRunForwardReferences(t *testing.T) {
	var b recs
	b.public("f", 1, 0x10)
	b.section(1, 0x1000, 0x100)

	c := NewContext(FixedBase(0x400000))
	_, err := Run(context.Background(), b.stream(), c)
	require.NoError(t, err)

	require.Len(t, c.Unresolved(), 1)
	assert.Equal(t, 1, c.ResolvePlacements())
	assert.Empty(t, c.Unresolved())
	assert.Equal(t, uint64(0x401010), c.Publics[0].Placement.Address)
}

func TestResolvePending(t *testing.T) {
	var b recs
	b.section(3, 0x2000, 0x100)
	b.data(codeview.S_GDATA32, "g", 3, 0x8)

	c := NewContext(nil)
	_, err := Run(context.Background(), b.stream(), c)
	require.NoError(t, err)

	assert.Equal(t, []uint16{3}, c.Pending())
	_, ok := c.Resolve(3, 0)
	assert.False(t, ok)
	assert.Equal(t, 0, c.ResolvePending(nil))

	assert.Equal(t, 1, c.ResolvePending(LayoutMap{3: 0x10000000}))
	assert.Empty(t, c.Pending())
	assert.Equal(t, uint64(0x10002000), c.Sections[3].Base)
	assert.Equal(t, 1, c.ResolvePlacements())
	assert.Equal(t, uint64(0x10002008), c.Data[0].Placement.Address)
}

func TestRunRedefinedSection(t *testing.T) {
	var b recs
	b.section(1, 0x1000, 0x100)
	b.section(1, 0x2000, 0x200)

	c := NewContext(FixedBase(0x400000))
	_, err := Run(context.Background(), b.stream(), c)
	require.NoError(t, err)

	require.Len(t, c.Sections, 1)
	assert.Equal(t, uint64(0x402000), c.Sections[1].Base)
	assert.Equal(t, uint32(0x200), c.Sections[1].Length)
}

func TestResultErr(t *testing.T) {
	var b recs
	b.end(codeview.S_END)
	b.section(0, 0, 0)

	res, err := Run(context.Background(), b.stream(), NewContext(nil))
	require.NoError(t, err)

	merr := res.Err()
	require.Error(t, merr)
	assert.ErrorIs(t, merr, ErrScopeImbalance)
	assert.ErrorIs(t, merr, ErrMalformedField)
	assert.Contains(t, merr.Error(), "2 errors occurred")
}

func TestDispatchersShareRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	var b recs
	b.section(1, 0x1000, 0x10)

	for range 2 {
		d, err := NewDispatcher(DefaultConfig(), WithRegisterer(reg))
		require.NoError(t, err)
		_, err = d.Run(context.Background(), b.stream(), NewContext(nil))
		require.NoError(t, err)
	}

	count, err := testutil.GatherAndCount(reg, "pdbapply_records_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	d, err := NewDispatcher(DefaultConfig(), WithRegisterer(reg))
	require.NoError(t, err)
	assert.Equal(t, float64(2), testutil.ToFloat64(d.metrics.records.WithLabelValues("S_SECTION", "applied")))
}

func TestNewDispatcherRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxScopeDepth = 0
	_, err := NewDispatcher(cfg)
	require.ErrorIs(t, err, ErrInvalidConfig)
}
