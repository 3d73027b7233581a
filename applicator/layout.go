package applicator

// Layout is the host's view of the image layout. SectionBase returns the
// base address that a section's RVA is relative to, or false while the
// layout of that section is not known yet.
type Layout interface {
	SectionBase(section uint16) (uint64, bool)
}

// FixedBase is a Layout where every section is relative to the same image base.
type FixedBase uint64

func (b FixedBase) SectionBase(section uint16) (uint64, bool) {
	if section == 0 {
		return 0, false
	}
	return uint64(b), true
}

// LayoutMap is a Layout backed by an explicit section to base mapping.
type LayoutMap map[uint16]uint64

func (m LayoutMap) SectionBase(section uint16) (uint64, bool) {
	base, ok := m[section]
	return base, ok
}
