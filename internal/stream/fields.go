package stream

// Fields reads consecutive fixed-layout fields and keeps the first error,
// so a structure can be decoded without checking every read.
type Fields struct {
	r   *Reader
	err error
}

// NewFields returns a Fields reading from data.
func NewFields(data []byte) *Fields {
	return &Fields{r: NewReader(data)}
}

// Err returns the first read error.
func (f *Fields) Err() error { return f.err }

// Offset returns the current read position.
func (f *Fields) Offset() int { return f.r.Offset() }

// Remaining returns the number of unread bytes.
func (f *Fields) Remaining() int { return f.r.Remaining() }

func (f *Fields) U8() uint8 {
	if f.err != nil {
		return 0
	}
	v, err := f.r.ReadU8()
	f.err = err
	return v
}

func (f *Fields) U16() uint16 {
	if f.err != nil {
		return 0
	}
	v, err := f.r.ReadU16()
	f.err = err
	return v
}

func (f *Fields) U32() uint32 {
	if f.err != nil {
		return 0
	}
	v, err := f.r.ReadU32()
	f.err = err
	return v
}

func (f *Fields) I32() int32 {
	if f.err != nil {
		return 0
	}
	v, err := f.r.ReadI32()
	f.err = err
	return v
}

func (f *Fields) CString() string {
	if f.err != nil {
		return ""
	}
	v, err := f.r.ReadCString()
	f.err = err
	return v
}

func (f *Fields) FixedString(n int) string {
	if f.err != nil {
		return ""
	}
	v, err := f.r.ReadFixedString(n)
	f.err = err
	return v
}

func (f *Fields) Skip(n int) {
	if f.err != nil {
		return
	}
	f.err = f.r.Skip(n)
}

func (f *Fields) Align(n int) {
	if f.err == nil {
		f.r.Align(n)
	}
}

// Rest returns a copy of the unread bytes.
func (f *Fields) Rest() []byte {
	return f.r.RemainingData()
}
