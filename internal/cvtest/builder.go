// Package cvtest builds raw CodeView symbol records for tests.
package cvtest

import "encoding/binary"

// Payload accumulates little-endian record fields.
type Payload struct {
	buf []byte
}

func (p *Payload) U8(v uint8) *Payload {
	p.buf = append(p.buf, v)
	return p
}

func (p *Payload) U16(v uint16) *Payload {
	p.buf = binary.LittleEndian.AppendUint16(p.buf, v)
	return p
}

func (p *Payload) U32(v uint32) *Payload {
	p.buf = binary.LittleEndian.AppendUint32(p.buf, v)
	return p
}

func (p *Payload) CString(s string) *Payload {
	p.buf = append(p.buf, s...)
	p.buf = append(p.buf, 0)
	return p
}

func (p *Payload) Bytes() []byte {
	return p.buf
}

// Record frames a payload as a symbol record padded to 4 bytes.
func Record(kind uint16, payload []byte) []byte {
	body := make([]byte, 0, len(payload)+8)
	body = binary.LittleEndian.AppendUint16(body, kind)
	body = append(body, payload...)
	for (len(body)+2)%4 != 0 {
		body = append(body, 0)
	}
	out := binary.LittleEndian.AppendUint16(nil, uint16(len(body)))
	return append(out, body...)
}

// Stream concatenates records.
func Stream(records ...[]byte) []byte {
	var out []byte
	for _, r := range records {
		out = append(out, r...)
	}
	return out
}
