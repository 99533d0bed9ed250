package protostream

import (
	"io"
)

// UnknownField is one field of a known message whose number the decoder did
// not recognise. Raw holds the encoded value exactly as it arrived.
type UnknownField struct {
	Tag Tag
	Raw []byte
}

// UnknownFieldSet preserves unrecognised fields, in arrival order, so that a
// message decoded by an older schema can be written back without loss.
type UnknownFieldSet struct {
	fields []UnknownField
}

var _ Message = (*UnknownFieldSet)(nil)

// Add records a skipped field.
func (s *UnknownFieldSet) Add(tag Tag, raw []byte) {
	s.fields = append(s.fields, UnknownField{Tag: tag, Raw: raw})
}

// Capture skips the value of tag on r and records it.
func (s *UnknownFieldSet) Capture(r *Reader, tag Tag) {
	raw := r.SkipField(tag)
	if r.Err() == nil {
		s.Add(tag, raw)
	}
}

func (s *UnknownFieldSet) Len() int { return len(s.fields) }

// IsEmpty reports whether no unknown field was recorded. It is safe on a nil set.
func (s *UnknownFieldSet) IsEmpty() bool { return s == nil || len(s.fields) == 0 }

// Fields returns the recorded fields in arrival order.
func (s *UnknownFieldSet) Fields() []UnknownField { return s.fields }

// Get returns every recorded occurrence of a field number.
func (s *UnknownFieldSet) Get(number int32) []UnknownField {
	var out []UnknownField
	for _, f := range s.fields {
		if f.Tag.Number() == number {
			out = append(out, f)
		}
	}
	return out
}

// Size returns the encoded size of all recorded fields.
func (s *UnknownFieldSet) Size() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, f := range s.fields {
		n += SizeOfVarint(f.Tag) + len(f.Raw)
	}
	return n
}

// WriteFields re-emits every recorded field on w.
func (s *UnknownFieldSet) WriteFields(w *Writer) {
	if s == nil {
		return
	}
	for _, f := range s.fields {
		w.WriteVarint(uint64(f.Tag))
		w.WriteRaw(f.Raw)
	}
}

// ReadFields treats every field of the input as unknown.
func (s *UnknownFieldSet) ReadFields(r *Reader) {
	for tag := r.ReadTag(); tag != 0; tag = r.ReadTag() {
		s.Capture(r, tag)
	}
}

func (s *UnknownFieldSet) WriteTo(w io.Writer) (int64, error)  { return WriteMessageTo(w, s) }
func (s *UnknownFieldSet) ReadFrom(r io.Reader) (int64, error) { return ReadMessageFrom(r, s) }
func (s *UnknownFieldSet) MarshalBinary() ([]byte, error)      { return Marshal(s) }
func (s *UnknownFieldSet) UnmarshalBinary(data []byte) error   { return Unmarshal(data, s) }
