package descriptor

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/oy3o/protostream"
)

// ReservedRange is an inclusive range of reserved numbers.
type ReservedRange struct {
	From, To int32
}

func (r ReservedRange) String() string {
	switch {
	case r.From == r.To:
		return strconv.Itoa(int(r.From))
	case r.To == protostream.MaxFieldNumber:
		return fmt.Sprintf("%d to max", r.From)
	}
	return fmt.Sprintf("%d to %d", r.From, r.To)
}

// Contains reports whether n is inside the range.
func (r ReservedRange) Contains(n int32) bool { return n >= r.From && n <= r.To }

// ReservedSet holds the reserved numbers and names of a message or enum.
// Ranges are kept as declared; Normalized merges them.
type ReservedSet struct {
	Ranges []ReservedRange
	Names  []string
}

// IsEmpty reports whether nothing is reserved.
func (s *ReservedSet) IsEmpty() bool { return len(s.Ranges) == 0 && len(s.Names) == 0 }

// AddRange reserves from..to. owner names the type, for errors. A range that
// overlaps one already reserved is a duplicate.
func (s *ReservedSet) AddRange(owner string, from, to int32) error {
	if from > to {
		return schemaErr("", ErrInvalidReserved, "reserved range %d to %d of %s has from > to", from, to, owner)
	}
	for _, r := range s.Ranges {
		if from <= r.To && r.From <= to {
			dup := max(from, r.From)
			return schemaErr("", ErrDuplicateReserved, "duplicate reserved number %d in %s", dup, owner)
		}
	}
	s.Ranges = append(s.Ranges, ReservedRange{From: from, To: to})
	return nil
}

// AddNumber reserves a single number.
func (s *ReservedSet) AddNumber(owner string, n int32) error {
	return s.AddRange(owner, n, n)
}

// AddName reserves a field or value name.
func (s *ReservedSet) AddName(owner, name string) error {
	if slices.Contains(s.Names, name) {
		return schemaErr("", ErrDuplicateReserved, "duplicate reserved name %q in %s", name, owner)
	}
	s.Names = append(s.Names, name)
	return nil
}

// ContainsNumber reports whether n is reserved.
func (s *ReservedSet) ContainsNumber(n int32) bool {
	for _, r := range s.Ranges {
		if r.Contains(n) {
			return true
		}
	}
	return false
}

// ContainsName reports whether name is reserved.
func (s *ReservedSet) ContainsName(name string) bool {
	return slices.Contains(s.Names, name)
}

// Normalized returns the reserved numbers as sorted ranges with adjacent and
// overlapping ranges merged.
func (s *ReservedSet) Normalized() []ReservedRange {
	if len(s.Ranges) == 0 {
		return nil
	}
	rs := slices.Clone(s.Ranges)
	slices.SortFunc(rs, func(a, b ReservedRange) int { return int(a.From) - int(b.From) })
	out := rs[:1]
	for _, r := range rs[1:] {
		last := &out[len(out)-1]
		if int64(r.From) <= int64(last.To)+1 {
			last.To = max(last.To, r.To)
			continue
		}
		out = append(out, r)
	}
	return out
}

// Statements renders the set as reserved statements in their narrowest
// form: one for numbers and one for names.
//
//	reserved 1 to 7, 9;
//	reserved "a","b";
func (s *ReservedSet) Statements() []string {
	var out []string
	if ranges := s.Normalized(); len(ranges) > 0 {
		parts := make([]string, len(ranges))
		for i, r := range ranges {
			parts[i] = r.String()
		}
		out = append(out, "reserved "+strings.Join(parts, ", ")+";")
	}
	if len(s.Names) > 0 {
		parts := make([]string, len(s.Names))
		for i, n := range s.Names {
			parts[i] = strconv.Quote(n)
		}
		out = append(out, "reserved "+strings.Join(parts, ",")+";")
	}
	return out
}
