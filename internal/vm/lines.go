package vm

import "sort"

// LineRun covers the instruction indices up to and including Upto that
// came from the same source line.
type LineRun struct {
	Upto int `cbor:"1,keyasint"`
	Line int `cbor:"2,keyasint"`
}

// LineMap is a run-length encoded instruction-index -> source-line table.
// Runs are kept in ascending Upto order, which is what makes lookup a
// binary search.
type LineMap struct {
	Runs []LineRun `cbor:"1,keyasint"`
}

// Len returns the number of instructions covered.
func (m *LineMap) Len() int {
	if len(m.Runs) == 0 {
		return 0
	}
	return m.Runs[len(m.Runs)-1].Upto + 1
}

// Append records the line of the next instruction.
func (m *LineMap) Append(line int) {
	if n := len(m.Runs); n > 0 && m.Runs[n-1].Line == line {
		m.Runs[n-1].Upto++
		return
	}
	m.Runs = append(m.Runs, LineRun{Upto: m.Len(), Line: line})
}

// At returns the line recorded for the instruction at index, or 0 when
// index is outside the table.
func (m *LineMap) At(index int) int {
	if index < 0 {
		return 0
	}
	i := sort.Search(len(m.Runs), func(i int) bool { return m.Runs[i].Upto >= index })
	if i == len(m.Runs) {
		return 0
	}
	return m.Runs[i].Line
}
