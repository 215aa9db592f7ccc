package hostlist

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateBracketed(t *testing.T) {
	h := Create("tux[0-2,5,7-9]")
	require.Equal(t, 6, h.Count())
	require.Equal(t, "tux0,tux1,tux2,tux5,tux7,tux8,tux9", h.DerangedString())
}

func TestCreatePreservesZeroPadding(t *testing.T) {
	h := Create("nid[0008-0010]")
	require.Equal(t, 3, h.Count())
	require.Equal(t, "nid0008,nid0009,nid0010", h.DerangedString())
}

func TestRangedStringCoalesces(t *testing.T) {
	h := Create("tux0,tux1,tux2,tux5,tux7,tux8,tux9")
	require.Equal(t, "tux[0-2,5,7-9]", h.RangedString())
}

func TestRangedStringSingleHostNotBracketed(t *testing.T) {
	h := Create("tux5")
	require.Equal(t, "tux5", h.RangedString())
}

func TestWidenedReadingSamePrefix(t *testing.T) {
	h := Create("tux0-5,tux12,tux20-25")
	require.Equal(t, 13, h.Count())
	require.Equal(t, "tux[0-5,12,20-25]", h.RangedString())
}

func TestWidenedReadingRepeatedPrefix(t *testing.T) {
	h := Create("tux0-tux5,tux12")
	require.Equal(t, 7, h.Count())
}

func TestBareNamesMixedWithNumeric(t *testing.T) {
	h := Create("headnode,tux0,tux1")
	require.Equal(t, 3, h.Count())
	require.Equal(t, "headnode,tux[0-1]", h.RangedString())
}

func TestPushShiftPopCount(t *testing.T) {
	h := New()
	require.True(t, h.IsEmpty())
	h.Push("tux[0-2]")
	require.Equal(t, 3, h.Count())

	name, ok := h.Shift()
	require.True(t, ok)
	require.Equal(t, "tux0", name)
	require.Equal(t, 2, h.Count())

	name, ok = h.Pop()
	require.True(t, ok)
	require.Equal(t, "tux2", name)
	require.Equal(t, 1, h.Count())

	_, ok = New().Shift()
	require.False(t, ok)
	_, ok = New().Pop()
	require.False(t, ok)
}

func TestFindAndDelete(t *testing.T) {
	h := Create("tux[0-5]")
	require.Equal(t, 3, h.Find("tux3"))
	require.Equal(t, -1, h.Find("tux9"))

	require.True(t, h.DeleteHost("tux3"))
	require.Equal(t, 5, h.Count())
	require.Equal(t, -1, h.Find("tux3"))

	n := h.Delete("tux0,tux5")
	require.Equal(t, 2, n)
	require.Equal(t, 3, h.Count())
}

func TestSortAndUniq(t *testing.T) {
	h := New()
	h.Push("tux9,tux10,tux2,tux2")
	h.Sort()
	require.Equal(t, "tux2,tux2,tux9,tux10", h.DerangedString())

	h.Uniq()
	require.Equal(t, "tux2,tux9,tux10", h.DerangedString())
}

func TestIteratorNextAndRemove(t *testing.T) {
	h := Create("tux[0-2]")
	it := h.Iterator()

	name, ok := it.Next()
	require.True(t, ok)
	require.Equal(t, "tux0", name)

	require.True(t, it.Remove())
	require.Equal(t, 2, h.Count())
	require.Equal(t, "tux1,tux2", h.DerangedString())

	name, ok = it.Next()
	require.True(t, ok)
	require.Equal(t, "tux1", name)

	name, ok = it.Next()
	require.True(t, ok)
	require.Equal(t, "tux2", name)

	_, ok = it.Next()
	require.False(t, ok)
}

func TestIteratorNextRange(t *testing.T) {
	h := Create("tux[0-2],wide7")
	it := h.Iterator()

	r, ok := it.NextRange()
	require.True(t, ok)
	require.Equal(t, "tux[0-2]", r)

	r, ok = it.NextRange()
	require.True(t, ok)
	require.Equal(t, "wide7", r)

	_, ok = it.NextRange()
	require.False(t, ok)
}

func TestShiftRangeAndPopRange(t *testing.T) {
	h := Create("tux[0-2],wide7,more[1-2]")

	first, ok := h.ShiftRange()
	require.True(t, ok)
	require.Equal(t, "tux[0-2]", first)

	last, ok := h.PopRange()
	require.True(t, ok)
	require.Equal(t, "more[1-2]", last)

	require.Equal(t, "wide7", h.RangedString())
}

func TestParseErrorsRecordLastError(t *testing.T) {
	h := Create("tux[0-2")
	require.Equal(t, 0, h.Count())
	require.Error(t, LastError())
}

func TestMixedWidthsInBracketIsError(t *testing.T) {
	h := Create("tux[01-2]")
	require.Equal(t, 0, h.Count())
	require.Error(t, LastError())
}

func TestHostsetDedupesAndSorts(t *testing.T) {
	s := HostsetFromSpec("tux5,tux1,tux1,tux3")
	require.Equal(t, 3, s.Count())
	require.Equal(t, "tux[1,3,5]", s.RangedString())
}

func TestHostsetInsertSkipsDuplicates(t *testing.T) {
	s := HostsetFromSpec("tux[0-2]")
	n := s.Insert("tux1,tux3")
	require.Equal(t, 1, n)
	require.Equal(t, 4, s.Count())
}

func TestHostsetWithin(t *testing.T) {
	s := HostsetFromSpec("tux[0-5]")
	require.True(t, s.Within("tux1,tux4"))
	require.False(t, s.Within("tux1,tux9"))
}
