// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package bitmap is a thin, domain-specific wrapper around
// github.com/bits-and-blooms/bitset, playing the role SLURM's bitstr_t plays
// in the original: a fixed-universe bitmap over the node array's index
// space, used for candidate node sets, job node_bitmap, and the per-port
// reservation table.
package bitmap

import (
	"strconv"
	"strings"

	"github.com/bits-and-blooms/bitset"
)

// Bitmap is a bitmap over a fixed universe of indices (typically node
// indices into the authoritative node array, in NodeRecord order).
type Bitmap struct {
	set *bitset.BitSet
	n   uint // universe size, for Len()/bounds
}

// New creates an all-clear Bitmap over n indices.
func New(n uint) *Bitmap {
	return &Bitmap{set: bitset.New(n), n: n}
}

// Clone returns an independent copy.
func (b *Bitmap) Clone() *Bitmap {
	return &Bitmap{set: b.set.Clone(), n: b.n}
}

// Len returns the size of the index universe.
func (b *Bitmap) Len() uint { return b.n }

// Set marks index i.
func (b *Bitmap) Set(i uint) { b.set.Set(i) }

// Clear unmarks index i.
func (b *Bitmap) Clear(i uint) { b.set.Clear(i) }

// Test reports whether index i is set.
func (b *Bitmap) Test(i uint) bool { return b.set.Test(i) }

// Count returns the number of set bits.
func (b *Bitmap) Count() uint { return b.set.Count() }

// None reports whether no bit is set.
func (b *Bitmap) None() bool { return b.set.None() }

// Or ORs other into b in place.
func (b *Bitmap) Or(other *Bitmap) { b.set.InPlaceUnion(other.set) }

// And ANDs other into b in place.
func (b *Bitmap) And(other *Bitmap) { b.set.InPlaceIntersection(other.set) }

// AndNot clears every bit of b that is set in other.
func (b *Bitmap) AndNot(other *Bitmap) { b.set.InPlaceDifference(other.set) }

// Overlap reports whether b and other share any set bit.
func (b *Bitmap) Overlap(other *Bitmap) bool {
	return b.set.IntersectionCardinality(other.set) > 0
}

// Indices returns the set bits as a sorted slice of indices.
func (b *Bitmap) Indices() []uint {
	out := make([]uint, 0, b.set.Count())
	for i, ok := b.set.NextSet(0); ok; i, ok = b.set.NextSet(i + 1) {
		out = append(out, i)
	}
	return out
}

// Run is a maximal range of consecutive set bits, [Start, End] inclusive.
type Run struct {
	Start, End uint
}

// Len returns the number of indices the run spans.
func (r Run) Len() uint { return r.End - r.Start + 1 }

// ConsecutiveRuns splits b into maximal runs of consecutive set bits,
// in ascending index order. This is the "consec-sets" decomposition the
// job placement selector builds its candidate runs from (§4.D.3).
func (b *Bitmap) ConsecutiveRuns() []Run {
	var runs []Run
	var open bool
	var start uint

	for i := uint(0); i < b.n; i++ {
		if b.Test(i) {
			if !open {
				open = true
				start = i
			}
		} else if open {
			runs = append(runs, Run{Start: start, End: i - 1})
			open = false
		}
	}
	if open {
		runs = append(runs, Run{Start: start, End: b.n - 1})
	}
	return runs
}

// String renders the set bit indices as a compact comma/range form, e.g.
// "0-2,5,7-9". This is the index-space analogue of the host-list ranged
// string; see pkg/hostlist for the name-based rendering used at the
// external-interface boundary.
func (b *Bitmap) String() string {
	runs := b.ConsecutiveRuns()
	parts := make([]string, 0, len(runs))
	for _, r := range runs {
		if r.Start == r.End {
			parts = append(parts, strconv.FormatUint(uint64(r.Start), 10))
		} else {
			parts = append(parts, strconv.FormatUint(uint64(r.Start), 10)+"-"+strconv.FormatUint(uint64(r.End), 10))
		}
	}
	return strings.Join(parts, ",")
}
