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

package hostlist

// Hostset is a Hostlist that never contains duplicates and is always kept
// sorted: lexicographically on prefix, numerically on suffix where the
// prefix matches.
type Hostset struct {
	hl *Hostlist
}

// NewHostset creates an empty Hostset.
func NewHostset() *Hostset {
	return &Hostset{hl: New()}
}

// HostsetFromSpec builds a Hostset from a host-list specification string,
// as accepted by Create.
func HostsetFromSpec(spec string) *Hostset {
	s := &Hostset{hl: Create(spec)}
	s.hl.Uniq()
	return s
}

// Copy returns an independent copy of s.
func (s *Hostset) Copy() *Hostset {
	return &Hostset{hl: s.hl.Copy()}
}

// Count returns the number of hosts in s.
func (s *Hostset) Count() int { return s.hl.Count() }

// Insert adds the hosts named by spec, skipping any already present.
// Returns the number actually inserted.
func (s *Hostset) Insert(spec string) int {
	incoming := Create(spec)
	n := 0
	for _, e := range incoming.entries {
		name := e.name()
		if s.hl.Find(name) >= 0 {
			continue
		}
		s.hl.entries = append(s.hl.entries, e)
		n++
	}
	s.hl.Sort()
	return n
}

// Delete removes the hosts named by spec. Returns the number removed.
func (s *Hostset) Delete(spec string) int {
	return s.hl.Delete(spec)
}

// Within reports whether every host named by spec is already in s.
func (s *Hostset) Within(spec string) bool {
	targets := Create(spec)
	for _, e := range targets.entries {
		if s.hl.Find(e.name()) < 0 {
			return false
		}
	}
	return true
}

// Shift removes and returns the lowest-ordered host, or ("", false) if s
// is empty.
func (s *Hostset) Shift() (string, bool) {
	return s.hl.Shift()
}

// ShiftRange removes and returns the lowest-ordered bracketed group.
func (s *Hostset) ShiftRange() (string, bool) {
	return s.hl.ShiftRange()
}

// RangedString renders s in bracketed form.
func (s *Hostset) RangedString() string {
	return s.hl.RangedString()
}

// Iterator returns a non-destructive cursor over s.
func (s *Hostset) Iterator() *Iterator {
	return s.hl.Iterator()
}
