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

// Iterator is a non-destructive cursor over a Hostlist (or Hostset). Next
// may be interleaved with Remove, which deletes the element Next last
// returned, safely during iteration.
type Iterator struct {
	h       *Hostlist
	pos     int // index of the next element Next will return
	lastRet int // index last returned by Next, -1 if none or already removed
}

// Iterator returns a fresh, reset iterator over h.
func (h *Hostlist) Iterator() *Iterator {
	return &Iterator{h: h, lastRet: -1}
}

// Reset returns the iterator to the beginning of the list.
func (it *Iterator) Reset() {
	it.pos = 0
	it.lastRet = -1
}

// Next returns the next hostname, or ("", false) at the end of the list.
func (it *Iterator) Next() (string, bool) {
	if it.pos >= len(it.h.entries) {
		it.lastRet = -1
		return "", false
	}
	e := it.h.entries[it.pos]
	it.lastRet = it.pos
	it.pos++
	return e.name(), true
}

// NextRange returns the next bracketed group, advancing past every host
// it covers, or ("", false) at the end of the list.
func (it *Iterator) NextRange() (string, bool) {
	if it.pos >= len(it.h.entries) {
		it.lastRet = -1
		return "", false
	}
	remaining := it.h.entries[it.pos:]
	end := firstGroupEnd(remaining)
	group := remaining[:end]
	rendered := (&Hostlist{entries: group}).RangedString()
	it.pos += end
	it.lastRet = -1 // NextRange covers a span; Remove is undefined after it
	return rendered, true
}

// Remove removes the element last returned by Next. Returns true on
// success, false if Next has not been called (or Remove already consumed
// its return).
func (it *Iterator) Remove() bool {
	if it.lastRet < 0 {
		return false
	}
	it.h.entries = append(it.h.entries[:it.lastRet], it.h.entries[it.lastRet+1:]...)
	it.pos = it.lastRet
	it.lastRet = -1
	return true
}
