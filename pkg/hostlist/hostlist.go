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

// Package hostlist manipulates ordered host-name multisets, the way a
// "prefixNNNN" cluster naming convention gets compressed to and from
// bracketed range notation: "tux[0-5,12,20-25]".
package hostlist

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
)

var (
	errMu   sync.Mutex
	lastErr error
)

// LastError returns the most recent parse error recorded by Create or
// Push, or nil if none has occurred; reading it does not clear it. There is
// no per-goroutine thread-local in Go, so this single package-level slot
// stands in for the original's per-thread error code.
func LastError() error {
	errMu.Lock()
	defer errMu.Unlock()
	return lastErr
}

func setLastError(err error) {
	errMu.Lock()
	lastErr = err
	errMu.Unlock()
}

// entry is one element of a Hostlist: either a bare name (hasNum == false)
// or a name with a numeric suffix, the suffix kept as its original
// zero-padded text so re-rendering preserves width.
type entry struct {
	prefix string
	hasNum bool
	num    int64
	numStr string
}

func (e entry) name() string {
	if !e.hasNum {
		return e.prefix
	}
	return e.prefix + e.numStr
}

// Hostlist is an ordered multiset of host names.
type Hostlist struct {
	entries []entry
}

// New returns an empty Hostlist.
func New() *Hostlist {
	return &Hostlist{}
}

// Create parses a string specification into a Hostlist. The spec may be a
// comma/whitespace separated list of bare names or bracketed forms
// "prefix[r1,r2,...]" where each ri is "a" or "a-b" with zero-padded
// decimal widths preserved. A widened reading also accepts
// "prefix<a>-<b>,prefix<c>" forms outside brackets.
//
// On a parse error, Create returns an empty Hostlist and records the
// error; retrieve it with LastError.
func Create(spec string) *Hostlist {
	h := New()
	if spec == "" {
		return h
	}
	if _, err := h.push(spec); err != nil {
		setLastError(err)
		return New()
	}
	return h
}

// Copy returns an independent copy of h.
func (h *Hostlist) Copy() *Hostlist {
	c := &Hostlist{entries: make([]entry, len(h.entries))}
	copy(c.entries, h.entries)
	return c
}

// Count returns the number of hosts in h.
func (h *Hostlist) Count() int { return len(h.entries) }

// IsEmpty reports whether h has no hosts.
func (h *Hostlist) IsEmpty() bool { return len(h.entries) == 0 }

// Push parses spec and appends the resulting hosts to h, returning the
// number of hosts appended (0 on a parse failure, which also records the
// error retrievable via LastError).
func (h *Hostlist) Push(spec string) int {
	n, err := h.push(spec)
	if err != nil {
		setLastError(err)
		return 0
	}
	return n
}

func (h *Hostlist) push(spec string) (int, error) {
	var added []entry
	for _, tok := range splitTopLevel(spec) {
		es, err := parseToken(tok)
		if err != nil {
			return 0, err
		}
		added = append(added, es...)
	}
	h.entries = append(h.entries, added...)
	return len(added), nil
}

// PushHost appends a single bare host name, without range parsing. It is
// cheaper than Push for a single known-good hostname and never fails.
func (h *Hostlist) PushHost(host string) bool {
	h.entries = append(h.entries, parseBareHost(host))
	return true
}

// PushList appends a copy of other's entries onto h.
func (h *Hostlist) PushList(other *Hostlist) bool {
	if other == nil {
		return false
	}
	h.entries = append(h.entries, other.entries...)
	return true
}

// Pop removes and returns the last host, or ("", false) if h is empty.
func (h *Hostlist) Pop() (string, bool) {
	if len(h.entries) == 0 {
		return "", false
	}
	last := h.entries[len(h.entries)-1]
	h.entries = h.entries[:len(h.entries)-1]
	return last.name(), true
}

// Shift removes and returns the first host, or ("", false) if h is empty.
func (h *Hostlist) Shift() (string, bool) {
	if len(h.entries) == 0 {
		return "", false
	}
	first := h.entries[0]
	h.entries = h.entries[1:]
	return first.name(), true
}

// PopRange pops the maximal bracketed group at the tail of h (the last
// token RangedString would produce) and returns its rendering.
func (h *Hostlist) PopRange() (string, bool) {
	if len(h.entries) == 0 {
		return "", false
	}
	start := lastGroupStart(h.entries)
	group := h.entries[start:]
	rendered := (&Hostlist{entries: group}).RangedString()
	h.entries = h.entries[:start]
	return rendered, true
}

// ShiftRange shifts the maximal bracketed group at the head of h off and
// returns its rendering.
func (h *Hostlist) ShiftRange() (string, bool) {
	if len(h.entries) == 0 {
		return "", false
	}
	end := firstGroupEnd(h.entries)
	group := h.entries[:end]
	rendered := (&Hostlist{entries: group}).RangedString()
	h.entries = h.entries[end:]
	return rendered, true
}

// Find returns the index of the first host named hostname, or -1.
func (h *Hostlist) Find(hostname string) int {
	for i, e := range h.entries {
		if e.name() == hostname {
			return i
		}
	}
	return -1
}

// DeleteHost removes the first host named hostname. Returns true if one
// was removed.
func (h *Hostlist) DeleteHost(hostname string) bool {
	i := h.Find(hostname)
	if i < 0 {
		return false
	}
	h.entries = append(h.entries[:i], h.entries[i+1:]...)
	return true
}

// DeleteNth removes the host at position n. Returns true on success.
func (h *Hostlist) DeleteNth(n int) bool {
	if n < 0 || n >= len(h.entries) {
		return false
	}
	h.entries = append(h.entries[:n], h.entries[n+1:]...)
	return true
}

// Delete removes every host named by spec from h, returning the count
// successfully removed.
func (h *Hostlist) Delete(spec string) int {
	targets := Create(spec)
	if targets == nil {
		return 0
	}
	n := 0
	for _, t := range targets.entries {
		if h.DeleteHost(t.name()) {
			n++
		}
	}
	return n
}

// Sort orders h lexicographically on prefix, numerically on suffix.
func (h *Hostlist) Sort() {
	sort.SliceStable(h.entries, func(i, j int) bool {
		return less(h.entries[i], h.entries[j])
	})
}

// Uniq sorts h and removes adjacent duplicate hosts.
func (h *Hostlist) Uniq() {
	h.Sort()
	out := h.entries[:0]
	for i, e := range h.entries {
		if i == 0 || e != h.entries[i-1] {
			out = append(out, e)
		}
	}
	h.entries = out
}

func less(a, b entry) bool {
	if a.prefix != b.prefix {
		return a.prefix < b.prefix
	}
	if a.hasNum != b.hasNum {
		return !a.hasNum
	}
	if !a.hasNum {
		return false
	}
	if a.num != b.num {
		return a.num < b.num
	}
	return a.numStr < b.numStr
}

// NRanges returns the number of ranges RangedString would render: each
// single suffix or a-b range inside brackets, and each unbracketed host,
// counts once.
func (h *Hostlist) NRanges() int {
	if len(h.entries) == 0 {
		return 0
	}
	return len(strings.Split(h.RangedString(), ","))
}

// RangedString renders h back to bracketed form, coalescing contiguous
// equal-prefix, equal-width numeric suffixes into ranges. Rendering is
// deterministic for a sorted list.
func (h *Hostlist) RangedString() string {
	var tokens []string
	entries := h.entries
	i := 0
	for i < len(entries) {
		e := entries[i]
		if !e.hasNum {
			tokens = append(tokens, e.prefix)
			i++
			continue
		}
		prefix := e.prefix
		var items []string
		j := i
		for j < len(entries) && entries[j].hasNum && entries[j].prefix == prefix {
			lo, loStr := entries[j].num, entries[j].numStr
			width := len(loStr)
			hi, hiStr := lo, loStr
			k := j + 1
			for k < len(entries) && entries[k].hasNum && entries[k].prefix == prefix &&
				entries[k].num == hi+1 && len(entries[k].numStr) == width {
				hi, hiStr = entries[k].num, entries[k].numStr
				k++
			}
			if lo == hi {
				items = append(items, loStr)
			} else {
				items = append(items, loStr+"-"+hiStr)
			}
			j = k
		}
		if len(items) == 1 && !strings.Contains(items[0], "-") {
			tokens = append(tokens, prefix+items[0])
		} else {
			tokens = append(tokens, prefix+"["+strings.Join(items, ",")+"]")
		}
		i = j
	}
	return strings.Join(tokens, ",")
}

// DerangedString renders every hostname explicitly, never bracketed.
func (h *Hostlist) DerangedString() string {
	names := make([]string, len(h.entries))
	for i, e := range h.entries {
		names[i] = e.name()
	}
	return strings.Join(names, ",")
}

// lastGroupStart finds the start index of the bracket group RangedString
// would emit last.
func lastGroupStart(entries []entry) int {
	if len(entries) == 0 {
		return 0
	}
	last := entries[len(entries)-1]
	i := len(entries) - 1
	for i > 0 {
		prev := entries[i-1]
		if !last.hasNum {
			if prev.prefix == last.prefix && !prev.hasNum {
				i--
				continue
			}
			break
		}
		if prev.hasNum && prev.prefix == last.prefix {
			i--
			continue
		}
		break
	}
	return i
}

// firstGroupEnd finds the end index (exclusive) of the bracket group
// RangedString would emit first.
func firstGroupEnd(entries []entry) int {
	if len(entries) == 0 {
		return 0
	}
	first := entries[0]
	i := 1
	for i < len(entries) {
		cur := entries[i]
		if first.hasNum && cur.hasNum && cur.prefix == first.prefix {
			i++
			continue
		}
		if !first.hasNum && !cur.hasNum && cur.prefix == first.prefix {
			i++
			continue
		}
		break
	}
	return i
}

// --- parsing ---

var (
	reRange = regexp.MustCompile(`^(.*?)([0-9]+)-(.*?)([0-9]+)$`)
	reBare  = regexp.MustCompile(`^(.*?)([0-9]+)$`)
)

func splitTopLevel(s string) []string {
	var tokens []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		case ',', ' ', '\t', '\n':
			if depth == 0 {
				if i > start {
					tokens = append(tokens, s[start:i])
				}
				start = i + 1
			}
		}
	}
	if start < len(s) {
		tokens = append(tokens, s[start:])
	}
	return tokens
}

func parseToken(tok string) ([]entry, error) {
	if tok == "" {
		return nil, nil
	}
	if idx := strings.IndexByte(tok, '['); idx >= 0 {
		return parseBracketed(tok, idx)
	}
	return parseWidened(tok)
}

func parseBracketed(tok string, openIdx int) ([]entry, error) {
	close := strings.LastIndexByte(tok, ']')
	if close == -1 || close < openIdx {
		return nil, fmt.Errorf("hostlist: unbalanced brackets in %q", tok)
	}
	prefix := tok[:openIdx]
	rangePart := tok[openIdx+1 : close]
	if trailing := tok[close+1:]; trailing != "" {
		return nil, fmt.Errorf("hostlist: unexpected text after bracket group in %q", tok)
	}

	var entries []entry
	width := -1
	for _, item := range strings.Split(rangePart, ",") {
		if item == "" {
			return nil, fmt.Errorf("hostlist: empty range item in %q", tok)
		}
		lo, hi, loStr, hiStr, err := parseRangeItem(item)
		if err != nil {
			return nil, err
		}
		if len(loStr) != len(hiStr) {
			return nil, fmt.Errorf("hostlist: mixed suffix widths in range item %q", item)
		}
		if width == -1 {
			width = len(loStr)
		} else if width != len(loStr) {
			return nil, fmt.Errorf("hostlist: mixed prefix widths within bracket group %q", tok)
		}
		for v := lo; v <= hi; v++ {
			entries = append(entries, numEntry(prefix, v, width))
		}
	}
	return entries, nil
}

func parseRangeItem(item string) (lo, hi int64, loStr, hiStr string, err error) {
	if dash := strings.IndexByte(item, '-'); dash >= 0 {
		loStr, hiStr = item[:dash], item[dash+1:]
		if !allDigits(loStr) || !allDigits(hiStr) {
			return 0, 0, "", "", fmt.Errorf("hostlist: malformed range %q", item)
		}
		lo, _ = strconv.ParseInt(loStr, 10, 64)
		hi, _ = strconv.ParseInt(hiStr, 10, 64)
		if lo > hi {
			return 0, 0, "", "", fmt.Errorf("hostlist: descending range %q", item)
		}
		return lo, hi, loStr, hiStr, nil
	}
	if !allDigits(item) {
		return 0, 0, "", "", fmt.Errorf("hostlist: malformed range item %q", item)
	}
	lo, _ = strconv.ParseInt(item, 10, 64)
	return lo, lo, item, item, nil
}

func parseWidened(tok string) ([]entry, error) {
	if m := reRange.FindStringSubmatch(tok); m != nil {
		prefix1, loStr, prefix2, hiStr := m[1], m[2], m[3], m[4]
		if prefix2 != "" && prefix2 != prefix1 {
			return nil, fmt.Errorf("hostlist: mismatched prefix in range %q", tok)
		}
		lo, _ := strconv.ParseInt(loStr, 10, 64)
		hi, _ := strconv.ParseInt(hiStr, 10, 64)
		if lo > hi {
			return nil, fmt.Errorf("hostlist: descending range %q", tok)
		}
		width := len(loStr)
		var entries []entry
		for v := lo; v <= hi; v++ {
			entries = append(entries, numEntry(prefix1, v, width))
		}
		return entries, nil
	}
	if m := reBare.FindStringSubmatch(tok); m != nil {
		return []entry{parseBareHost(tok)}, nil
	}
	return []entry{{prefix: tok, hasNum: false}}, nil
}

func parseBareHost(name string) entry {
	if m := reBare.FindStringSubmatch(name); m != nil {
		num, _ := strconv.ParseInt(m[2], 10, 64)
		return entry{prefix: m[1], hasNum: true, num: num, numStr: m[2]}
	}
	return entry{prefix: name, hasNum: false}
}

func numEntry(prefix string, v int64, width int) entry {
	return entry{prefix: prefix, hasNum: true, num: v, numStr: fmt.Sprintf("%0*d", width, v)}
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
