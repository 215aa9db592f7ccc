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

package core

import "github.com/slurm-sched/coresched/pkg/log"

var nrLog = log.Get("noderes")

// NodeState is a node's coarse allocation discipline.
type NodeState int

const (
	// NodeAvailable nodes may share with other shared-partition work.
	NodeAvailable NodeState = iota
	// NodeOneRow nodes host a single-row (non-shared) partition only.
	NodeOneRow
	// NodeReserved nodes are exclusively held by one job.
	NodeReserved
)

func (s NodeState) String() string {
	switch s {
	case NodeOneRow:
		return "one-row"
	case NodeReserved:
		return "reserved"
	default:
		return "available"
	}
}

// MaxShareForce is the high bit of a partition's configured max_share
// that marks the row count as forced rather than advisory.
const MaxShareForce = 1 << 15

// RowsFromMaxShare derives a partition's row count from its configured
// max_share, masking off the Force bit and enforcing a minimum of 1.
func RowsFromMaxShare(maxShare uint16) int {
	rows := int(maxShare &^ MaxShareForce)
	if rows < 1 {
		rows = 1
	}
	return rows
}

// EnergyInfo is advisory per-node power/energy telemetry, read by the
// iteration/closure driver (component G) and otherwise untouched by
// placement logic.
type EnergyInfo struct {
	JouleCounter uint64
	TimeUsec     uint64
	CurrentWatts float64
}

// PartRow is one partition's per-node view: a number of independent
// allocation slots ("rows") and the cores each row has charged, laid out
// row-major as alloc_cores[row*Sockets+socket].
type PartRow struct {
	PartName   string
	NumRows    int
	AllocCores []int
}

// RowSlice returns row r's per-socket allocation slice.
func (p *PartRow) RowSlice(row, sockets int) []int {
	return p.AllocCores[row*sockets : (row+1)*sockets]
}

// RowSum returns the total cores charged to row r.
func (p *PartRow) RowSum(row, sockets int) int {
	sum := 0
	for _, c := range p.RowSlice(row, sockets) {
		sum += c
	}
	return sum
}

// NodeRecord is one physical node's descriptor.
type NodeRecord struct {
	Name            string
	Sockets         int
	CoresPerSocket  int
	ThreadsPerCore  int
	RealMemory      uint64
	AllocatedMemory uint64
	Parts           map[string]*PartRow
	State           NodeState
	NewJobTime      int64
	Energy          *EnergyInfo
}

// CoreCount is the node's total row-chargeable core count (sockets *
// cores_per_socket -- the unit alloc_cores is denominated in, distinct
// from the full thread count).
func (n *NodeRecord) CoreCount() int {
	return n.Sockets * n.CoresPerSocket
}

// FreeMemory is the node's currently unallocated memory.
func (n *NodeRecord) FreeMemory() uint64 {
	if n.AllocatedMemory >= n.RealMemory {
		return 0
	}
	return n.RealMemory - n.AllocatedMemory
}

// EnsurePartRow returns the PartRow for part, creating it lazily (rows =
// RowsFromMaxShare(maxShare)) on first reference. If the row count grows
// on an existing row, alloc_cores is zero-extended in place; existing
// occupancy is preserved exactly because growth only appends past the
// chargeable tail of the row-major layout.
func (n *NodeRecord) EnsurePartRow(part string, maxShare uint16) *PartRow {
	if n.Parts == nil {
		n.Parts = make(map[string]*PartRow)
	}
	rows := RowsFromMaxShare(maxShare)
	row, ok := n.Parts[part]
	if !ok {
		row = &PartRow{PartName: part, NumRows: rows, AllocCores: make([]int, rows*n.Sockets)}
		n.Parts[part] = row
		return row
	}
	needed := rows * n.Sockets
	if needed > len(row.AllocCores) {
		grown := make([]int, needed)
		copy(grown, row.AllocCores)
		row.AllocCores = grown
	}
	if rows > row.NumRows {
		row.NumRows = rows
	}
	return row
}

// CountIdleCPUs reports the node's currently-idle core count, with the
// semantics depending on its coarse state.
func (n *NodeRecord) CountIdleCPUs() int {
	total := n.CoreCount()

	switch n.State {
	case NodeReserved:
		return 0

	case NodeOneRow:
		used := 0
		for _, p := range n.Parts {
			if p.NumRows != 1 {
				continue
			}
			used += p.RowSum(0, n.Sockets)
		}
		idle := total - used
		if idle < 0 {
			return 0
		}
		return idle

	default: // NodeAvailable
		minFootprint := -1
		for _, p := range n.Parts {
			for r := 0; r < p.NumRows; r++ {
				rowSum := p.RowSum(r, n.Sockets)
				if minFootprint == -1 || rowSum < minFootprint {
					minFootprint = rowSum
				}
			}
		}
		if minFootprint < 0 {
			minFootprint = 0
		}
		idle := total - minFootprint
		if idle < 0 {
			return 0
		}
		return idle
	}
}

// hashIndex computes the chained-bucket hash index for a node name: the
// sum of each byte times its 1-based position, modulo the table size.
// Preserved verbatim (not merely an optimisation) -- it is what resists
// collisions on naming patterns like "cluster[0001-1000]".
func hashIndex(name string, size int) int {
	if size <= 0 {
		return 0
	}
	sum := 0
	for i := 0; i < len(name); i++ {
		sum += int(name[i]) * (i + 1)
	}
	idx := sum % size
	if idx < 0 {
		idx += size
	}
	return idx
}

// NodeTable is a flat array of NodeRecord plus a chained-bucket hash
// table keyed by name.
type NodeTable struct {
	nodes   []*NodeRecord
	buckets [][]int
	size    int
}

// NewNodeTable builds a table over nodes, sized to the record count.
func NewNodeTable(nodes []*NodeRecord) *NodeTable {
	t := &NodeTable{nodes: nodes}
	t.rebuild()
	return t
}

func (t *NodeTable) rebuild() {
	t.size = len(t.nodes)
	if t.size < 1 {
		t.size = 1
	}
	t.buckets = make([][]int, t.size)
	for i, n := range t.nodes {
		idx := hashIndex(n.Name, t.size)
		t.buckets[idx] = append(t.buckets[idx], i)
	}
	nrLog.Debug("rebuilt node table: %d nodes, %d buckets", len(t.nodes), t.size)
}

// Lookup finds a node by name, returning its index into Nodes() as well.
func (t *NodeTable) Lookup(name string) (*NodeRecord, int, bool) {
	idx := hashIndex(name, t.size)
	for _, ni := range t.buckets[idx] {
		if t.nodes[ni].Name == name {
			return t.nodes[ni], ni, true
		}
	}
	return nil, -1, false
}

// AddNode appends a new record. If the array does not need to grow
// beyond the table's current capacity, the new entry is prepended to its
// bucket's chain in place; otherwise the whole table is rebuilt.
func (t *NodeTable) AddNode(n *NodeRecord) int {
	t.nodes = append(t.nodes, n)
	idx := len(t.nodes) - 1
	if len(t.nodes) > t.size {
		t.rebuild()
		return idx
	}
	b := hashIndex(n.Name, t.size)
	t.buckets[b] = append([]int{idx}, t.buckets[b]...)
	return idx
}

// Nodes returns the backing node array, in array order.
func (t *NodeTable) Nodes() []*NodeRecord { return t.nodes }

// Len returns the node count.
func (t *NodeTable) Len() int { return len(t.nodes) }
