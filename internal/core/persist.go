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

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/slurm-sched/coresched/pkg/bitmap"
	"github.com/slurm-sched/coresched/pkg/log"
)

var pLog = log.Get("persist")

// PersistHeader is the four fields Restore verifies against the running
// core before trusting anything else in the buffer.
type PersistHeader struct {
	PluginType    string
	PluginVersion uint32
	CRType        CRType
	DiskVersion   uint32
}

func (h PersistHeader) matches(other PersistHeader) bool {
	return h.PluginType == other.PluginType &&
		h.PluginVersion == other.PluginVersion &&
		h.CRType == other.CRType &&
		h.DiskVersion == other.DiskVersion
}

// NodeSummary is the minimal per-node record saved alongside jobs, used
// only to detect which live nodes existed in the previous run.
type NodeSummary struct {
	Name    string
	Sockets int
}

// --- small length-prefixed wire helpers, the codec SPEC_FULL.md calls
// for in place of a generic "SLURM Buf" type. ---

func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.BigEndian, uint32(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	if int64(n) > int64(r.Len()) {
		return "", fmt.Errorf("string length %d exceeds remaining %d", n, r.Len())
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func writeStringArray(buf *bytes.Buffer, arr []string) {
	binary.Write(buf, binary.BigEndian, uint32(len(arr)))
	for _, s := range arr {
		writeString(buf, s)
	}
}

func readStringArray(r *bytes.Reader) ([]string, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func writeIntArray(buf *bytes.Buffer, arr []int) {
	binary.Write(buf, binary.BigEndian, uint32(len(arr)))
	for _, v := range arr {
		binary.Write(buf, binary.BigEndian, int32(v))
	}
}

func readIntArray(r *bytes.Reader) ([]int, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	out := make([]int, n)
	for i := range out {
		var v int32
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			return nil, err
		}
		out[i] = int(v)
	}
	return out, nil
}

func writeUint64Array(buf *bytes.Buffer, arr []uint64) {
	binary.Write(buf, binary.BigEndian, uint32(len(arr)))
	for _, v := range arr {
		binary.Write(buf, binary.BigEndian, v)
	}
}

func readUint64Array(r *bytes.Reader) ([]uint64, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	out := make([]uint64, n)
	for i := range out {
		if err := binary.Read(r, binary.BigEndian, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func writeCoresMatrix(buf *bytes.Buffer, m [][]int) {
	binary.Write(buf, binary.BigEndian, uint32(len(m)))
	for _, row := range m {
		writeIntArray(buf, row)
	}
}

func readCoresMatrix(r *bytes.Reader) ([][]int, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	out := make([][]int, n)
	for i := range out {
		row, err := readIntArray(r)
		if err != nil {
			return nil, err
		}
		out[i] = row
	}
	return out, nil
}

func packJobAllocation(buf *bytes.Buffer, j *JobAllocation) {
	binary.Write(buf, binary.BigEndian, j.JobID)
	writeString(buf, j.Partition)
	binary.Write(buf, binary.BigEndian, uint8(j.State))
	binary.Write(buf, binary.BigEndian, j.NProcs)
	binary.Write(buf, binary.BigEndian, uint32(j.NHosts))
	binary.Write(buf, binary.BigEndian, uint8(j.NodeReq))
	writeStringArray(buf, j.Hosts)
	writeIntArray(buf, j.CPUs)
	writeIntArray(buf, j.AllocCPUs)
	writeIntArray(buf, j.NodeOffset)
	writeCoresMatrix(buf, j.AllocCores)
	writeUint64Array(buf, j.AllocMem)

	bitmapText, bitCount := "", uint32(0)
	if j.NodeBitmap != nil {
		bitmapText = j.NodeBitmap.String()
		bitCount = uint32(j.NodeBitmap.Count())
	}
	writeString(buf, bitmapText)
	binary.Write(buf, binary.BigEndian, bitCount)
}

// unpackJobAllocation reverses packJobAllocation. The node bitmap is not
// functionally reconstructed from its rendered text (the renderer has no
// inverse parser); NodeBitmap is left nil here and rebuilt from Hosts
// against the live node table during ReplayRestore.
func unpackJobAllocation(r *bytes.Reader) (*JobAllocation, error) {
	j := &JobAllocation{}
	if err := binary.Read(r, binary.BigEndian, &j.JobID); err != nil {
		return nil, err
	}
	var err error
	if j.Partition, err = readString(r); err != nil {
		return nil, err
	}
	var state, nodeReq uint8
	if err := binary.Read(r, binary.BigEndian, &state); err != nil {
		return nil, err
	}
	j.State = AllocState(state)
	if err := binary.Read(r, binary.BigEndian, &j.NProcs); err != nil {
		return nil, err
	}
	var nhosts uint32
	if err := binary.Read(r, binary.BigEndian, &nhosts); err != nil {
		return nil, err
	}
	j.NHosts = int(nhosts)
	if err := binary.Read(r, binary.BigEndian, &nodeReq); err != nil {
		return nil, err
	}
	j.NodeReq = NodeReq(nodeReq)

	if j.Hosts, err = readStringArray(r); err != nil {
		return nil, err
	}
	if j.CPUs, err = readIntArray(r); err != nil {
		return nil, err
	}
	if j.AllocCPUs, err = readIntArray(r); err != nil {
		return nil, err
	}
	if j.NodeOffset, err = readIntArray(r); err != nil {
		return nil, err
	}
	if j.AllocCores, err = readCoresMatrix(r); err != nil {
		return nil, err
	}
	if j.AllocMem, err = readUint64Array(r); err != nil {
		return nil, err
	}
	if _, err = readString(r); err != nil { // bitmap text, discarded
		return nil, err
	}
	var bitCount uint32
	if err := binary.Read(r, binary.BigEndian, &bitCount); err != nil {
		return nil, err
	}
	return j, nil
}

// Save is §4.F's write path: header, job count, each job, then a node
// count with name + socket count per node.
func Save(h PersistHeader, jobs []*JobAllocation, nodes []*NodeRecord) []byte {
	var buf bytes.Buffer
	writeString(&buf, h.PluginType)
	binary.Write(&buf, binary.BigEndian, h.PluginVersion)
	binary.Write(&buf, binary.BigEndian, uint16(h.CRType))
	binary.Write(&buf, binary.BigEndian, h.DiskVersion)

	binary.Write(&buf, binary.BigEndian, uint16(len(jobs)))
	for _, j := range jobs {
		packJobAllocation(&buf, j)
	}

	binary.Write(&buf, binary.BigEndian, uint32(len(nodes)))
	for _, n := range nodes {
		writeString(&buf, n.Name)
		binary.Write(&buf, binary.BigEndian, uint16(n.Sockets))
	}
	return buf.Bytes()
}

// Restore is §4.F's read path. A header mismatch against running is a
// deliberate no-op policy: the saved state is discarded (PersistVersionMismatch)
// and the core proceeds as if nothing had been saved. Any unpacking
// error rolls back to no partial state at all -- Restore returns nothing
// built rather than a partially populated job list.
func Restore(buf []byte, running PersistHeader, liveJobIDs map[uint32]bool) ([]*JobAllocation, []NodeSummary, *Error) {
	r := bytes.NewReader(buf)

	saved, err := readPersistHeader(r)
	if err != nil {
		return nil, nil, wrapError(PersistCorrupt, err, "persist: header")
	}
	if !saved.matches(running) {
		pLog.Warn("persisted state header mismatch (saved plugin=%s v%d cr=%d disk=%d, running plugin=%s v%d cr=%d disk=%d); discarding",
			saved.PluginType, saved.PluginVersion, saved.CRType, saved.DiskVersion,
			running.PluginType, running.PluginVersion, running.CRType, running.DiskVersion)
		return nil, nil, newError(PersistVersionMismatch, "persist: header mismatch")
	}

	var jobCount uint16
	if err := binary.Read(r, binary.BigEndian, &jobCount); err != nil {
		return nil, nil, wrapError(PersistCorrupt, err, "persist: job count")
	}
	jobs := make([]*JobAllocation, 0, jobCount)
	for i := 0; i < int(jobCount); i++ {
		j, err := unpackJobAllocation(r)
		if err != nil {
			return nil, nil, wrapError(PersistCorrupt, err, "persist: job %d", i)
		}
		if liveJobIDs != nil && !liveJobIDs[j.JobID] {
			pLog.Warn("dropping unresolved job %d from persisted state", j.JobID)
			continue
		}
		jobs = append(jobs, j)
	}

	var nodeCount uint32
	if err := binary.Read(r, binary.BigEndian, &nodeCount); err != nil {
		return nil, nil, wrapError(PersistCorrupt, err, "persist: node count")
	}
	prev := make([]NodeSummary, 0, nodeCount)
	for i := 0; i < int(nodeCount); i++ {
		name, err := readString(r)
		if err != nil {
			return nil, nil, wrapError(PersistCorrupt, err, "persist: node %d name", i)
		}
		var sockets uint16
		if err := binary.Read(r, binary.BigEndian, &sockets); err != nil {
			return nil, nil, wrapError(PersistCorrupt, err, "persist: node %d sockets", i)
		}
		prev = append(prev, NodeSummary{Name: name, Sockets: int(sockets)})
	}

	return jobs, prev, nil
}

func readPersistHeader(r *bytes.Reader) (PersistHeader, error) {
	var h PersistHeader
	var err error
	if h.PluginType, err = readString(r); err != nil {
		return h, err
	}
	if err := binary.Read(r, binary.BigEndian, &h.PluginVersion); err != nil {
		return h, err
	}
	var crType uint16
	if err := binary.Read(r, binary.BigEndian, &crType); err != nil {
		return h, err
	}
	h.CRType = CRType(crType)
	if err := binary.Read(r, binary.BigEndian, &h.DiskVersion); err != nil {
		return h, err
	}
	return h, nil
}

// ReplayRestore is the "on first node-init after restore" pass: match
// live nodes against the previous summary array with a one-ahead cursor
// (matched ordering makes this near-O(1) rather than O(n) per node),
// reset each matched node's allocation, then replay every JobAllocation's
// add_job_to_nodes(suspend=false) to rebuild the row tables. prev is
// never referenced again after this call -- Go's collector reclaims it
// once the caller drops its own reference.
func ReplayRestore(nodes []*NodeRecord, prev []NodeSummary, jobs []*JobAllocation, table *NodeTable) {
	cursor := 0
	if len(prev) > 0 {
		for _, n := range nodes {
			for i := 0; i < len(prev); i++ {
				idx := (cursor + i) % len(prev)
				if prev[idx].Name == n.Name {
					cursor = idx + 1
					n.AllocatedMemory = 0
					n.Parts = nil
					break
				}
			}
		}
	}

	for _, j := range jobs {
		if table != nil {
			bm := bitmap.New(uint(table.Len()))
			for _, h := range j.Hosts {
				if _, idx, ok := table.Lookup(h); ok {
					bm.Set(uint(idx))
				}
			}
			j.NodeBitmap = bm
		}
		j.State = AllocNeither
		AddJobToNodes(j, table, &Job{Partition: j.Partition, NodeReq: j.NodeReq, PartitionMaxShare: partRowsFor(j, table)}, false)
	}
}

// partRowsFor recovers a reasonable max_share for EnsurePartRow during
// replay: the row count the job's own NodeOffset values imply, since the
// original partition configuration is not itself persisted.
func partRowsFor(j *JobAllocation, table *NodeTable) uint16 {
	maxRow := 0
	if table != nil {
		for i, host := range j.Hosts {
			if i >= len(j.NodeOffset) {
				break
			}
			node, _, ok := table.Lookup(host)
			if !ok || node.Sockets <= 0 {
				continue
			}
			if row := j.NodeOffset[i] / node.Sockets; row > maxRow {
				maxRow = row
			}
		}
	}
	return uint16(maxRow + 1)
}
