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
	"github.com/slurm-sched/coresched/pkg/bitmap"
	"github.com/slurm-sched/coresched/pkg/log"
)

var rcLog = log.Get("rowcommit")

// selectRow is §4.D.5's three-attempt row search: the free row if one
// exists (unchanged), else the minimum-loaded row if it is not full
// (bumped if full elsewhere), else that same row regardless (bumped if
// occupied) -- the caller already knows the node has nonzero avail_tasks,
// so a row with room always exists.
func selectRow(node *NodeRecord, row *PartRow, crType CRType) int {
	rowIdx, freeRow := scanRows(row, node.Sockets, crType)
	if freeRow >= 0 {
		return freeRow
	}
	if rowIdx >= 0 && row.RowSum(rowIdx, node.Sockets) < node.Sockets*node.CoresPerSocket {
		return rowIdx
	}
	if rowIdx >= 0 {
		return rowIdx
	}
	return 0
}

// distributeCores turns a granted task count into a per-socket core
// charge, filling sockets in array order up to their capacity.
func distributeCores(node *NodeRecord, tasks int, cpusPerTask uint16) []int {
	cpt := int(cpusPerTask)
	if cpt < 1 {
		cpt = 1
	}
	threads := node.ThreadsPerCore
	if threads < 1 {
		threads = 1
	}
	coresNeeded := (tasks*cpt + threads - 1) / threads

	out := make([]int, node.Sockets)
	remaining := coresNeeded
	for s := 0; s < node.Sockets && remaining > 0; s++ {
		cap := node.CoresPerSocket
		take := remaining
		if take > cap {
			take = cap
		}
		out[s] = take
		remaining -= take
	}
	return out
}

// BuildAllocation is §4.D.5: populates a JobAllocation's per-host shape
// (row offset, zeroed alloc_cpus/alloc_cores, alloc_memory) for a RunNow
// placement. It does not charge the node table -- AddJobToNodes does that.
func BuildAllocation(nodes []*NodeRecord, rows map[int]*PartRow, chosen *bitmap.Bitmap, avail []int, job *Job) *JobAllocation {
	idxs := chosen.Indices()
	alloc := &JobAllocation{
		JobID:      job.ID,
		Partition:  job.Partition,
		NProcs:     job.NumProcs,
		NHosts:     len(idxs),
		NodeReq:    job.NodeReq,
		NodeBitmap: chosen.Clone(),
		Hosts:      make([]string, len(idxs)),
		CPUs:       make([]int, len(idxs)),
		AllocCPUs:  make([]int, len(idxs)),
		NodeOffset: make([]int, len(idxs)),
		AllocCores: make([][]int, len(idxs)),
		AllocMem:   make([]uint64, len(idxs)),
	}

	for i, idx := range idxs {
		node := nodes[idx]
		row := rows[int(idx)]
		if row == nil {
			row = node.EnsurePartRow(job.Partition, job.PartitionMaxShare)
		}
		rowIdx := selectRow(node, row, job.CRType)

		alloc.Hosts[i] = node.Name
		alloc.CPUs[i] = avail[idx]
		alloc.NodeOffset[i] = rowIdx * node.Sockets
		alloc.AllocCores[i] = make([]int, node.Sockets)
		alloc.AllocMem[i] = job.MaxMemoryPerJob
	}
	return alloc
}

// FillTaskDistribution runs the step layout builder (§4.E) over the
// allocation's hosts using their placement-time capacity as each node's
// cpu budget, populating alloc_cpus and alloc_cores. This is the "the
// task distribution pass then fills alloc_cpus and alloc_cores" step
// D.5 hands off to component E.
func FillTaskDistribution(alloc *JobAllocation, nodes []*NodeRecord, job *Job) *Error {
	layout, err := BuildLayout(alloc.Hosts, alloc.CPUs, nil, int(job.NumProcs), job.Dist, job.MC.PlaneSize)
	if err != nil {
		return err
	}
	for i, host := range alloc.Hosts {
		alloc.AllocCPUs[i] = layout.Tasks[i]
		for _, node := range nodes {
			if node.Name == host {
				alloc.AllocCores[i] = distributeCores(node, layout.Tasks[i], job.CPUsPerTask)
				break
			}
		}
	}
	return nil
}

// AddJobToNodes is §4.D.6: idempotent allocation commit. suspend=true
// charges memory only; a plain call charges both memory and cpu rows,
// each gated by its own state bit so a repeat call is a no-op.
func AddJobToNodes(alloc *JobAllocation, table *NodeTable, job *Job, suspend bool) *Error {
	if suspend {
		if alloc.State&AllocatedMem != 0 {
			return nil
		}
		for i, host := range alloc.Hosts {
			node, _, ok := table.Lookup(host)
			if !ok {
				continue
			}
			node.AllocatedMemory += alloc.AllocMem[i]
		}
		alloc.State |= AllocatedMem
		return nil
	}

	if alloc.State&Both == Both {
		return nil
	}
	for i, host := range alloc.Hosts {
		node, _, ok := table.Lookup(host)
		if !ok {
			continue
		}
		if alloc.State&AllocatedMem == 0 {
			node.AllocatedMemory += alloc.AllocMem[i]
		}
		if alloc.State&AllocatedCpus == 0 {
			row := node.EnsurePartRow(job.Partition, job.PartitionMaxShare)
			slice := row.RowSlice(alloc.NodeOffset[i]/node.Sockets, node.Sockets)
			for s, c := range alloc.AllocCores[i] {
				slice[s] += c
			}
			switch job.NodeReq {
			case Reserved:
				node.State = NodeReserved
			case OneRow:
				if node.State == NodeAvailable {
					node.State = NodeOneRow
				}
			}
		}
	}
	alloc.State = Both
	return nil
}

// RmJobFromNodes is §4.D.6's inverse. removeAll tears down memory and
// cpu rows together (job_fini); otherwise only the cpu rows are released,
// mirroring AddJobToNodes(suspend=true)'s memory-only commit so a
// suspend/resume cycle is exact. Underflow is logged and clamped to zero,
// never propagated as a failure.
func RmJobFromNodes(alloc *JobAllocation, table *NodeTable, job *Job, removeAll bool) *Error {
	if alloc.State == AllocNeither {
		return nil
	}

	for i, host := range alloc.Hosts {
		node, _, ok := table.Lookup(host)
		if !ok {
			continue
		}

		if removeAll && alloc.State&AllocatedMem != 0 {
			if node.AllocatedMemory < alloc.AllocMem[i] {
				rcLog.Error("%s", newError(InternalUnderflow, "memory underflow removing job %d from %s", alloc.JobID, host))
				node.AllocatedMemory = 0
			} else {
				node.AllocatedMemory -= alloc.AllocMem[i]
			}
		}

		if alloc.State&AllocatedCpus != 0 {
			if row, ok := node.Parts[job.Partition]; ok {
				rowIdx := alloc.NodeOffset[i] / node.Sockets
				if rowIdx < row.NumRows {
					slice := row.RowSlice(rowIdx, node.Sockets)
					for s, c := range alloc.AllocCores[i] {
						if slice[s] < c {
							rcLog.Error("%s", newError(InternalUnderflow, "core underflow removing job %d from %s socket %d", alloc.JobID, host, s))
							slice[s] = 0
						} else {
							slice[s] -= c
						}
					}
				}
			}
		}

		if !nodeHasAnyOccupancy(node) {
			node.State = NodeAvailable
		}
	}

	if removeAll {
		alloc.State = AllocNeither
	} else {
		alloc.State &^= AllocatedCpus
	}
	return nil
}
