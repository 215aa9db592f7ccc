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
	"sort"

	"github.com/slurm-sched/coresched/pkg/bitmap"
)

// availResult is the per-node outcome of avail_tasks (§4.D.1): how many
// tasks the node can support under the job's constraints, plus the row
// bookkeeping the row-selection pass (§4.D.5) reuses.
type availResult struct {
	NumTasks int
	RowIndex int // row the capacity estimate was drawn from, -1 if none
	FreeRow  int // first completely empty row, -1 if none
}

// scanRows finds the row that currently minimizes occupancy (sockets
// used, for socket-granularity accounting; cores used, otherwise), and
// the first completely empty row if any.
func scanRows(row *PartRow, sockets int, crType CRType) (rowIdx, freeRow int) {
	rowIdx, freeRow = -1, -1
	best := -1
	for r := 0; r < row.NumRows; r++ {
		slice := row.RowSlice(r, sockets)
		metric := 0
		if crType == CRSocket {
			for _, c := range slice {
				if c > 0 {
					metric++
				}
			}
		} else {
			metric = row.RowSum(r, sockets)
		}
		if metric == 0 && freeRow == -1 {
			freeRow = r
		}
		if rowIdx == -1 || metric < best {
			rowIdx, best = r, metric
		}
	}
	return rowIdx, freeRow
}

func rowsAllFull(row *PartRow, sockets, coresPerSocket int) bool {
	for r := 0; r < row.NumRows; r++ {
		if row.RowSum(r, sockets) < sockets*coresPerSocket {
			return false
		}
	}
	return true
}

// availTasks computes a candidate node's task capacity per §4.D.1.
func availTasks(node *NodeRecord, row *PartRow, nodeReq NodeReq, tryPartialIdle bool, job *Job) availResult {
	rowIdx, freeRow := scanRows(row, node.Sockets, job.CRType)
	if freeRow == -1 && rowsAllFull(row, node.Sockets, node.CoresPerSocket) {
		return availResult{NumTasks: 0, RowIndex: -1, FreeRow: -1}
	}

	var baseline []int
	usedRow := rowIdx

	switch nodeReq {
	case OneRow:
		baseline = make([]int, node.Sockets)
		for _, p := range node.Parts {
			if p.NumRows != 1 {
				continue
			}
			for s, c := range p.RowSlice(0, node.Sockets) {
				baseline[s] += c
			}
		}
		usedRow = 0

	case Reserved:
		baseline = make([]int, node.Sockets)
		usedRow = -1

	default: // Available
		if tryPartialIdle {
			baseline = append([]int(nil), row.RowSlice(rowIdx, node.Sockets)...)
			usedRow = rowIdx
		} else if freeRow >= 0 {
			baseline = append([]int(nil), row.RowSlice(freeRow, node.Sockets)...)
			usedRow = freeRow
		} else {
			baseline = append([]int(nil), row.RowSlice(rowIdx, node.Sockets)...)
			usedRow = rowIdx
		}
	}

	tasks := computeMaxTasks(node.Sockets, node.CoresPerSocket, node.ThreadsPerCore, baseline, job.MC, job.CPUsPerTask)
	return availResult{NumTasks: tasks, RowIndex: usedRow, FreeRow: freeRow}
}

// computeMaxTasks is the single combinatorial step the node-scan result
// feeds into: the maximum satisfiable task count under a job's MC
// constraints and cpus_per_task, given a baseline per-socket occupancy.
func computeMaxTasks(sockets, coresPerSocket, threadsPerCore int, allocCores []int, mc MCConstraints, cpusPerTask uint16) int {
	cpt := int(cpusPerTask)
	if cpt <= 0 {
		cpt = 1
	}

	minSockets := mc.MinSockets
	if minSockets <= 0 {
		minSockets = 1
	}
	maxSockets := mc.MaxSockets
	if maxSockets <= 0 || maxSockets > sockets {
		maxSockets = sockets
	}

	threads := threadsPerCore
	if threads < 1 {
		threads = 1
	}
	if mc.MaxThreads > 0 && mc.MaxThreads < threads {
		threads = mc.MaxThreads
	}
	if mc.MinThreads > 0 && threads < mc.MinThreads {
		return 0
	}

	type socketFree struct{ free int }
	var usable []socketFree
	for s := 0; s < sockets && s < len(allocCores); s++ {
		free := coresPerSocket - allocCores[s]
		if free < 0 {
			free = 0
		}
		if mc.MinCores > 0 && free < mc.MinCores {
			continue
		}
		if mc.MaxCores > 0 && free > mc.MaxCores {
			free = mc.MaxCores
		}
		usable = append(usable, socketFree{free})
	}
	if len(usable) < minSockets {
		return 0
	}
	sort.Slice(usable, func(i, j int) bool { return usable[i].free > usable[j].free })
	if len(usable) > maxSockets {
		usable = usable[:maxSockets]
	}

	totalCores := 0
	for _, sf := range usable {
		totalCores += sf.free
	}
	tasks := (totalCores * threads) / cpt

	if mc.TasksPerNode > 0 && tasks > mc.TasksPerNode {
		tasks = mc.TasksPerNode
	}
	if mc.TasksPerSocket > 0 {
		if cap := len(usable) * mc.TasksPerSocket; tasks > cap {
			tasks = cap
		}
	}
	if mc.TasksPerCore > 0 {
		if cap := totalCores * mc.TasksPerCore; tasks > cap {
			tasks = cap
		}
	}
	if tasks < 0 {
		tasks = 0
	}
	return tasks
}

// nodeHasAnyOccupancy reports whether any partition row on node has any
// charged core.
func nodeHasAnyOccupancy(node *NodeRecord) bool {
	for _, p := range node.Parts {
		for r := 0; r < p.NumRows; r++ {
			if p.RowSum(r, node.Sockets) > 0 {
				return true
			}
		}
	}
	return false
}

// nodeHostsSharedPartitionWork reports whether node currently has any
// occupancy in a multi-row (shared) partition.
func nodeHostsSharedPartitionWork(node *NodeRecord) bool {
	for _, p := range node.Parts {
		if p.NumRows <= 1 {
			continue
		}
		for r := 0; r < p.NumRows; r++ {
			if p.RowSum(r, node.Sockets) > 0 {
				return true
			}
		}
	}
	return false
}

// verifyNodeState filters candidates per §4.D.2: insufficient memory,
// coarse-state conflicts with the job's node_req, and sharing
// incompatibilities. Returns the filtered bitmap, or MemoryBusy if the
// filtering clears any node the job explicitly required.
func verifyNodeState(candidates *bitmap.Bitmap, nodes []*NodeRecord, job *Job, partRows map[int]*PartRow) (*bitmap.Bitmap, *Error) {
	filtered := candidates.Clone()

	for _, idx := range candidates.Indices() {
		node := nodes[idx]
		exclude := false

		if job.MaxMemoryPerJob > 0 && node.FreeMemory() < job.MaxMemoryPerJob {
			exclude = true
		}

		if !exclude {
			switch node.State {
			case NodeReserved:
				exclude = true
			case NodeOneRow:
				if job.NodeReq == Reserved || job.NodeReq == Available {
					exclude = true
				}
				if row, ok := partRows[idx]; ok && row.NumRows > 1 {
					exclude = true
				}
			case NodeAvailable:
				if job.NodeReq == Reserved && nodeHasAnyOccupancy(node) {
					exclude = true
				}
				if job.NodeReq == OneRow && nodeHostsSharedPartitionWork(node) {
					exclude = true
				}
			}
		}

		if exclude {
			filtered.Clear(idx)
		}
	}

	if job.ReqNodeBitmap != nil {
		required := job.ReqNodeBitmap.Clone()
		required.AndNot(filtered)
		if !required.None() {
			return filtered, newError(MemoryBusy, "required node cleared during state verification")
		}
	}

	return filtered, nil
}
