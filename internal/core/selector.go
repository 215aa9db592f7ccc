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

var selLog = log.Get("selector")

// Mode is the caller's intent for a placement attempt.
type Mode int

const (
	// RunNow commits the placement as a JobAllocation on success.
	RunNow Mode = iota
	// TestOnly reports feasibility without side effects.
	TestOnly
	// WillRun is like TestOnly but intended for a what-if query against a
	// hypothetical future state; the core treats it identically to
	// TestOnly since it carries no additional state of its own.
	WillRun
)

// buildAvail computes avail_tasks for every candidate node against the
// job's own partition row, trying a free row first and falling back to
// the minimum-loaded row when Available/try_partial_idle allows it.
func buildAvail(nodes []*NodeRecord, candidates *bitmap.Bitmap, job *Job) ([]int, map[int]*PartRow) {
	avail := make([]int, candidates.Len())
	rows := make(map[int]*PartRow)

	for _, idx := range candidates.Indices() {
		node := nodes[idx]
		row := node.EnsurePartRow(job.Partition, job.PartitionMaxShare)
		rows[int(idx)] = row

		tryPartial := job.NodeReq != Available
		res := availTasks(node, row, job.NodeReq, tryPartial, job)
		if res.NumTasks == 0 && job.NodeReq == Available {
			res = availTasks(node, row, job.NodeReq, true, job)
		}
		avail[idx] = res.NumTasks
	}
	return avail, rows
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// consecSetsSearch is §4.D.3: collapse the filtered candidate bitmap into
// maximal runs, charge required nodes immediately, then repeatedly pick
// and fill the "best" run until the job's node and task requirements are
// met.
func consecSetsSearch(filtered *bitmap.Bitmap, avail []int, job *Job) (*bitmap.Bitmap, *Error) {
	n := filtered.Len()
	chosen := bitmap.New(n)
	pool := filtered.Clone()

	remNodes := int(job.MinNodes)
	if remNodes < 1 {
		remNodes = 1
	}
	maxNodes := int(job.MaxNodes)
	if maxNodes < 1 {
		maxNodes = int(n)
	}
	remTasks := int(job.NumProcs)
	if remTasks < 1 {
		remTasks = 1
	}

	anchors := make(map[uint]bool)
	if job.ReqNodeBitmap != nil {
		for _, idx := range filtered.Indices() {
			if !job.ReqNodeBitmap.Test(idx) {
				continue
			}
			chosen.Set(idx)
			pool.Clear(idx)
			anchors[idx] = true
			remNodes--
			maxNodes--
			remTasks -= avail[idx]
		}
	}

	if remNodes <= 0 && remTasks <= 0 {
		return chosen, nil
	}

	for {
		r := pickBestRun(pool, avail, anchors, remTasks, remNodes)
		if r == nil {
			return nil, newError(NodesBusy, "no run can satisfy the remaining requirement")
		}
		satisfied := fillRun(pool, *r, avail, chosen, anchors, &remNodes, &maxNodes, &remTasks)
		if job.Contiguous {
			if satisfied {
				return chosen, nil
			}
			return nil, newError(NodesBusy, "contiguous job could not be satisfied by a single run")
		}
		if satisfied {
			return chosen, nil
		}
		if maxNodes <= 0 {
			return nil, newError(NodesBusy, "max_nodes exhausted before requirement satisfied")
		}
	}
}

func pickBestRun(pool *bitmap.Bitmap, avail []int, anchors map[uint]bool, remTasks, remNodes int) *bitmap.Run {
	runs := pool.ConsecutiveRuns()
	if len(runs) == 0 {
		return nil
	}

	for i := range runs {
		r := runs[i]
		if (r.Start > 0 && anchors[r.Start-1]) || anchors[r.End+1] {
			return &runs[i]
		}
	}

	type scored struct {
		run        bitmap.Run
		totalCap   int
		sufficient bool
	}
	scoredRuns := make([]scored, len(runs))
	for i, r := range runs {
		total := 0
		for idx := r.Start; idx <= r.End; idx++ {
			total += avail[idx]
		}
		suff := total >= maxInt(remTasks, 0) && int(r.Len()) >= maxInt(remNodes, 0)
		scoredRuns[i] = scored{r, total, suff}
	}

	bestIdx := -1
	for i, s := range scoredRuns {
		if !s.sufficient {
			continue
		}
		if bestIdx == -1 || s.totalCap < scoredRuns[bestIdx].totalCap {
			bestIdx = i
		}
	}
	if bestIdx >= 0 {
		return &scoredRuns[bestIdx].run
	}

	for i, s := range scoredRuns {
		if bestIdx == -1 || s.totalCap > scoredRuns[bestIdx].totalCap {
			bestIdx = i
		}
	}
	if bestIdx == -1 {
		return nil
	}
	return &scoredRuns[bestIdx].run
}

// fillRun greedily adds nodes from run r into chosen, skipping zero-
// capacity nodes, expanding away from an adjacent committed anchor when
// there is one, otherwise filling in ascending order (stable and
// deterministic either way).
func fillRun(pool *bitmap.Bitmap, r bitmap.Run, avail []int, chosen *bitmap.Bitmap, anchors map[uint]bool, remNodes, maxNodes, remTasks *int) bool {
	order := fillOrder(r, anchors)
	for _, idx := range order {
		if *remNodes <= 0 && *remTasks <= 0 {
			break
		}
		if *maxNodes <= 0 {
			break
		}
		a := avail[idx]
		if a == 0 {
			pool.Clear(idx)
			continue
		}
		chosen.Set(idx)
		pool.Clear(idx)
		*remNodes--
		*maxNodes--
		*remTasks -= a
	}
	return *remNodes <= 0 && *remTasks <= 0
}

func fillOrder(r bitmap.Run, anchors map[uint]bool) []uint {
	anchorBefore := r.Start > 0 && anchors[r.Start-1]
	anchorAfter := anchors[r.End+1]

	order := make([]uint, 0, r.Len())
	if anchorAfter && !anchorBefore {
		for i := r.End; ; i-- {
			order = append(order, i)
			if i == r.Start {
				break
			}
		}
		return order
	}
	for i := r.Start; i <= r.End; i++ {
		order = append(order, i)
	}
	return order
}

// knapsackEscape is §4.D.4: when the plain consec-sets search fails,
// repeatedly clear low-capacity nodes (by increasing threshold) from the
// candidate bitmap and retry, stopping at the first success. A required
// node is never cleared; clearing one fails the job outright.
func knapsackEscape(filtered *bitmap.Bitmap, avail []int, job *Job) (*bitmap.Bitmap, *Error) {
	maxCap := 0
	for _, idx := range filtered.Indices() {
		if avail[idx] > maxCap {
			maxCap = avail[idx]
		}
	}

	for threshold := 0; threshold <= maxCap; threshold++ {
		trimmed := filtered.Clone()
		for _, idx := range filtered.Indices() {
			if avail[idx] > threshold {
				continue
			}
			if job.ReqNodeBitmap != nil && job.ReqNodeBitmap.Test(idx) {
				return nil, newError(NodesBusy, "required node %d has insufficient capacity", idx)
			}
			trimmed.Clear(idx)
		}
		if chosen, err := consecSetsSearch(trimmed, avail, job); err == nil {
			selLog.Debug("knapsack escape succeeded at threshold=%d", threshold)
			return chosen, nil
		}
	}
	return nil, newError(NodesBusy, "no placement found even after knapsack truncation")
}

// SelectNodes is the top-level entry point for §4.D: node-state
// verification, the consec-sets search, and its knapsack escape.
func SelectNodes(nodes []*NodeRecord, candidates *bitmap.Bitmap, job *Job, mode Mode) (*bitmap.Bitmap, map[int]*PartRow, *Error) {
	if job.NumProcs == 0 {
		return nil, nil, newError(Invalid, "job requests zero tasks")
	}

	avail, rows := buildAvail(nodes, candidates, job)

	filtered, verr := verifyNodeState(candidates, nodes, job, rows)
	if verr != nil {
		return nil, rows, verr
	}

	chosen, err := consecSetsSearch(filtered, avail, job)
	if err != nil {
		chosen, err = knapsackEscape(filtered, avail, job)
		if err != nil {
			return nil, rows, err
		}
	}
	return chosen, rows, nil
}
