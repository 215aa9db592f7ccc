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

// Layout is the step layout builder's output (§4.E): how many tasks land
// on each host, which global task ids those are, and the reverse map.
type Layout struct {
	Tasks   []int   // per-host task count; sum is num_tasks
	Tids    [][]int // per-host list of global task ids, in assignment order
	HostIDs []int   // per-task host index: HostIDs[tids[i][j]] == i
}

// HostID returns the host index a global task id landed on.
func (l *Layout) HostID(taskID int) (int, bool) {
	if taskID < 0 || taskID >= len(l.HostIDs) {
		return 0, false
	}
	return l.HostIDs[taskID], true
}

// HostName resolves a global task id to a host name, given the same host
// list the layout was built from (Arbitrary's own host order for that
// distribution, hosts otherwise).
func (l *Layout) HostName(hosts []string, taskID int) (string, bool) {
	hid, ok := l.HostID(taskID)
	if !ok || hid >= len(hosts) {
		return "", false
	}
	return hosts[hid], true
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return a
	}
	return (a + b - 1) / b
}

// BuildLayout is §4.E: distributes num_tasks across hosts per dist. For
// every distribution except Arbitrary, hosts/cpus have one entry per
// candidate host and cpus[i] is that host's task capacity. For Arbitrary,
// hosts is instead the literal per-task assignment (len(hosts) ==
// num_tasks) and the returned Layout's host order is the first-seen order
// within that list, not the caller's input order.
//
// The two-level distributions (BlockBlock, BlockCyclic, CyclicBlock,
// CyclicCyclic) govern core/thread placement within a host in the
// original; here that inner dimension is carried entirely by
// distributeCores (rowcommit.go), so only the outer (across-host)
// dimension -- block or cyclic -- changes this function's behavior.
func BuildLayout(hosts []string, cpus []int, cpuGroupReps []int, numTasks int, dist Distribution, planeSize int) (*Layout, *Error) {
	if len(hosts) == 0 {
		return nil, newError(Invalid, "layout: no hosts")
	}
	if numTasks <= 0 {
		return nil, newError(Invalid, "layout: non-positive task count %d", numTasks)
	}

	if dist == DistArbitrary {
		return buildArbitraryLayout(hosts)
	}

	nhosts := len(hosts)
	tasks := make([]int, nhosts)
	hostIDs := make([]int, 0, numTasks)

	switch dist {
	case DistBlock, DistBlockBlock, DistBlockCyclic:
		ceiling := ceilDiv(numTasks, nhosts)
		remaining := numTasks
		for i := 0; i < nhosts && remaining > 0; i++ {
			cap := cpus[i]
			if cap > ceiling {
				cap = ceiling
			}
			if cap > remaining {
				cap = remaining
			}
			if cap < 0 {
				cap = 0
			}
			tasks[i] = cap
			remaining -= cap
			for j := 0; j < cap; j++ {
				hostIDs = append(hostIDs, i)
			}
		}
		if remaining > 0 {
			return nil, newError(Invalid, "layout: capacity insufficient for %d tasks (block)", numTasks)
		}

	case DistCyclic, DistCyclicBlock, DistCyclicCyclic:
		used := make([]int, nhosts)
		remaining := numTasks
		for remaining > 0 {
			progressed := false
			for i := 0; i < nhosts && remaining > 0; i++ {
				if used[i] >= cpus[i] {
					continue
				}
				used[i]++
				tasks[i]++
				hostIDs = append(hostIDs, i)
				remaining--
				progressed = true
			}
			if !progressed {
				return nil, newError(Invalid, "layout: capacity insufficient for %d tasks (cyclic)", numTasks)
			}
		}

	case DistPlane:
		size := planeSize
		if size < 1 {
			size = 1
		}
		used := make([]int, nhosts)
		remaining := numTasks
		for remaining > 0 {
			progressed := false
			for i := 0; i < nhosts && remaining > 0; i++ {
				n := size
				if used[i]+n > cpus[i] {
					n = cpus[i] - used[i]
				}
				if n <= 0 {
					continue
				}
				if n > remaining {
					n = remaining
				}
				for j := 0; j < n; j++ {
					hostIDs = append(hostIDs, i)
				}
				tasks[i] += n
				used[i] += n
				remaining -= n
				progressed = true
			}
			if !progressed {
				return nil, newError(Invalid, "layout: capacity insufficient for %d tasks (plane)", numTasks)
			}
		}

	default:
		return nil, newError(Invalid, "layout: unsupported distribution %d", dist)
	}

	return &Layout{Tasks: tasks, Tids: tidsFromHostIDs(hostIDs, nhosts), HostIDs: hostIDs}, nil
}

func buildArbitraryLayout(assignment []string) (*Layout, *Error) {
	order := make([]string, 0)
	index := make(map[string]int)
	hostIDs := make([]int, len(assignment))

	for i, h := range assignment {
		idx, ok := index[h]
		if !ok {
			idx = len(order)
			index[h] = idx
			order = append(order, h)
		}
		hostIDs[i] = idx
	}

	tasks := make([]int, len(order))
	for _, hid := range hostIDs {
		tasks[hid]++
	}

	return &Layout{Tasks: tasks, Tids: tidsFromHostIDs(hostIDs, len(order)), HostIDs: hostIDs}, nil
}

func tidsFromHostIDs(hostIDs []int, nhosts int) [][]int {
	tids := make([][]int, nhosts)
	for taskID, hid := range hostIDs {
		tids[hid] = append(tids[hid], taskID)
	}
	return tids
}
