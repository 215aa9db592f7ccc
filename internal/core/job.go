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

import "github.com/slurm-sched/coresched/pkg/bitmap"

// NodeReq is a job's sharing posture towards the nodes it lands on.
type NodeReq int

const (
	// Available nodes may be shared with other work.
	Available NodeReq = iota
	// OneRow forbids cohabitation with other shared-partition work.
	OneRow
	// Reserved demands exclusive use of the node.
	Reserved
)

func (r NodeReq) String() string {
	switch r {
	case Reserved:
		return "reserved"
	case OneRow:
		return "one-row"
	default:
		return "available"
	}
}

// Shared is a job's request for node sharing, independent of what the
// partition ultimately grants via max_share.
type Shared int

const (
	// SharedNo requires exclusive nodes.
	SharedNo Shared = iota
	// SharedYes always permits sharing.
	SharedYes
	// SharedUser lets the partition's default decide.
	SharedUser
)

// CRType is the consumable-resource accounting granularity.
type CRType int

const (
	// CRCpu accounts CPUs without socket/core structure.
	CRCpu CRType = iota
	// CRCore accounts whole cores.
	CRCore
	// CRSocket accounts whole sockets.
	CRSocket
)

// Distribution is a job step's task placement pattern (component E).
type Distribution int

const (
	// DistBlock fills each node to capacity before moving to the next.
	DistBlock Distribution = iota
	// DistCyclic assigns tasks round-robin across nodes.
	DistCyclic
	// DistBlockBlock blocks across nodes, blocks within a node.
	DistBlockBlock
	// DistBlockCyclic blocks across nodes, cyclic within a node.
	DistBlockCyclic
	// DistCyclicBlock cyclic across nodes, blocks within a node.
	DistCyclicBlock
	// DistCyclicCyclic cyclic across nodes, cyclic within a node.
	DistCyclicCyclic
	// DistPlane interleaves fixed-size blocks of tasks per node.
	DistPlane
	// DistArbitrary takes the input node list as the literal assignment.
	DistArbitrary
)

// MCConstraints are a job's multi-core binding requirements.
type MCConstraints struct {
	MinSockets, MaxSockets int
	MinCores, MaxCores     int
	MinThreads, MaxThreads int
	TasksPerNode           int
	TasksPerSocket         int
	TasksPerCore           int
	PlaneSize              int
}

// Job is the subset of a job's fields the core consumes.
type Job struct {
	ID              uint32
	Partition       string
	NumProcs        uint32
	MinNodes        uint32
	MaxNodes        uint32
	ReqNodes        uint32
	CPUsPerTask     uint16
	MaxMemoryPerJob uint64 // bytes, 0 = unlimited
	Shared          Shared
	Contiguous      bool
	ReqNodeBitmap   *bitmap.Bitmap
	MC              MCConstraints
	Dist            Distribution
	CRType          CRType

	// NodeReq is derived from Shared and the partition's sharing mode by
	// the caller before job_test is invoked; the selector only reads it.
	NodeReq NodeReq

	// PartitionMaxShare is the target partition's configured max_share,
	// looked up by the caller; it governs how many rows EnsurePartRow
	// creates for this job's partition on any node it lands on.
	PartitionMaxShare uint16
}

// AllocState is a bitset of what a JobAllocation currently holds.
type AllocState int

const (
	// AllocNeither holds neither memory nor CPU rows.
	AllocNeither AllocState = 0
	// AllocatedMem holds memory only (e.g. while suspended).
	AllocatedMem AllocState = 1 << iota
	// AllocatedCpus holds CPU/core rows only.
	AllocatedCpus
)

// Both is the fully-allocated state.
const Both = AllocatedMem | AllocatedCpus

// JobAllocation is the selector's record of one accepted job.
type JobAllocation struct {
	JobID     uint32
	Partition string
	State     AllocState
	NProcs    uint32
	NHosts    int
	NodeReq   NodeReq

	Hosts      []string
	CPUs       []int // per-host available-cpu count at placement time
	AllocCPUs  []int // per-host cpu count granted
	NodeOffset []int // per-host row index within that host's partition rows
	AllocCores [][]int
	AllocMem   []uint64

	NodeBitmap *bitmap.Bitmap
}

// footprint reports whether the allocation currently charges any
// resource against the node table.
func (a *JobAllocation) footprint() bool {
	return a.State != AllocNeither
}
