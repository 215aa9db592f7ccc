package core

import (
	"testing"

	"github.com/slurm-sched/coresched/pkg/bitmap"
	"github.com/stretchr/testify/require"
)

func oneNodeFixture() (*NodeRecord, *NodeTable) {
	node := &NodeRecord{
		Name:           "node0",
		Sockets:        1,
		CoresPerSocket: 4,
		ThreadsPerCore: 1,
		RealMemory:     1 << 30,
		State:          NodeAvailable,
	}
	return node, NewNodeTable([]*NodeRecord{node})
}

func TestBuildAllocationAndFillTaskDistribution(t *testing.T) {
	node, _ := oneNodeFixture()
	job := &Job{ID: 1, Partition: "debug", NumProcs: 4, CPUsPerTask: 1, CRType: CRCpu}
	rows := map[int]*PartRow{0: node.EnsurePartRow(job.Partition, job.PartitionMaxShare)}

	chosen := bitmap.New(1)
	chosen.Set(0)
	avail := []int{4}

	alloc := BuildAllocation([]*NodeRecord{node}, rows, chosen, avail, job)
	require.Equal(t, uint32(1), alloc.JobID)
	require.Equal(t, "debug", alloc.Partition)
	require.Equal(t, []string{"node0"}, alloc.Hosts)
	require.Equal(t, 1, alloc.NHosts)
	require.Equal(t, AllocNeither, alloc.State)

	err := FillTaskDistribution(alloc, []*NodeRecord{node}, job)
	require.Nil(t, err)
	require.Equal(t, 4, alloc.AllocCPUs[0])
	require.Equal(t, []int{4}, alloc.AllocCores[0])
}

func TestAddJobToNodesIsIdempotent(t *testing.T) {
	node, table := oneNodeFixture()
	job := &Job{ID: 1, Partition: "debug", MaxMemoryPerJob: 1024}
	row := node.EnsurePartRow(job.Partition, job.PartitionMaxShare)

	alloc := &JobAllocation{
		Partition:  "debug",
		Hosts:      []string{"node0"},
		AllocCores: [][]int{{2}},
		AllocMem:   []uint64{1024},
		NodeOffset: []int{0},
	}

	require.Nil(t, AddJobToNodes(alloc, table, job, false))
	require.Equal(t, uint64(1024), node.AllocatedMemory)
	require.Equal(t, 2, row.RowSum(0, 1))
	require.Equal(t, Both, alloc.State)

	// A second commit must not double-charge.
	require.Nil(t, AddJobToNodes(alloc, table, job, false))
	require.Equal(t, uint64(1024), node.AllocatedMemory)
	require.Equal(t, 2, row.RowSum(0, 1))
}

func TestAddJobToNodesSuspendChargesMemoryOnly(t *testing.T) {
	node, table := oneNodeFixture()
	job := &Job{ID: 1, Partition: "debug", MaxMemoryPerJob: 1024}

	alloc := &JobAllocation{
		Partition: "debug",
		Hosts:     []string{"node0"},
		AllocMem:  []uint64{1024},
	}

	require.Nil(t, AddJobToNodes(alloc, table, job, true))
	require.Equal(t, uint64(1024), node.AllocatedMemory)
	require.Equal(t, AllocatedMem, alloc.State)
}

func TestRmJobFromNodesPartialThenFull(t *testing.T) {
	node, table := oneNodeFixture()
	job := &Job{ID: 1, Partition: "debug", MaxMemoryPerJob: 1024}
	row := node.EnsurePartRow(job.Partition, job.PartitionMaxShare)

	alloc := &JobAllocation{
		Partition:  "debug",
		Hosts:      []string{"node0"},
		AllocCores: [][]int{{2}},
		AllocMem:   []uint64{1024},
		NodeOffset: []int{0},
	}
	require.Nil(t, AddJobToNodes(alloc, table, job, false))

	require.Nil(t, RmJobFromNodes(alloc, table, job, false))
	require.Equal(t, 0, row.RowSum(0, 1), "cpu rows must be released")
	require.Equal(t, uint64(1024), node.AllocatedMemory, "memory must survive a partial release")
	require.Equal(t, AllocatedMem, alloc.State)

	require.Nil(t, RmJobFromNodes(alloc, table, job, true))
	require.Equal(t, uint64(0), node.AllocatedMemory)
	require.Equal(t, AllocNeither, alloc.State)
	require.Equal(t, NodeAvailable, node.State)
}

func TestRmJobFromNodesClampsUnderflow(t *testing.T) {
	node, table := oneNodeFixture()
	job := &Job{ID: 1, Partition: "debug"}
	node.EnsurePartRow(job.Partition, job.PartitionMaxShare)

	alloc := &JobAllocation{
		Partition:  "debug",
		Hosts:      []string{"node0"},
		AllocCores: [][]int{{9}}, // more than ever charged
		AllocMem:   []uint64{500},
		NodeOffset: []int{0},
		State:      Both,
	}

	require.Nil(t, RmJobFromNodes(alloc, table, job, true))
	require.Equal(t, uint64(0), node.AllocatedMemory)
}

func TestSelectRowPrefersFreeRow(t *testing.T) {
	node := &NodeRecord{Name: "n1", Sockets: 1, CoresPerSocket: 4}
	row := node.EnsurePartRow("debug", 3)
	row.AllocCores[0] = 4 // row 0 full

	idx := selectRow(node, row, CRCpu)
	require.Equal(t, 1, idx)
}

func TestDistributeCoresFillsSocketsInOrder(t *testing.T) {
	node := &NodeRecord{Sockets: 2, CoresPerSocket: 4, ThreadsPerCore: 1}
	cores := distributeCores(node, 6, 1)
	require.Equal(t, []int{4, 2}, cores)
}
