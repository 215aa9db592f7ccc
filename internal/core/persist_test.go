package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

func sampleAlloc(jobID uint32) *JobAllocation {
	return &JobAllocation{
		JobID:      jobID,
		Partition:  "debug",
		State:      Both,
		NProcs:     4,
		NHosts:     1,
		NodeReq:    Available,
		Hosts:      []string{"node0"},
		CPUs:       []int{4},
		AllocCPUs:  []int{4},
		NodeOffset: []int{0},
		AllocCores: [][]int{{4}},
		AllocMem:   []uint64{1024},
	}
}

func TestSaveRestoreRoundTrip(t *testing.T) {
	h := PersistHeader{PluginType: "coresched", PluginVersion: 1, CRType: CRCpu, DiskVersion: 1}
	jobs := []*JobAllocation{sampleAlloc(10), sampleAlloc(11)}
	nodes := []*NodeRecord{{Name: "node0", Sockets: 2}}

	data := Save(h, jobs, nodes)

	restored, prev, err := Restore(data, h, map[uint32]bool{10: true, 11: true})
	require.Nil(t, err)
	require.Len(t, restored, 2)
	require.Equal(t, uint32(10), restored[0].JobID)
	require.Equal(t, "debug", restored[0].Partition)
	require.Equal(t, []string{"node0"}, restored[0].Hosts)
	require.Nil(t, restored[0].NodeBitmap, "bitmap is rebuilt later by ReplayRestore, not here")
	require.Len(t, prev, 1)
	require.Equal(t, "node0", prev[0].Name)
	require.Equal(t, 2, prev[0].Sockets)

	want := sampleAlloc(10)
	if diff := cmp.Diff(want, restored[0], cmpopts.IgnoreFields(JobAllocation{}, "NodeBitmap")); diff != "" {
		t.Errorf("restored allocation mismatch (-want +got):\n%s", diff)
	}
}

func TestRestoreDropsUnresolvedJobs(t *testing.T) {
	h := PersistHeader{PluginType: "coresched", PluginVersion: 1, CRType: CRCpu, DiskVersion: 1}
	data := Save(h, []*JobAllocation{sampleAlloc(10), sampleAlloc(11)}, nil)

	restored, _, err := Restore(data, h, map[uint32]bool{10: true})
	require.Nil(t, err)
	require.Len(t, restored, 1)
	require.Equal(t, uint32(10), restored[0].JobID)
}

func TestRestoreHeaderMismatchDiscards(t *testing.T) {
	saved := PersistHeader{PluginType: "coresched", PluginVersion: 1, CRType: CRCpu, DiskVersion: 1}
	running := PersistHeader{PluginType: "coresched", PluginVersion: 2, CRType: CRCpu, DiskVersion: 1}

	data := Save(saved, nil, nil)
	jobs, prev, err := Restore(data, running, nil)
	require.Nil(t, jobs)
	require.Nil(t, prev)
	require.NotNil(t, err)
	require.Equal(t, PersistVersionMismatch, err.Code)
}

func TestRestoreCorruptBufferRollsBack(t *testing.T) {
	h := PersistHeader{PluginType: "coresched", PluginVersion: 1}
	data := Save(h, []*JobAllocation{sampleAlloc(1)}, nil)

	jobs, prev, err := Restore(data[:len(data)-3], h, map[uint32]bool{1: true})
	require.Nil(t, jobs)
	require.Nil(t, prev)
	require.NotNil(t, err)
	require.Equal(t, PersistCorrupt, err.Code)
}

func TestReplayRestoreRebuildsNodeBitmapAndCharges(t *testing.T) {
	node := &NodeRecord{Name: "node0", Sockets: 1, CoresPerSocket: 8, ThreadsPerCore: 1}
	table := NewNodeTable([]*NodeRecord{node})

	alloc := sampleAlloc(10)
	alloc.AllocCores = [][]int{{4}}

	ReplayRestore([]*NodeRecord{node}, []NodeSummary{{Name: "node0", Sockets: 1}}, []*JobAllocation{alloc}, table)

	require.NotNil(t, alloc.NodeBitmap)
	require.True(t, alloc.NodeBitmap.Test(0))
	require.Equal(t, Both, alloc.State)
	require.Equal(t, uint64(1024), node.AllocatedMemory)

	row, ok := node.Parts["debug"]
	require.True(t, ok)
	require.Equal(t, 4, row.RowSum(0, 1))
}

func TestPartRowsForRecoversRowCount(t *testing.T) {
	node := &NodeRecord{Name: "node0", Sockets: 2}
	table := NewNodeTable([]*NodeRecord{node})

	alloc := &JobAllocation{
		Hosts:      []string{"node0"},
		NodeOffset: []int{4}, // row 2 (4/sockets=2)
	}
	require.Equal(t, uint16(3), partRowsFor(alloc, table))
}
