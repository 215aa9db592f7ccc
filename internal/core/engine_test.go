package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestEngine(nodes []*NodeRecord) *Engine {
	e := NewEngine(EngineConfig{PluginType: "coresched", PluginVersion: 1, CRType: CRCpu})
	e.NodeInit(nodes)
	return e
}

func TestEngineJobLifecycle(t *testing.T) {
	node := &NodeRecord{Name: "node0", Sockets: 1, CoresPerSocket: 4, ThreadsPerCore: 1, RealMemory: 1 << 30, State: NodeAvailable}
	e := newTestEngine([]*NodeRecord{node})
	defer e.Fini()

	e.Reconfigure(map[string]PartitionConfig{"debug": {Name: "debug", MaxShare: 1}}, "")

	job := &Job{ID: 1, Partition: "debug", NumProcs: 4, CPUsPerTask: 1, CRType: CRCpu}
	candidates := allSet(1)

	chosen, err := e.JobTest(job, candidates, RunNow)
	require.Nil(t, err)
	require.Equal(t, uint(1), chosen.Count())

	require.Nil(t, e.JobBegin(1))
	require.Equal(t, uint64(0), node.AllocatedMemory) // job carries no memory request here
	row, ok := node.Parts["debug"]
	require.True(t, ok)
	require.Equal(t, 4, row.RowSum(0, 1))
	require.True(t, e.JobReady(1))

	cpus, ok := e.GetExtraJobInfo("node0", 1)
	require.True(t, ok)
	require.Equal(t, 4, cpus)

	require.Nil(t, e.JobSuspend(1))
	require.Equal(t, 0, row.RowSum(0, 1))
	require.False(t, e.JobReady(1))

	require.Nil(t, e.JobResume(1))
	require.Equal(t, 4, row.RowSum(0, 1))

	require.Nil(t, e.JobFini(1))
	_, ok = e.lookupAlloc(1)
	require.False(t, ok)
	require.Equal(t, NodeAvailable, node.State)
}

func TestEngineUnknownJobOperationsFail(t *testing.T) {
	e := newTestEngine(nil)
	defer e.Fini()

	require.NotNil(t, e.JobBegin(999))
	require.NotNil(t, e.JobSuspend(999))
	require.NotNil(t, e.JobResume(999))
	require.Nil(t, e.JobFini(999), "fini on an unknown job is idempotent, not an error")
	require.False(t, e.JobReady(999))
}

func TestEngineStateSaveRestoreRoundTrip(t *testing.T) {
	node := &NodeRecord{Name: "node0", Sockets: 1, CoresPerSocket: 4, ThreadsPerCore: 1, RealMemory: 1 << 30, State: NodeAvailable}
	e := newTestEngine([]*NodeRecord{node})
	defer e.Fini()

	job := &Job{ID: 5, Partition: "debug", NumProcs: 2, CPUsPerTask: 1, CRType: CRCpu}
	_, err := e.JobTest(job, allSet(1), RunNow)
	require.Nil(t, err)
	require.Nil(t, e.JobBegin(5))

	dir := t.TempDir()
	require.Nil(t, e.StateSave(dir))

	e2 := NewEngine(EngineConfig{PluginType: "coresched", PluginVersion: 1, CRType: CRCpu})
	defer e2.Fini()
	require.Nil(t, e2.StateRestore(dir, map[uint32]bool{5: true}))
	e2.NodeInit([]*NodeRecord{{Name: "node0", Sockets: 1, CoresPerSocket: 4, ThreadsPerCore: 1, RealMemory: 1 << 30}})

	alloc, ok := e2.lookupAlloc(5)
	require.True(t, ok)
	require.Equal(t, Both, alloc.State)
}

func TestEngineGetSelectNodeInfoUnknownKey(t *testing.T) {
	node := &NodeRecord{Name: "node0", Sockets: 1, CoresPerSocket: 4}
	e := newTestEngine([]*NodeRecord{node})
	defer e.Fini()

	_, err := e.GetSelectNodeInfo("node0", "bogus")
	require.NotNil(t, err)
	require.Equal(t, Invalid, err.Code)

	idle, err := e.GetSelectNodeInfo("node0", "idle_cpus")
	require.Nil(t, err)
	require.Equal(t, 4, idle)
}

func TestEngineResvPortAllocFree(t *testing.T) {
	e := newTestEngine([]*NodeRecord{{Name: "node0"}})
	defer e.Fini()
	require.Nil(t, e.Reconfigure(nil, "ports=50000-50001"))

	nodes := allSet(1)
	rendered, ports, err := e.ResvPortAlloc(nodes, 1)
	require.Nil(t, err)
	require.Len(t, ports, 1)
	require.NotEmpty(t, rendered)

	e.ResvPortFree(ports, nodes)
	_, ports2, err := e.ResvPortAlloc(nodes, 2)
	require.Nil(t, err)
	require.Len(t, ports2, 2)
}

func TestStepLayoutWrappers(t *testing.T) {
	layout, err := StepLayoutCreate([]string{"n0", "n1"}, []int{2, 2}, 3, DistBlock, 0)
	require.Nil(t, err)

	hid, ok := StepLayoutHostID(layout, 0)
	require.True(t, ok)
	require.Equal(t, 0, hid)

	name, ok := StepLayoutHostName(layout, []string{"n0", "n1"}, 2)
	require.True(t, ok)
	require.Equal(t, "n1", name)

	StepLayoutDestroy(layout) // no-op, must not panic
}
