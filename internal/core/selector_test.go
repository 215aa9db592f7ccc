package core

import (
	"testing"

	"github.com/slurm-sched/coresched/pkg/bitmap"
	"github.com/stretchr/testify/require"
)

func makeAvailableNodes(n int, coresPerSocket int) []*NodeRecord {
	nodes := make([]*NodeRecord, n)
	for i := range nodes {
		nodes[i] = &NodeRecord{
			Name:           "node" + string(rune('0'+i)),
			Sockets:        1,
			CoresPerSocket: coresPerSocket,
			ThreadsPerCore: 1,
			RealMemory:     1 << 30,
			State:          NodeAvailable,
		}
	}
	return nodes
}

func allSet(n uint) *bitmap.Bitmap {
	b := bitmap.New(n)
	for i := uint(0); i < n; i++ {
		b.Set(i)
	}
	return b
}

func TestSelectNodesSingleNodeSatisfies(t *testing.T) {
	nodes := makeAvailableNodes(3, 4)
	candidates := allSet(3)
	job := &Job{
		NumProcs:    4,
		MinNodes:    1,
		CPUsPerTask: 1,
		Partition:   "debug",
		CRType:      CRCpu,
	}

	chosen, _, err := SelectNodes(nodes, candidates, job, RunNow)
	require.Nil(t, err)
	require.Equal(t, uint(1), chosen.Count())
	require.True(t, chosen.Test(0))
}

func TestSelectNodesRejectsZeroTaskJob(t *testing.T) {
	nodes := makeAvailableNodes(1, 4)
	candidates := allSet(1)
	job := &Job{Partition: "debug"}

	_, _, err := SelectNodes(nodes, candidates, job, RunNow)
	require.NotNil(t, err)
	require.Equal(t, Invalid, err.Code)
}

func TestSelectNodesInfeasibleReturnsNodesBusy(t *testing.T) {
	nodes := makeAvailableNodes(2, 2)
	candidates := allSet(2)
	job := &Job{
		NumProcs:    100,
		MinNodes:    2,
		MaxNodes:    2,
		CPUsPerTask: 1,
		Partition:   "debug",
		CRType:      CRCpu,
	}

	_, _, err := SelectNodes(nodes, candidates, job, RunNow)
	require.NotNil(t, err)
	require.Equal(t, NodesBusy, err.Code)
}

func TestConsecSetsSearchExpandsFromAnchor(t *testing.T) {
	nodes := makeAvailableNodes(4, 2)
	filtered := allSet(4)
	avail := []int{2, 2, 2, 2}

	required := bitmap.New(4)
	required.Set(1)

	job := &Job{
		NumProcs:      4,
		MinNodes:      2,
		ReqNodeBitmap: required,
		Partition:     "debug",
	}

	chosen, err := consecSetsSearch(filtered, avail, job)
	require.Nil(t, err)
	require.True(t, chosen.Test(1), "required node must be chosen")
	require.True(t, chosen.Test(0), "fill must expand to the node adjacent to the anchor")
	_ = nodes
}

func TestKnapsackEscapeFailsWhenRequiredNodeHasNoCapacity(t *testing.T) {
	filtered := allSet(2)
	avail := []int{0, 5}

	required := bitmap.New(2)
	required.Set(0)

	job := &Job{NumProcs: 1, MinNodes: 1, ReqNodeBitmap: required}

	_, err := knapsackEscape(filtered, avail, job)
	require.NotNil(t, err)
	require.Equal(t, NodesBusy, err.Code)
}

func TestKnapsackEscapeExhaustsWithoutSuccess(t *testing.T) {
	filtered := allSet(3)
	avail := []int{1, 1, 1}

	job := &Job{NumProcs: 3, MinNodes: 1, MaxNodes: 1}

	_, err := knapsackEscape(filtered, avail, job)
	require.NotNil(t, err)
	require.Equal(t, NodesBusy, err.Code)
}
