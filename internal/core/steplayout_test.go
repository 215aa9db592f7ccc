package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuildLayoutBlockFillsEachHostToCapacity(t *testing.T) {
	hosts := []string{"n0", "n1", "n2"}
	cpus := []int{2, 2, 2}

	layout, err := BuildLayout(hosts, cpus, nil, 4, DistBlock, 0)
	require.Nil(t, err)
	require.Equal(t, []int{2, 2, 0}, layout.Tasks)
	require.Equal(t, []int{0, 0, 1, 1}, layout.HostIDs)
}

func TestBuildLayoutCyclicRoundRobins(t *testing.T) {
	hosts := []string{"n0", "n1", "n2"}
	cpus := []int{4, 4, 4}

	layout, err := BuildLayout(hosts, cpus, nil, 5, DistCyclic, 0)
	require.Nil(t, err)
	require.Equal(t, []int{2, 2, 1}, layout.Tasks)
	require.Equal(t, []int{0, 1, 2, 0, 1}, layout.HostIDs)
}

func TestBuildLayoutPlaneBlocksOfPlaneSize(t *testing.T) {
	hosts := []string{"n0", "n1"}
	cpus := []int{4, 4}

	layout, err := BuildLayout(hosts, cpus, nil, 5, DistPlane, 2)
	require.Nil(t, err)
	require.Equal(t, []int{3, 2}, layout.Tasks)
	require.Equal(t, []int{0, 0, 1, 1, 0}, layout.HostIDs)
}

func TestBuildLayoutInsufficientCapacityErrors(t *testing.T) {
	hosts := []string{"n0"}
	cpus := []int{1}

	_, err := BuildLayout(hosts, cpus, nil, 3, DistBlock, 0)
	require.NotNil(t, err)
	require.Equal(t, Invalid, err.Code)
}

func TestBuildLayoutArbitraryUsesFirstSeenOrder(t *testing.T) {
	assignment := []string{"n2", "n0", "n2", "n1"}

	layout, err := BuildLayout(assignment, nil, nil, 4, DistArbitrary, 0)
	require.Nil(t, err)
	require.Equal(t, []int{2, 1, 1}, layout.Tasks)

	hid, ok := layout.HostID(1)
	require.True(t, ok)
	require.Equal(t, 1, hid)

	name, ok := layout.HostName([]string{"n2", "n0", "n1"}, 0)
	require.True(t, ok)
	require.Equal(t, "n2", name)
}

func TestLayoutHostIDOutOfRange(t *testing.T) {
	l := &Layout{HostIDs: []int{0, 1}}
	_, ok := l.HostID(5)
	require.False(t, ok)
}

func TestCeilDiv(t *testing.T) {
	require.Equal(t, 3, ceilDiv(7, 3))
	require.Equal(t, 0, ceilDiv(0, 3))
	require.Equal(t, 5, ceilDiv(5, 0))
}
