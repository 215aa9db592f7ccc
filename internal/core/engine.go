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

// Package core implements the controller-side job/step scheduling and
// resource reservation engine: the node-resource table, the job
// placement selector, the step layout builder, port reservation, the
// persistence codec, and the advisory power-cap driver.
package core

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/slurm-sched/coresched/pkg/bitmap"
	"github.com/slurm-sched/coresched/pkg/log"
)

var engLog = log.Get("engine")

const stateFileName = "coresched_state.dat"

// PartitionConfig is the subset of a partition's configuration the core
// needs: its sharing row count. Owned by the controller, handed to the
// core at Reconfigure time.
type PartitionConfig struct {
	Name     string
	MaxShare uint16
}

// EngineConfig is the core's own static configuration, read once at
// construction and again on reconfigure().
type EngineConfig struct {
	PluginType    string
	PluginVersion uint32
	DiskVersion   uint32
	CRType        CRType
	DriverPeriod  time.Duration // 0 disables the power-cap driver
	PowerWriter   Writer
}

type restoreState struct {
	jobs      []*JobAllocation
	prevNodes []NodeSummary
}

// Engine is the top-level core: a hierarchical reader/writer lock over
// four domains (configuration, jobs, nodes, partitions), matching §5's
// concurrency model. Exported methods are the External Interface (§6);
// those that can fail return an *Error in the §7 taxonomy, nil on success.
type Engine struct {
	cfgMu sync.RWMutex
	cfg   EngineConfig

	partsMu sync.RWMutex
	parts   map[string]PartitionConfig

	// nodesMu also guards ports: "the process-wide port table is
	// guarded by the node lock" (§5).
	nodesMu sync.RWMutex
	table   *NodeTable
	ports   *PortTable

	// jobsMu is dedicated and independent of the other three, per §5,
	// so restore and fini can traverse the job list without holding
	// the larger table locks.
	jobsMu sync.RWMutex
	jobs   map[uint32]*JobAllocation

	pendingRestore *restoreState

	driver *Driver
}

// NewEngine is init(): brings up the plugin once per process.
func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{
		cfg:   cfg,
		parts: make(map[string]PartitionConfig),
		jobs:  make(map[uint32]*JobAllocation),
		table: NewNodeTable(nil),
		ports: NewPortTable(),
	}
	if cfg.DriverPeriod > 0 {
		e.driver = NewDriver(cfg.DriverPeriod, e.snapshotEnergy, cfg.PowerWriter)
		e.driver.Start()
	}
	engLog.Info("core engine initialized: plugin=%s v%d disk=%d cr=%d", cfg.PluginType, cfg.PluginVersion, cfg.DiskVersion, cfg.CRType)
	return e
}

// Fini tears the plugin down, once per process.
func (e *Engine) Fini() {
	if e.driver != nil {
		e.driver.Stop()
	}
	engLog.Info("core engine shut down")
}

func (e *Engine) header() PersistHeader {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return PersistHeader{
		PluginType:    e.cfg.PluginType,
		PluginVersion: e.cfg.PluginVersion,
		CRType:        e.cfg.CRType,
		DiskVersion:   e.cfg.DiskVersion,
	}
}

// NodeInit publishes the authoritative node array: rebuilds the hash
// table and, if a restore is pending, replays it now (deferred restore
// replay -- node_init is the first point the core has a live node array
// to match the persisted summary against).
func (e *Engine) NodeInit(nodes []*NodeRecord) {
	e.nodesMu.Lock()
	e.table = NewNodeTable(nodes)
	pending := e.pendingRestore
	e.pendingRestore = nil
	table := e.table
	e.nodesMu.Unlock()

	if pending == nil {
		return
	}
	ReplayRestore(nodes, pending.prevNodes, pending.jobs, table)
	e.jobsMu.Lock()
	for _, j := range pending.jobs {
		e.jobs[j.JobID] = j
	}
	e.jobsMu.Unlock()
	engLog.Info("replayed %d jobs from persisted state", len(pending.jobs))
}

// StateSave is state_save(dir): writes the packed header, job table, and
// node summary to dir/coresched_state.dat.
func (e *Engine) StateSave(dir string) *Error {
	e.jobsMu.RLock()
	jobs := make([]*JobAllocation, 0, len(e.jobs))
	for _, j := range e.jobs {
		jobs = append(jobs, j)
	}
	e.jobsMu.RUnlock()

	e.nodesMu.RLock()
	nodes := e.table.Nodes()
	e.nodesMu.RUnlock()

	data := Save(e.header(), jobs, nodes)
	if err := os.WriteFile(filepath.Join(dir, stateFileName), data, 0o600); err != nil {
		return newError(PersistCorrupt, "state_save: %v", err)
	}
	return nil
}

// StateRestore is state_restore(dir): on a missing file this is a no-op
// (clean start); on a header mismatch or corrupt payload the state is
// discarded per §4.F's advisory-state policy. On success the result is
// held pending until the next NodeInit, which is where live nodes
// actually become available to replay against.
func (e *Engine) StateRestore(dir string, liveJobIDs map[uint32]bool) *Error {
	data, err := os.ReadFile(filepath.Join(dir, stateFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return newError(PersistCorrupt, "state_restore: %v", err)
	}

	jobs, prevNodes, perr := Restore(data, e.header(), liveJobIDs)
	if perr != nil {
		engLog.Warn("state_restore: %v, starting clean", perr)
		return perr
	}

	e.nodesMu.Lock()
	e.pendingRestore = &restoreState{jobs: jobs, prevNodes: prevNodes}
	e.nodesMu.Unlock()
	return nil
}

// JobInit is job_init(job_list): after restore, accept the controller's
// job list as ground truth, replacing whatever the core itself had
// assembled.
func (e *Engine) JobInit(jobs []*JobAllocation) {
	e.jobsMu.Lock()
	defer e.jobsMu.Unlock()
	e.jobs = make(map[uint32]*JobAllocation, len(jobs))
	for _, j := range jobs {
		e.jobs[j.JobID] = j
	}
}

func (e *Engine) partitionMaxShare(name string) uint16 {
	e.partsMu.RLock()
	defer e.partsMu.RUnlock()
	return e.parts[name].MaxShare
}

func (e *Engine) jobParams(alloc *JobAllocation) *Job {
	return &Job{
		Partition:         alloc.Partition,
		NodeReq:           alloc.NodeReq,
		PartitionMaxShare: e.partitionMaxShare(alloc.Partition),
	}
}

// JobTest is job_test(job, bitmap, min_nodes, max_nodes, req_nodes,
// mode): §4.D end to end. For RunNow, a successful search is committed
// as a JobAllocation (D.5) and recorded under the job's id; job_begin
// later charges it into the live node table.
func (e *Engine) JobTest(job *Job, candidates *bitmap.Bitmap, mode Mode) (*bitmap.Bitmap, *Error) {
	job.PartitionMaxShare = e.partitionMaxShare(job.Partition)

	e.jobsMu.RLock()
	if mode == RunNow {
		e.nodesMu.Lock()
	} else {
		e.nodesMu.RLock()
	}
	nodes := e.table.Nodes()
	chosen, rows, serr := SelectNodes(nodes, candidates, job, mode)
	var avail []int
	if serr == nil && mode == RunNow {
		avail, _ = buildAvail(nodes, chosen, job)
	}
	if mode == RunNow {
		e.nodesMu.Unlock()
	} else {
		e.nodesMu.RUnlock()
	}
	e.jobsMu.RUnlock()

	if serr != nil {
		return nil, serr
	}
	if mode != RunNow {
		return chosen, nil
	}

	alloc := BuildAllocation(nodes, rows, chosen, avail, job)
	if aerr := FillTaskDistribution(alloc, nodes, job); aerr != nil {
		return nil, aerr
	}

	e.jobsMu.Lock()
	e.jobs[job.ID] = alloc
	e.jobsMu.Unlock()

	return chosen, nil
}

func (e *Engine) lookupAlloc(jobID uint32) (*JobAllocation, bool) {
	e.jobsMu.RLock()
	defer e.jobsMu.RUnlock()
	a, ok := e.jobs[jobID]
	return a, ok
}

// JobBegin charges a previously tested (RunNow) allocation into the live
// node table.
func (e *Engine) JobBegin(jobID uint32) *Error {
	alloc, ok := e.lookupAlloc(jobID)
	if !ok {
		return newError(Invalid, "job_begin: unknown job %d", jobID)
	}
	job := e.jobParams(alloc)
	e.nodesMu.Lock()
	defer e.nodesMu.Unlock()
	return AddJobToNodes(alloc, e.table, job, false)
}

// JobReady reports whether a job currently holds its full allocation.
func (e *Engine) JobReady(jobID uint32) bool {
	alloc, ok := e.lookupAlloc(jobID)
	return ok && alloc.State == Both
}

// JobFini tears an allocation down completely and forgets the job.
func (e *Engine) JobFini(jobID uint32) *Error {
	alloc, ok := e.lookupAlloc(jobID)
	if !ok {
		return nil
	}
	job := e.jobParams(alloc)

	e.nodesMu.Lock()
	RmJobFromNodes(alloc, e.table, job, true)
	e.nodesMu.Unlock()

	e.jobsMu.Lock()
	delete(e.jobs, jobID)
	e.jobsMu.Unlock()
	return nil
}

// JobSuspend releases a job's cpu rows while leaving its memory charged.
func (e *Engine) JobSuspend(jobID uint32) *Error {
	alloc, ok := e.lookupAlloc(jobID)
	if !ok {
		return newError(Invalid, "job_suspend: unknown job %d", jobID)
	}
	job := e.jobParams(alloc)
	e.nodesMu.Lock()
	defer e.nodesMu.Unlock()
	return RmJobFromNodes(alloc, e.table, job, false)
}

// JobResume re-adds a suspended job's cpu rows; its memory charge was
// never released, so this is exactly AddJobToNodes's idempotent path.
func (e *Engine) JobResume(jobID uint32) *Error {
	alloc, ok := e.lookupAlloc(jobID)
	if !ok {
		return newError(Invalid, "job_resume: unknown job %d", jobID)
	}
	job := e.jobParams(alloc)
	e.nodesMu.Lock()
	defer e.nodesMu.Unlock()
	return AddJobToNodes(alloc, e.table, job, false)
}

// UpdateNodeInfo applies a recovered allocation -- one the controller
// reconstructed out of band rather than one this core produced itself.
func (e *Engine) UpdateNodeInfo(alloc *JobAllocation) *Error {
	job := e.jobParams(alloc)
	e.nodesMu.Lock()
	err := AddJobToNodes(alloc, e.table, job, false)
	e.nodesMu.Unlock()
	if err != nil {
		return err
	}
	e.jobsMu.Lock()
	e.jobs[alloc.JobID] = alloc
	e.jobsMu.Unlock()
	return nil
}

// GetExtraJobInfo returns a job's granted task count on one node, e.g.
// per-node allocated cpus for a job.
func (e *Engine) GetExtraJobInfo(nodeName string, jobID uint32) (int, bool) {
	alloc, ok := e.lookupAlloc(jobID)
	if !ok {
		return 0, false
	}
	for i, h := range alloc.Hosts {
		if h == nodeName {
			return alloc.AllocCPUs[i], true
		}
	}
	return 0, false
}

// GetSelectNodeInfo answers per-node queries keyed by name, e.g. the
// worst-case allocated cpus across a node's rows or its idle cpu count.
func (e *Engine) GetSelectNodeInfo(nodeName, key string) (int, *Error) {
	e.nodesMu.RLock()
	defer e.nodesMu.RUnlock()

	node, _, ok := e.table.Lookup(nodeName)
	if !ok {
		return 0, newError(Invalid, "get_select_nodeinfo: unknown node %s", nodeName)
	}
	switch key {
	case "idle_cpus":
		return node.CountIdleCPUs(), nil
	case "alloc_cpus":
		worst := 0
		for _, p := range node.Parts {
			for r := 0; r < p.NumRows; r++ {
				if s := p.RowSum(r, node.Sockets); s > worst {
					worst = s
				}
			}
		}
		return worst, nil
	default:
		return 0, newError(Invalid, "get_select_nodeinfo: unknown key %q", key)
	}
}

// GetSmoothedPower returns the power-cap driver's EWMA of node's recent
// wattage readings. It reports false if the driver is disabled or has
// not yet ticked for that node.
func (e *Engine) GetSmoothedPower(nodeName string) (float64, bool) {
	if e.driver == nil {
		return 0, false
	}
	return e.driver.SmoothedWatts(nodeName)
}

// Reconfigure is reconfigure(): re-reads partition configuration and
// rebuilds the node hash table (the node array itself is unchanged;
// only its derived index structures are).
func (e *Engine) Reconfigure(parts map[string]PartitionConfig, portSpec string) *Error {
	e.partsMu.Lock()
	e.parts = parts
	e.partsMu.Unlock()

	e.nodesMu.Lock()
	nodeCount := e.table.Len()
	e.table = NewNodeTable(e.table.Nodes())
	e.nodesMu.Unlock()

	if portSpec == "" {
		return nil
	}
	return e.ports.Configure(portSpec, nodeCount)
}

// ResvPortAlloc and ResvPortFree are the step-side port surface; the
// port table is guarded by the node lock, per §5.
func (e *Engine) ResvPortAlloc(nodeBitmap *bitmap.Bitmap, count int) (string, []int, *Error) {
	e.nodesMu.Lock()
	defer e.nodesMu.Unlock()
	return e.ports.Alloc(nodeBitmap, count)
}

func (e *Engine) ResvPortFree(ports []int, nodeBitmap *bitmap.Bitmap) {
	e.nodesMu.Lock()
	defer e.nodesMu.Unlock()
	e.ports.Free(ports, nodeBitmap)
}

// StepLayoutCreate, StepLayoutHostID, and StepLayoutHostName are the
// step-side layout surface (§4.E); they touch no engine state and so
// take no lock. StepLayoutDestroy exists only for External Interface
// symmetry -- a Layout is reclaimed by the garbage collector once its
// last reference is dropped, so it does nothing.
func StepLayoutCreate(hosts []string, cpus []int, numTasks int, dist Distribution, planeSize int) (*Layout, *Error) {
	return BuildLayout(hosts, cpus, nil, numTasks, dist, planeSize)
}

func StepLayoutDestroy(*Layout) {}

func StepLayoutHostID(l *Layout, taskID int) (int, bool) { return l.HostID(taskID) }

func StepLayoutHostName(l *Layout, hosts []string, taskID int) (string, bool) {
	return l.HostName(hosts, taskID)
}

func (e *Engine) snapshotEnergy() []PowerSample {
	e.nodesMu.RLock()
	defer e.nodesMu.RUnlock()
	nodes := e.table.Nodes()
	out := make([]PowerSample, 0, len(nodes))
	for _, n := range nodes {
		if n.Energy == nil {
			continue
		}
		out = append(out, PowerSample{NodeName: n.Name, Watts: n.Energy.CurrentWatts})
	}
	return out
}
