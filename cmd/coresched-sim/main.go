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

// coresched-sim replays a cluster topology and a list of jobs through the
// core scheduling engine and prints the placement decision for each job.
// It is a demonstration harness, not a controller: there is no RPC surface
// and no external event source, just a YAML fixture driven start to finish.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"github.com/slurm-sched/coresched/internal/core"
	"github.com/slurm-sched/coresched/pkg/bitmap"
	"github.com/slurm-sched/coresched/pkg/config"
	logger "github.com/slurm-sched/coresched/pkg/log"
	"github.com/slurm-sched/coresched/pkg/metrics"
	_ "github.com/slurm-sched/coresched/pkg/metrics/register"
)

var log = logger.Get("coresched-sim")

// clusterFixture is the on-disk shape of a simulated cluster: the nodes
// the engine places onto, the partitions those nodes are carved into, and
// the jobs to test and run against them, in order.
type clusterFixture struct {
	Ports      string             `json:"ports,omitempty"`
	Partitions []partitionFixture `json:"partitions"`
	Nodes      []nodeFixture      `json:"nodes"`
	Jobs       []jobFixture       `json:"jobs"`
}

type partitionFixture struct {
	Name     string `json:"name"`
	MaxShare uint16 `json:"max_share"`
}

type nodeFixture struct {
	Name           string `json:"name"`
	Sockets        int    `json:"sockets"`
	CoresPerSocket int    `json:"cores_per_socket"`
	ThreadsPerCore int    `json:"threads_per_core"`
	RealMemoryMB   uint64 `json:"real_memory_mb"`
}

type jobFixture struct {
	ID          uint32 `json:"id"`
	Partition   string `json:"partition"`
	NumProcs    uint32 `json:"num_procs"`
	CPUsPerTask uint16 `json:"cpus_per_task"`
	Shared      bool   `json:"shared"`
}

func loadFixture(path string) (*clusterFixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read cluster fixture %s", path)
	}

	f := &clusterFixture{}
	if err := yaml.Unmarshal(raw, f); err != nil {
		return nil, errors.Wrapf(err, "failed to parse cluster fixture %s", path)
	}

	return f, nil
}

// simConfig is the operational knobs for this binary, registered with
// pkg/config the way every other daemon-style component in this tree
// configures itself, even though this one has no external reconfiguration
// source: it still goes through ParseCmdline so --sim.poll-period etc. are
// usable from the command line.
type simConfig struct {
	pollPeriod  time.Duration
	dumpMetrics bool
}

func registerSimConfig() *simConfig {
	cfg := &simConfig{}
	m := config.Register("sim", "simulation driver parameters")

	m.DurationVar(&cfg.pollPeriod, "poll-period", 0, "advisory power-driver polling period (0 disables it)")
	m.BoolVar(&cfg.dumpMetrics, "dump-metrics", false, "print the Prometheus metrics snapshot before exiting")

	return cfg
}

func main() {
	fixturePath := flag.String("fixture", "", "path to a cluster/job YAML fixture")

	cfg := registerSimConfig()
	root := config.GetConfig("runtime-config")
	if err := root.ParseCmdline(); err != nil && err != flag.ErrHelp {
		log.Fatal("failed to parse configuration: %v", err)
	}

	if *fixturePath == "" {
		log.Fatal("-fixture is required")
	}

	fixture, err := loadFixture(*fixturePath)
	if err != nil {
		log.Fatal("%v", err)
	}

	nodes := make([]*core.NodeRecord, 0, len(fixture.Nodes))
	for _, n := range fixture.Nodes {
		nodes = append(nodes, &core.NodeRecord{
			Name:           n.Name,
			Sockets:        n.Sockets,
			CoresPerSocket: n.CoresPerSocket,
			ThreadsPerCore: n.ThreadsPerCore,
			RealMemory:     n.RealMemoryMB << 20,
			State:          core.NodeAvailable,
		})
	}

	parts := make(map[string]core.PartitionConfig, len(fixture.Partitions))
	for _, p := range fixture.Partitions {
		parts[p.Name] = core.PartitionConfig{Name: p.Name, MaxShare: p.MaxShare}
	}

	eng := core.NewEngine(core.EngineConfig{
		PluginType:    "coresched-sim",
		PluginVersion: 1,
		CRType:        core.CRCpu,
		DriverPeriod:  cfg.pollPeriod,
	})
	defer eng.Fini()

	eng.NodeInit(nodes)
	if err := eng.Reconfigure(parts, fixture.Ports); err != nil {
		log.Fatal("reconfigure failed: %v", err)
	}

	for _, jf := range fixture.Jobs {
		job := &core.Job{
			ID:          jf.ID,
			Partition:   jf.Partition,
			NumProcs:    jf.NumProcs,
			CPUsPerTask: jf.CPUsPerTask,
			CRType:      core.CRCpu,
		}
		if jf.Shared {
			job.Shared = core.SharedYes
		} else {
			job.Shared = core.SharedNo
		}

		candidates := bitmap.New(uint(len(nodes)))
		for i := range nodes {
			candidates.Set(uint(i))
		}

		chosen, placeErr := eng.JobTest(job, candidates, core.RunNow)
		if placeErr != nil {
			fmt.Printf("job %d: REJECTED (%s): %v\n", jf.ID, placeErr.Code, placeErr)
			continue
		}

		if err := eng.JobBegin(jf.ID); err != nil {
			fmt.Printf("job %d: placed on %v but failed to begin: %v\n", jf.ID, chosen.Indices(), err)
			continue
		}

		hosts := make([]string, 0, chosen.Count())
		for _, idx := range chosen.Indices() {
			hosts = append(hosts, nodes[idx].Name)
		}
		fmt.Printf("job %d: RUNNING on %v\n", jf.ID, hosts)
	}

	if cfg.dumpMetrics {
		dumpMetrics()
	}
}

func dumpMetrics() {
	g, err := metrics.NewMetricGatherer()
	if err != nil {
		log.Error("failed to build metrics gatherer: %v", err)
		return
	}

	mfs, err := g.Gather()
	if err != nil {
		log.Error("failed to gather metrics: %v", err)
		return
	}

	for _, mf := range mfs {
		fmt.Println(mf.String())
	}
}
