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
	"github.com/prometheus/client_golang/prometheus"

	"github.com/slurm-sched/coresched/pkg/metrics"
)

// nodeWatts is the advisory per-node power gauge the iteration/closure
// driver (§4.G) publishes on every tick.
var nodeWatts = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "coresched",
	Subsystem: "power",
	Name:      "node_watts",
	Help:      "Advisory per-node power draw, as last read by the power-cap driver.",
}, []string{"node"})

func init() {
	metrics.RegisterCollector("coresched_power", func() (prometheus.Collector, error) {
		return nodeWatts, nil
	})
}

func publishPowerSamples(samples []PowerSample) {
	for _, s := range samples {
		nodeWatts.WithLabelValues(s.NodeName).Set(s.Watts)
	}
}
