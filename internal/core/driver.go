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
	"sync"
	"time"

	"github.com/slurm-sched/coresched/pkg/log"
	"github.com/slurm-sched/coresched/pkg/metricsring"
)

var drvLog = log.Get("driver")

// powerHistoryLen is how many ticks of per-node wattage the driver keeps
// an EWMA and recent-sample window over.
const powerHistoryLen = 32

// PowerSample is one node's advisory power reading, as produced by the
// iteration/closure driver (§4.G) from NodeRecord.Energy.
type PowerSample struct {
	NodeName string
	Watts    float64
}

// Writer receives each tick's samples. It is called synchronously on the
// driver's goroutine, after the gauge and history are updated, so a Writer
// that blocks delays the next tick; a nil Writer is skipped.
type Writer func([]PowerSample)

// Driver is the independent advisory thread §4.G describes: used today
// by a power-cap adjuster that reads NodeRecord and produces per-node
// caps. It is the one source of blocking in the core outside of lock
// acquisition, confined to its own timed wait.
type Driver struct {
	period time.Duration
	source func() []PowerSample
	writer Writer

	wake chan struct{}
	stop chan struct{}
	done chan struct{}

	historyMu sync.RWMutex
	history   map[string]metricsring.SampleBuffer
}

// NewDriver builds a driver over source (a snapshot function the caller
// supplies, typically Engine.snapshotEnergy) with the given tick period.
// writer may be nil; publishPowerSamples (the Prometheus gauge) always
// runs regardless.
func NewDriver(period time.Duration, source func() []PowerSample, writer Writer) *Driver {
	return &Driver{
		period:  period,
		source:  source,
		writer:  writer,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		history: make(map[string]metricsring.SampleBuffer),
	}
}

// SmoothedWatts returns the EWMA of node's recent power samples and
// whether any samples have been recorded for it yet.
func (d *Driver) SmoothedWatts(node string) (float64, bool) {
	d.historyMu.RLock()
	defer d.historyMu.RUnlock()

	buf, ok := d.history[node]
	if !ok {
		return 0, false
	}
	return buf.EWMA(), true
}

// Start runs the driver's loop in its own goroutine.
func (d *Driver) Start() {
	go d.run()
}

// Stop signals the loop to exit and waits for it to do so. The condition
// variable equivalent (d.stop, selected alongside the ticker) wakes the
// thread immediately rather than waiting out the current period.
func (d *Driver) Stop() {
	close(d.stop)
	<-d.done
}

// Wake forces an immediate tick without waiting for the period to
// elapse, coalescing with any already-pending wake.
func (d *Driver) Wake() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Driver) run() {
	defer close(d.done)
	ticker := time.NewTicker(d.period)
	defer ticker.Stop()

	drvLog.Info("power-cap driver started, period=%s", d.period)
	for {
		select {
		case <-d.stop:
			drvLog.Info("power-cap driver stopping")
			return
		case <-d.wake:
			d.tick()
		case <-ticker.C:
			d.tick()
		}
	}
}

func (d *Driver) tick() {
	if d.source == nil {
		return
	}
	samples := d.source()
	publishPowerSamples(samples)
	d.recordHistory(samples)
	if d.writer != nil {
		d.writer(samples)
	}
}

func (d *Driver) recordHistory(samples []PowerSample) {
	d.historyMu.Lock()
	defer d.historyMu.Unlock()

	for _, s := range samples {
		buf, ok := d.history[s.NodeName]
		if !ok {
			buf = metricsring.NewMetricsRing(powerHistoryLen)
			d.history[s.NodeName] = buf
		}
		buf.Push(s.Watts)
	}
}
