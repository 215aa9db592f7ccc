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

// Package metricsring holds a short, fixed-length history of per-node
// samples (watts, in this tree's case) and exposes a smoothed read of
// them, so a single noisy poll doesn't flap a caller's view of a node.
package metricsring

import (
	"container/ring"
	"time"

	"github.com/VividCortex/ewma"
)

// SampleBuffer is a fixed-capacity, EWMA-smoothed history of float64
// samples recorded over time.
type SampleBuffer interface {
	Push(d float64)
	EWMA() float64
	GetTime() time.Duration
	GetSize() int
	GetLastNSamples(count int) []float64
}

// MetricsRing is the ring-buffer-backed SampleBuffer implementation.
type MetricsRing struct {
	r  *ring.Ring
	s  int // count of elements currently held
	ma ewma.MovingAverage
}

type sample struct {
	s         float64
	timestamp time.Time
}

// NewMetricsRing allocates a buffer of ringlen samples. ewma has a
// warm-up period of 10 samples; with ringlen < 10, EWMA() keeps
// returning 0.0 until then.
func NewMetricsRing(ringlen int) SampleBuffer {
	return &MetricsRing{
		r:  ring.New(ringlen),
		ma: ewma.NewMovingAverage(float64(ringlen)),
	}
}

// GetTime returns the span between the oldest and newest recorded
// sample currently held.
func (mr *MetricsRing) GetTime() time.Duration {
	newest := mr.r.Prev().Value.(sample).timestamp
	oldest := mr.r.Move(-1 * mr.s).Value.(sample).timestamp
	return newest.Sub(oldest)
}

// EWMA returns the exponentially weighted moving average of all
// samples pushed so far.
func (mr *MetricsRing) EWMA() float64 {
	return mr.ma.Value()
}

// Push records a new sample, evicting the oldest once the ring is full.
func (mr *MetricsRing) Push(d float64) {
	mr.r.Value = sample{s: d, timestamp: time.Now()}
	mr.ma.Add(d)
	mr.r = mr.r.Next()

	if mr.s+1 <= mr.r.Len() {
		mr.s++
	}
}

// GetSize returns the ring's capacity, not the count of samples held.
func (mr *MetricsRing) GetSize() int {
	return mr.r.Len()
}

// GetLastNSamples returns up to count of the most recently pushed
// samples, oldest first. Fewer are returned if the ring hasn't been
// filled that far yet.
func (mr *MetricsRing) GetLastNSamples(count int) []float64 {
	sliceLen := count
	if sliceLen > mr.r.Len() {
		sliceLen = mr.r.Len()
	}
	if sliceLen > mr.s {
		sliceLen = mr.s
	}

	out := make([]float64, sliceLen)

	mr.r = mr.r.Move(-1 * sliceLen)
	for i := 0; i < sliceLen; i++ {
		out[i] = mr.r.Value.(sample).s
		mr.r = mr.r.Next()
	}

	return out
}
