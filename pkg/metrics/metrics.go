// Package metrics is the registry engine components use to expose
// Prometheus collectors without the engine itself depending on
// prometheus/client_golang directly -- a component registers an
// InitCollector in its own init(), and a single NewMetricGatherer call
// builds the registry actually scraped.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	builtInCollectors    = make(map[string]InitCollector)
	registeredCollectors = []prometheus.Collector{}
)

// InitCollector builds a prometheus.Collector on demand, deferring any
// work (and any error) until NewMetricGatherer actually assembles a
// registry.
type InitCollector func() (prometheus.Collector, error)

// RegisterCollector records init under name, to be invoked the next time
// NewMetricGatherer is called. Re-registering the same name is an error.
func RegisterCollector(name string, init InitCollector) error {
	if _, found := builtInCollectors[name]; found {
		return fmt.Errorf("collector %q already registered", name)
	}

	builtInCollectors[name] = init

	return nil
}

// NewMetricGatherer builds and returns a registry containing every
// collector registered so far.
func NewMetricGatherer() (prometheus.Gatherer, error) {
	reg := prometheus.NewPedanticRegistry()

	for _, cb := range builtInCollectors {
		c, err := cb()
		if err != nil {
			return nil, err
		}
		registeredCollectors = append(registeredCollectors, c)
	}

	reg.MustRegister(registeredCollectors[:]...)

	return reg, nil
}
