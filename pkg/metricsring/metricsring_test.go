package metricsring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetLastNSamples(t *testing.T) {
	cases := []struct {
		name    string
		input   []float64 // watt readings, oldest first
		output  []float64
		ringlen int
		count   int
	}{
		{
			name:    "get all samples",
			input:   []float64{110.0, 112.2, 98.3, 101.4},
			output:  []float64{110.0, 112.2, 98.3, 101.4},
			ringlen: 4,
			count:   4,
		},
		{
			name:    "get fewer than held",
			input:   []float64{110.0, 112.2, 98.3, 101.4},
			output:  []float64{98.3, 101.4},
			ringlen: 4,
			count:   2,
		},
		{
			name:    "asked for more than ring capacity",
			input:   []float64{110.0, 112.2, 98.3, 101.4},
			output:  []float64{110.0, 112.2, 98.3, 101.4},
			ringlen: 4,
			count:   8,
		},
		{
			name:    "asked for more than currently held",
			input:   []float64{98.3, 101.4},
			output:  []float64{98.3, 101.4},
			ringlen: 4,
			count:   4,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			buf := NewMetricsRing(tc.ringlen)
			for _, watts := range tc.input {
				buf.Push(watts)
			}

			require.Equal(t, tc.output, buf.GetLastNSamples(tc.count))
			require.Equal(t, tc.input, buf.GetLastNSamples(buf.GetSize()))
		})
	}
}

func TestGetSizeReportsRingCapacityNotOccupancy(t *testing.T) {
	buf := NewMetricsRing(8)
	buf.Push(42.0)

	require.Equal(t, 8, buf.GetSize())
}

func TestEWMAStartsAtZeroBeforeAnySample(t *testing.T) {
	buf := NewMetricsRing(16)
	require.Equal(t, 0.0, buf.EWMA())

	buf.Push(100.0)
	require.GreaterOrEqual(t, buf.EWMA(), 0.0)
}
