// Package metrics holds histogram layouts shared by the studio instruments.
package metrics

// HTTPDurationBuckets spans 1ms to 10s for inbound requests and compiles.
var HTTPDurationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// OutboundDurationBuckets covers calls to token endpoints and the agent runtime.
var OutboundDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
