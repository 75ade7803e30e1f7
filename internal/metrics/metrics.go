// Package metrics summarises hybrid runs. Every metric is a
// dynamo.Observer and may be attached to a solver; observers are called
// concurrently when the solver runs with several workers.
package metrics

import "github.com/san-kum/hybridsim/internal/dynamo"

type Metric interface {
	dynamo.Observer
	Name() string
	Value() float64
	Reset()
}

// Observers converts metrics to the solver's observer list.
func Observers(ms ...Metric) []dynamo.Observer {
	out := make([]dynamo.Observer, len(ms))
	for i, m := range ms {
		out[i] = m
	}
	return out
}
