package challenge

import (
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TimeTaken tracks how long clients report spending on the proof-of-work
// search (milliseconds). Observed by the HTTP layer when a solution is
// submitted.
var TimeTaken = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "nohumanallowed_time_taken",
	Help:    "The time taken for a client to find a valid nonce (milliseconds)",
	Buckets: prometheus.ExponentialBucketsRange(1, math.Pow(2, 20), 20),
}, []string{"difficulty"})
