package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operations — счётчик операций ядра по исходу.
var Operations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cargoflow_operations_total",
	Help: "Core engine operations by outcome.",
}, []string{"op", "outcome"})
