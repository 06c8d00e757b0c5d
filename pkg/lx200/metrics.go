package lx200

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// commandsTotal counts framed exchanges by outcome: "ok", "timeout" or
// "error". Exposed through the server's /metrics endpoint.
var commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "lx200_commands_total",
	Help: "LX200 command exchanges by outcome.",
}, []string{"result"})
