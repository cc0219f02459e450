package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var balanceUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ghostpass_balance_updates_total",
	Help: "Balance gate writes by resulting state",
}, []string{"state"})
