package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Result label values.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// NodeMetrics counts boundary calls made by the host driver.
type NodeMetrics struct {
	CreateCalls *prometheus.CounterVec
	TickCalls   *prometheus.CounterVec
	RunActive   prometheus.Gauge
	RunExits    *prometheus.CounterVec
	LastTickMs  prometheus.Gauge
}

func NewNodeMetrics(namespace string, reg prometheus.Registerer) (*NodeMetrics, error) {
	m := &NodeMetrics{
		CreateCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "create_calls_total",
			Help:      "Node create calls by result",
		}, []string{"result"}),
		TickCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tick_calls_total",
			Help:      "Tick calls by result",
		}, []string{"result"}),
		RunActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_active",
			Help:      "1 while the node run loop is executing",
		}),
		RunExits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_exits_total",
			Help:      "Run loop terminations by result",
		}, []string{"result"}),
		LastTickMs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_tick_elapsed_ms",
			Help:      "Elapsed milliseconds reported by the most recent tick",
		}),
	}

	for _, c := range []prometheus.Collector{m.CreateCalls, m.TickCalls, m.RunActive, m.RunExits, m.LastTickMs} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Result maps a boundary outcome to its label value.
func Result(ok bool) string {
	if ok {
		return ResultOK
	}
	return ResultFailed
}
