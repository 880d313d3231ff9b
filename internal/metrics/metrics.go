package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "engine_cycles_total", Help: "Count of scheduling loop cycles completed"},
		[]string{"symbol"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Market orders submitted"},
		[]string{"symbol", "side"},
	)
	TradesClosedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "trades_closed_total", Help: "Round trips recorded to the ledger"},
		[]string{"symbol"},
	)
	EngineErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "engine_errors_total", Help: "Errors caught at the cycle boundary"},
		[]string{"stage"},
	)
)

func init() {
	prometheus.MustRegister(CyclesTotal, OrdersTotal, TradesClosedTotal, EngineErrorsTotal)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{ Addr: addr, Handler: mux }
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
