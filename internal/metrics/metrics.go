package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gridbot/internal/logger"
)

var (
	CyclesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gridbot_cycles_total",
		Help: "Completed orchestrator cycles",
	})

	CycleErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gridbot_cycle_errors_total",
		Help: "Cycles that ended with an error",
	})

	OrdersPlacedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridbot_orders_placed_total",
		Help: "Orders created through the executor",
	}, []string{"pair"})

	OrdersCanceledTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridbot_orders_canceled_total",
		Help: "Orders canceled through the executor",
	}, []string{"pair"})

	CycleSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gridbot_cycle_seconds",
		Help: "Duration of the last cycle",
	})

	AccountValue = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gridbot_account_value_quote",
		Help: "Estimated account value in quote asset",
	})
)

func init() {
	prometheus.MustRegister(
		CyclesTotal,
		CycleErrorsTotal,
		OrdersPlacedTotal,
		OrdersCanceledTotal,
		CycleSeconds,
		AccountValue,
	)
}

// Serve поднимает /metrics в отдельной горутине.
func Serve(addr string, log *logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		log.WithComponent("metrics").WithFields(map[string]interface{}{"addr": addr}).Info("Метрики доступны.")
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.WithComponent("metrics").WithError(err).Warn("Сервер метрик остановился.")
		}
	}()
}
