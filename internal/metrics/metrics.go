// Package metrics - prometheus метрики гаража.
//
//   - garage_robot_fetch_total{coordinator,result}  обновления роботов
//   - garage_order_fetch_total{coordinator,result}  обновления ордеров
//   - garage_orders_made_total{coordinator,result}  создание ордеров
//   - garage_reconciliations_total{source,outcome}  результаты сверки слота
//   - garage_slots                                  число слотов в гараже
//   - garage_ws_clients                             подключенные websocket клиенты
//
// Метрики регистрируются в init() и отдаются на /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const (
	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	RobotFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "garage_robot_fetch_total",
			Help: "Robot refreshes against coordinators",
		},
		[]string{"coordinator", "result"},
	)

	OrderFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "garage_order_fetch_total",
			Help: "Order refreshes against coordinators",
		},
		[]string{"coordinator", "result"},
	)

	OrdersMade = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "garage_orders_made_total",
			Help: "Order creation attempts",
		},
		[]string{"coordinator", "result"},
	)

	// outcome: adopted_last, demoted, adopted_active, merged, ignored, unchanged
	Reconciliations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "garage_reconciliations_total",
			Help: "Slot reconciliation outcomes",
		},
		[]string{"source", "outcome"},
	)

	Slots = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "garage_slots",
			Help: "Slots held by the garage",
		},
	)

	WSClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "garage_ws_clients",
			Help: "Connected websocket clients",
		},
	)
)

func init() {
	prometheus.MustRegister(RobotFetches, OrderFetches, OrdersMade, Reconciliations, Slots, WSClients)
}

// Result переводит ошибку в метку result
func Result(err error) string {
	if err != nil {
		return ResultError
	}

	return ResultSuccess
}
