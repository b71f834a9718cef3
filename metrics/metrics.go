// Package metrics exports exchange activity as prometheus collectors, fed from the
// receipts of committed transactions.
package metrics

import (
	"strings"

	"github.com/KyberNetwork/dmm-smart-contracts/chain"
	"github.com/KyberNetwork/dmm-smart-contracts/protocols/dmm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dmm"

// Metrics holds the exchange collectors. Observe is safe for concurrent use.
type Metrics struct {
	block        prometheus.Gauge
	transactions prometheus.Counter
	events       *prometheus.CounterVec
	swaps        *prometheus.CounterVec
	mints        *prometheus.CounterVec
	burns        *prometheus.CounterVec
	poolsCreated *prometheus.CounterVec
	reserves     *prometheus.GaugeVec
}

// NewMetrics creates the exchange collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		block: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "block_number",
			Help:      "Number of the last committed block.",
		}),
		transactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "transactions_total",
			Help:      "Committed transactions.",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "events_total",
			Help:      "Committed events, per event name.",
		}, []string{"event"}),
		swaps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "swaps_total",
			Help:      "Swaps, per pool.",
		}, []string{"pool"}),
		mints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "mints_total",
			Help:      "Liquidity additions, per pool.",
		}, []string{"pool"}),
		burns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "burns_total",
			Help:      "Liquidity removals, per pool.",
		}, []string{"pool"}),
		poolsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "factory",
			Name:      "pools_created_total",
			Help:      "Pools created, per factory.",
		}, []string{"factory"}),
		reserves: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "reserve",
			Help:      "Reserves of each pool as of its last Sync, in token base units.",
		}, []string{"pool", "token", "kind"}),
	}
	reg.MustRegister(m.block, m.transactions, m.events, m.swaps, m.mints, m.burns, m.poolsCreated, m.reserves)
	return m
}

// Attach feeds the receipts of c into m until the returned function is called.
func (m *Metrics) Attach(c *chain.Chain) (detach func()) {
	return c.Subscribe(m.Observe)
}

func label(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

func float(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	return v.Float64()
}

// Observe records the events of one committed transaction.
func (m *Metrics) Observe(r chain.Receipt) {
	m.block.Set(float64(r.BlockNumber))
	m.transactions.Inc()
	for _, ev := range r.Events {
		m.events.WithLabelValues(ev.Name()).Inc()
		switch e := ev.(type) {
		case dmm.Swap:
			m.swaps.WithLabelValues(label(e.Pool)).Inc()
		case dmm.Mint:
			m.mints.WithLabelValues(label(e.Pool)).Inc()
		case dmm.Burn:
			m.burns.WithLabelValues(label(e.Pool)).Inc()
		case dmm.PoolCreated:
			m.poolsCreated.WithLabelValues(label(e.Factory)).Inc()
		case dmm.Sync:
			pool := label(e.Pool)
			m.reserves.WithLabelValues(pool, "0", "real").Set(float(e.Reserve0))
			m.reserves.WithLabelValues(pool, "1", "real").Set(float(e.Reserve1))
			m.reserves.WithLabelValues(pool, "0", "virtual").Set(float(e.VReserve0))
			m.reserves.WithLabelValues(pool, "1", "virtual").Set(float(e.VReserve1))
		}
	}
}
