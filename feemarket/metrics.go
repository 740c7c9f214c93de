package feemarket

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rollupgas/feemarket/gas"
)

// Metrics exports the fee market's observable state: the per-dimension price
// and usage, settlement totals, and rejection counts.
type Metrics struct {
	price   *prometheus.GaugeVec
	gasUsed *prometheus.CounterVec

	burned          prometheus.Counter
	proverRewards   prometheus.Counter
	sequencerReward prometheus.Counter
	refunds         prometheus.Counter

	txSettled  prometheus.Counter
	txOutOfGas prometheus.Counter
	txRejected *prometheus.CounterVec
}

// NewMetrics builds and registers the fee-market metrics on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		price: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "feemarket",
			Name:      "gas_price",
			Help:      "Current gas price per resource dimension",
		}, []string{"resource"}),
		gasUsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feemarket",
			Name:      "gas_used_total",
			Help:      "Cumulative gas consumed per resource dimension",
		}, []string{"resource"}),
		burned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "feemarket",
			Name:      "burned_total",
			Help:      "Cumulative funds burned from base fees",
		}),
		proverRewards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "feemarket",
			Name:      "prover_rewards_total",
			Help:      "Cumulative funds rewarded to the prover pool",
		}),
		sequencerReward: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "feemarket",
			Name:      "sequencer_rewards_total",
			Help:      "Cumulative priority fees paid to the sequencer",
		}),
		refunds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "feemarket",
			Name:      "refunds_total",
			Help:      "Cumulative funds refunded to payers",
		}),
		txSettled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "feemarket",
			Name:      "tx_settled_total",
			Help:      "Transactions executed and settled",
		}),
		txOutOfGas: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "feemarket",
			Name:      "tx_out_of_gas_total",
			Help:      "Transactions that exhausted their gas budget",
		}),
		txRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feemarket",
			Name:      "tx_rejected_total",
			Help:      "Transactions rejected before execution, by reason",
		}, []string{"reason"}),
	}

	errs := errors.Join(
		reg.Register(m.price),
		reg.Register(m.gasUsed),
		reg.Register(m.burned),
		reg.Register(m.proverRewards),
		reg.Register(m.sequencerReward),
		reg.Register(m.refunds),
		reg.Register(m.txSettled),
		reg.Register(m.txOutOfGas),
		reg.Register(m.txRejected),
	)
	if errs != nil {
		return nil, errs
	}
	return m, nil
}

// ObserveBlock records a processed block and the adjusted price that will
// apply to the next block.
func (m *Metrics) ObserveBlock(res *BlockResult, nextPrice gas.Vector) {
	for i := gas.ResourceKind(0); i < gas.NumResourceKind; i++ {
		m.price.WithLabelValues(i.String()).Set(float64(nextPrice[i]))
		m.gasUsed.WithLabelValues(i.String()).Add(float64(res.GasUsed[i]))
	}
	m.burned.Add(float64(res.Burned))
	m.proverRewards.Add(float64(res.Prover))
	m.sequencerReward.Add(float64(res.SeqPay))
	for _, r := range res.Results {
		if r.Settlement == nil {
			continue
		}
		m.txSettled.Inc()
		m.refunds.Add(float64(r.Settlement.Refund))
		if r.Settlement.OutOfGas {
			m.txOutOfGas.Inc()
		}
	}
}

// ObserveRejection records a pre-execution rejection.
func (m *Metrics) ObserveRejection(err error) {
	m.txRejected.WithLabelValues(rejectionReason(err)).Inc()
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrGasPriceTooHigh):
		return "gas_price_too_high"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrInsufficientFundsForPreChecks):
		return "insufficient_funds_pre_checks"
	case errors.Is(err, ErrWrongChainID):
		return "wrong_chain_id"
	case errors.Is(err, ErrGasLimitTooHigh):
		return "gas_limit_too_high"
	case errors.Is(err, ErrBlockGasLimitReached):
		return "block_gas_limit"
	default:
		return "other"
	}
}
