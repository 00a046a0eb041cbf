package costtracker

import (
	"context"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CostEvent represents a single AI usage event and its cost.
type CostEvent struct {
	Operation string // e.g., "embedding", "generation", "evaluation"
	AmountUSD float64
	Details   map[string]interface{}
}

// OperationTotal is the accumulated spend for one operation.
type OperationTotal struct {
	Operation string  `json:"operation"`
	Events    int     `json:"events"`
	AmountUSD float64 `json:"amount_usd"`
}

// CostTracker provides methods to record and report costs.
type CostTracker interface {
	RecordCost(ctx context.Context, event CostEvent) error
	TotalCost(ctx context.Context) (float64, error)
	Breakdown(ctx context.Context) ([]OperationTotal, error)
}

var spendTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "tagforge",
	Subsystem: "llm",
	Name:      "cost_usd_total",
	Help:      "Estimated provider spend in USD by operation.",
}, []string{"operation"})

// New returns an in-process tracker. Totals live for the lifetime of the process.
func New() CostTracker {
	return &memoryTracker{byOperation: make(map[string]*OperationTotal)}
}

type memoryTracker struct {
	mu          sync.Mutex
	total       float64
	byOperation map[string]*OperationTotal
}

func (m *memoryTracker) RecordCost(ctx context.Context, event CostEvent) error {
	if event.AmountUSD < 0 {
		event.AmountUSD = 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total += event.AmountUSD
	op, ok := m.byOperation[event.Operation]
	if !ok {
		op = &OperationTotal{Operation: event.Operation}
		m.byOperation[event.Operation] = op
	}
	op.Events++
	op.AmountUSD += event.AmountUSD
	spendTotal.WithLabelValues(event.Operation).Add(event.AmountUSD)
	return nil
}

func (m *memoryTracker) TotalCost(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total, nil
}

func (m *memoryTracker) Breakdown(ctx context.Context) ([]OperationTotal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OperationTotal, 0, len(m.byOperation))
	for _, op := range m.byOperation {
		out = append(out, *op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out, nil
}
