package cost

import (
	"sync"

	"go.uber.org/zap"
)

// Guard is a spend ceiling for synthesis calls. The running total is kept
// for the lifetime of the process and is only cleared by Reset; it does not
// roll over at midnight.
type Guard struct {
	calc   *Calculator
	model  string
	budget float64

	mu    sync.Mutex
	spent float64
}

// NewGuard creates a Guard that prices calls against model and admits them
// while the total stays within budget (USD).
func NewGuard(calc *Calculator, model string, budget float64) *Guard {
	return &Guard{calc: calc, model: model, budget: budget}
}

// Estimate prices a prospective call.
func (g *Guard) Estimate(inputTokens, outputTokens int) float64 {
	return g.calc.Tokens(g.model, inputTokens, outputTokens)
}

// Admit reports whether cost fits in the remaining budget and, if it does,
// adds it to the running total. Check and add happen under one lock.
func (g *Guard) Admit(cost float64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.spent+cost > g.budget {
		zap.L().Warn("cost: budget exceeded, call rejected",
			zap.Float64("cost", cost),
			zap.Float64("spent", g.spent),
			zap.Float64("budget", g.budget),
		)
		return false
	}
	g.spent += cost
	return true
}

// Spent returns the admitted total.
func (g *Guard) Spent() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.spent
}

// Remaining returns the unspent budget.
func (g *Guard) Remaining() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.budget - g.spent
}

// Reset clears the running total.
func (g *Guard) Reset() {
	g.mu.Lock()
	g.spent = 0
	g.mu.Unlock()
}
