package monitoring

import (
	"time"

	"github.com/sells-group/digest-cli/internal/delivery"
)

// Snapshot is the health of one delivery pass.
type Snapshot struct {
	Users         int     `json:"users"`
	Eligible      int     `json:"eligible"`
	Sent          int     `json:"sent"`
	Failed        int     `json:"failed"`
	Skipped       int     `json:"skipped"`
	TopicFailures int     `json:"topic_failures"`
	FailRate      float64 `json:"fail_rate"`

	// SpentUSD is synthesis spend since the process started.
	SpentUSD float64 `json:"spent_usd"`

	CollectedAt time.Time `json:"collected_at"`
}

// Attempted is the number of users a send was tried for.
func (s Snapshot) Attempted() int {
	return s.Sent + s.Failed
}

// SpendSource reports synthesis spend. cost.Guard satisfies it.
type SpendSource interface {
	Spent() float64
}

// Collector turns run reports into snapshots.
type Collector struct {
	spend SpendSource
	now   func() time.Time
}

// NewCollector creates a Collector. spend may be nil.
func NewCollector(spend SpendSource) *Collector {
	return &Collector{spend: spend, now: time.Now}
}

// Collect builds a snapshot from report.
func (c *Collector) Collect(report delivery.RunReport) Snapshot {
	snap := Snapshot{
		Users:         report.Users,
		Eligible:      report.Eligible,
		Sent:          report.Sent,
		Failed:        report.Failed,
		Skipped:       report.Skipped,
		TopicFailures: report.TopicFailures,
		CollectedAt:   c.now().UTC(),
	}
	if n := snap.Attempted(); n > 0 {
		snap.FailRate = float64(snap.Failed) / float64(n)
	}
	if c.spend != nil {
		snap.SpentUSD = c.spend.Spent()
	}
	return snap
}
