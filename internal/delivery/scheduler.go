// Package delivery sends research digests to verified subscribers, at most
// once per window per user.
package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/digest-cli/internal/mail"
	"github.com/sells-group/digest-cli/internal/model"
	"github.com/sells-group/digest-cli/internal/pipeline"
	"github.com/sells-group/digest-cli/internal/resilience"
)

// Store is the subset of store.Store the scheduler needs.
type Store interface {
	ListVerifiedUsers(ctx context.Context) ([]model.User, error)
	ClaimDelivery(ctx context.Context, email string, now time.Time, window, lease time.Duration) (bool, error)
	CompleteDelivery(ctx context.Context, email string, now time.Time) error
	ReleaseDelivery(ctx context.Context, email string) error
}

// Researcher produces the summary for one topic. pipeline.Pipeline
// satisfies it.
type Researcher interface {
	Run(ctx context.Context, topic string) (*pipeline.Result, error)
}

// Config tunes a Scheduler.
type Config struct {
	Window             time.Duration
	Lease              time.Duration
	MaxConcurrentUsers int
	// Subject prefixes the digest subject line; the UTC date is appended.
	Subject          string
	BreakerThreshold int
	BreakerCooldown  time.Duration
	// Now is the scheduler clock. Defaults to time.Now.
	Now func() time.Time
}

// RunReport summarizes one pass over the verified users.
type RunReport struct {
	Users         int
	Eligible      int
	Skipped       int
	Sent          int
	Failed        int
	TopicFailures int
}

// Scheduler delivers digests to eligible verified users.
type Scheduler struct {
	store    Store
	research Researcher
	sender   mail.Sender
	renderer *Renderer
	breaker  *resilience.CircuitBreaker
	cfg      Config
}

// New creates a Scheduler.
func New(st Store, research Researcher, sender mail.Sender, renderer *Renderer, cfg Config) *Scheduler {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 30 * time.Minute
	}
	if cfg.MaxConcurrentUsers <= 0 {
		cfg.MaxConcurrentUsers = 1
	}
	if cfg.Subject == "" {
		cfg.Subject = "Your AI Research Digest"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if renderer == nil {
		renderer = NewRenderer("")
	}
	return &Scheduler{
		store:    st,
		research: research,
		sender:   sender,
		renderer: renderer,
		breaker:  resilience.NewCircuitBreaker("mail", cfg.BreakerThreshold, cfg.BreakerCooldown),
		cfg:      cfg,
	}
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeSent
	outcomeFailed
)

// Run makes one pass: every verified user whose last digest is at least one
// window old gets a fresh digest. Per-user failures are logged and counted;
// only a failure to list users is returned.
func (s *Scheduler) Run(ctx context.Context) (RunReport, error) {
	users, err := s.store.ListVerifiedUsers(ctx)
	if err != nil {
		return RunReport{}, eris.Wrap(err, "delivery: list verified users")
	}

	now := s.cfg.Now().UTC()
	report := RunReport{Users: len(users)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrentUsers)

	for _, u := range users {
		if !Eligible(u.LastSentAt, now, s.cfg.Window) || len(u.Topics) == 0 {
			report.Skipped++
			zap.L().Debug("delivery: skipping user", zap.String("email", u.Email))
			continue
		}
		report.Eligible++

		g.Go(func() error {
			out, topicFailures, err := s.deliver(gctx, u, now)
			mu.Lock()
			defer mu.Unlock()
			report.TopicFailures += topicFailures
			switch out {
			case outcomeSent:
				report.Sent++
			case outcomeSkipped:
				report.Skipped++
			case outcomeFailed:
				report.Failed++
				zap.L().Error("delivery: user failed",
					zap.String("email", u.Email),
					zap.String("kind", string(model.KindOf(err))),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("delivery: run complete",
		zap.Int("users", report.Users),
		zap.Int("eligible", report.Eligible),
		zap.Int("sent", report.Sent),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Int("topic_failures", report.TopicFailures),
	)
	return report, nil
}

// deliver claims the user's send slot, researches every topic in order,
// and mails the digest. last_sent_at moves only after the provider accepts
// the message.
func (s *Scheduler) deliver(ctx context.Context, u model.User, now time.Time) (outcome, int, error) {
	log := zap.L().With(zap.String("email", u.Email))

	claimed, err := s.store.ClaimDelivery(ctx, u.Email, now, s.cfg.Window, s.cfg.Lease)
	if err != nil {
		return outcomeFailed, 0, eris.Wrap(err, "delivery: claim")
	}
	if !claimed {
		log.Info("delivery: already claimed or sent, skipping")
		return outcomeSkipped, 0, nil
	}

	// Bookkeeping after the claim must survive cancellation of the run.
	bg := context.WithoutCancel(ctx)
	release := func() {
		if err := s.store.ReleaseDelivery(bg, u.Email); err != nil {
			log.Error("delivery: release claim", zap.Error(err))
		}
	}

	digest, topicFailures, err := s.Compose(ctx, u.Topics)
	if err != nil {
		release()
		return outcomeFailed, topicFailures, err
	}

	html, text, err := s.renderer.Render(digest)
	if err != nil {
		release()
		return outcomeFailed, topicFailures, err
	}

	msg := mail.Message{
		To:      u.Email,
		Subject: s.cfg.Subject + ": " + now.Format("2006-01-02"),
		HTML:    html,
		Text:    text,
	}
	err = s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.sender.Send(ctx, msg)
	})
	if err != nil {
		release()
		return outcomeFailed, topicFailures, model.NewFailure(model.KindDelivery, "send digest to "+u.Email, err)
	}

	if err := s.store.CompleteDelivery(bg, u.Email, now); err != nil {
		// The mail went out; the lease still blocks a resend until it lapses.
		log.Error("delivery: complete claim", zap.Error(err))
	}
	log.Info("delivery: digest sent", zap.Int("topics", len(digest.Sections)))
	return outcomeSent, topicFailures, nil
}

// Compose researches topics sequentially and returns the digest plus the
// number of failures absorbed into it. It fails only when ctx ends.
func (s *Scheduler) Compose(ctx context.Context, topics []string) (model.Digest, int, error) {
	digest := model.Digest{GeneratedAt: s.cfg.Now().UTC()}
	failures := 0

	for _, t := range topics {
		res, err := s.research.Run(ctx, t)
		if err != nil {
			if ctx.Err() != nil {
				return model.Digest{}, failures, eris.Wrapf(err, "delivery: research %q", t)
			}
			failures++
			zap.L().Warn("delivery: topic failed", zap.String("topic", t), zap.Error(err))
			digest.Sections = append(digest.Sections, model.DigestSection{
				Topic:   t,
				Summary: pipeline.ErrorBlock("Agent failed: " + err.Error()),
			})
			continue
		}
		failures += len(res.Failures)
		digest.Sections = append(digest.Sections, model.DigestSection{
			Topic:   t,
			Summary: res.State.Summary,
			Sources: res.State.Sources,
		})
	}
	return digest, failures, nil
}
