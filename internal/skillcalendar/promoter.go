package skillcalendar

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/ascentxr/opsdeck/pkg/panicerr"
)

// Promoter runs PromoteDue on a cron schedule.
type Promoter struct {
	service  *Service
	cron     *cron.Cron
	promoted func(n int)
}

type PromoterOption func(*Promoter)

// WithPromotedHook registers fn to receive the count of every promotion run.
func WithPromotedHook(fn func(n int)) PromoterOption {
	return func(p *Promoter) { p.promoted = fn }
}

// NewPromoter parses schedule as a standard five-field cron expression evaluated
// in the service's location.
func NewPromoter(service *Service, schedule string, opts ...PromoterOption) (*Promoter, error) {
	c := cron.New(cron.WithLocation(service.cfg.Location))
	p := &Promoter{service: service, cron: c}
	for _, opt := range opts {
		opt(p)
	}
	if _, err := c.AddFunc(schedule, p.run); err != nil {
		return nil, fmt.Errorf("invalid promote schedule %q: %w", schedule, err)
	}
	return p, nil
}

// Start promotes once immediately, then on schedule until ctx is done.
func (p *Promoter) Start(ctx context.Context) {
	p.run()
	p.cron.Start()
	go func() {
		<-ctx.Done()
		<-p.cron.Stop().Done()
	}()
}

func (p *Promoter) run() {
	ctx := context.Background()
	err := panicerr.Safe(func() error {
		n, err := p.service.PromoteDue(ctx)
		if n > 0 {
			slog.InfoContext(ctx, "promoted due calendar entries", "count", n)
		}
		if p.promoted != nil {
			p.promoted(n)
		}
		return err
	})()
	if err != nil {
		slog.ErrorContext(ctx, "failed to promote calendar entries", "error", err)
	}
}
