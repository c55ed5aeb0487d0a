// internal/loans/sweeper.go
package loans

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"assetflow/internal/config"
)

// Sweeper is the periodic due-date job. One run enqueues AssetDueSoon
// reminders for loans inside the reminder window, then advances past-due
// loans to overdue. Each loan's advance is its own transaction, so a run that
// dies halfway resumes cleanly on the next tick.
type Sweeper struct {
	service Service
	cfg     config.Config
	running atomic.Bool
}

func NewSweeper(service Service, cfg config.Config) *Sweeper {
	return &Sweeper{service: service, cfg: cfg}
}

// Run ticks until ctx is cancelled. Each pass runs on its own goroutine so a
// slow pass does not stall the ticker; a tick that arrives while a pass is
// still going is skipped rather than queued.
func (sw *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sw.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !sw.running.CompareAndSwap(false, true) {
				log.Printf("sweeper: previous run still in progress, skipping tick")
				continue
			}
			go func() {
				defer sw.running.Store(false)
				sw.Sweep(ctx)
			}()
		}
	}
}

// Sweep performs one pass. Failures on individual loans are logged and do not
// stop the pass; both steps are independently retryable.
func (sw *Sweeper) Sweep(ctx context.Context) {
	window := time.Duration(sw.cfg.DueReminderDays) * 24 * time.Hour

	dueSoon, err := sw.service.ListDueSoon(ctx, window)
	if err != nil {
		log.Printf("sweeper: list due soon: %v", err)
	} else {
		for _, loan := range dueSoon {
			if err := sw.service.RecordDueSoon(ctx, loan.ID); err != nil {
				log.Printf("sweeper: due-soon reminder for loan %d: %v", loan.ID, err)
			}
		}
		if len(dueSoon) > 0 {
			log.Printf("sweeper: %d loans due within %d days", len(dueSoon), sw.cfg.DueReminderDays)
		}
	}

	overdue, err := sw.service.ListOverdue(ctx)
	if err != nil {
		log.Printf("sweeper: list overdue: %v", err)
		return
	}
	for _, loan := range overdue {
		if err := sw.service.AdvanceOverdue(ctx, loan.ID); err != nil {
			log.Printf("sweeper: advance loan %d: %v", loan.ID, err)
		}
	}
	if len(overdue) > 0 {
		log.Printf("sweeper: advanced %d loans to overdue", len(overdue))
	}
}
