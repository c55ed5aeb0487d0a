package loans

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"assetflow/internal/config"
)

// fakeService records the sweeper's calls. Only the methods the sweeper uses
// do anything.
type fakeService struct {
	Service
	dueSoon    []*Loan
	overdue    []*Loan
	reminded   []int64
	advanced   []int64
	remindErr  error
	advanceErr error
}

func (f *fakeService) ListDueSoon(_ context.Context, _ time.Duration) ([]*Loan, error) {
	return f.dueSoon, nil
}

func (f *fakeService) ListOverdue(_ context.Context) ([]*Loan, error) {
	return f.overdue, nil
}

func (f *fakeService) RecordDueSoon(_ context.Context, loanID int64) error {
	f.reminded = append(f.reminded, loanID)
	return f.remindErr
}

func (f *fakeService) AdvanceOverdue(_ context.Context, loanID int64) error {
	f.advanced = append(f.advanced, loanID)
	return f.advanceErr
}

func TestSweepRemindsAndAdvances(t *testing.T) {
	svc := &fakeService{
		dueSoon: []*Loan{{ID: 1}, {ID: 2}},
		overdue: []*Loan{{ID: 3}},
	}
	sw := NewSweeper(svc, config.Default())

	sw.Sweep(context.Background())

	assert.Equal(t, []int64{1, 2}, svc.reminded)
	assert.Equal(t, []int64{3}, svc.advanced)
}

func TestSweepContinuesPastFailures(t *testing.T) {
	svc := &fakeService{
		dueSoon:    []*Loan{{ID: 1}, {ID: 2}},
		overdue:    []*Loan{{ID: 3}, {ID: 4}},
		remindErr:  errors.New("boom"),
		advanceErr: errors.New("boom"),
	}
	sw := NewSweeper(svc, config.Default())

	sw.Sweep(context.Background())

	// Every loan is attempted even when earlier ones fail.
	assert.Len(t, svc.reminded, 2)
	assert.Len(t, svc.advanced, 2)
}

// stallingService blocks inside ListDueSoon until released, holding a sweep
// pass open across ticks.
type stallingService struct {
	Service
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (s *stallingService) ListDueSoon(ctx context.Context, _ time.Duration) ([]*Loan, error) {
	if s.calls.Add(1) == 1 {
		close(s.started)
	}
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return nil, nil
}

func (s *stallingService) ListOverdue(context.Context) ([]*Loan, error) {
	return nil, nil
}

func TestRunSkipsTicksWhileSweepInProgress(t *testing.T) {
	svc := &stallingService{started: make(chan struct{}), release: make(chan struct{})}
	cfg := config.Default()
	cfg.SweepInterval = 5 * time.Millisecond
	sw := NewSweeper(svc, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()

	<-svc.started
	// Several ticks fire while the first pass is stalled; all must be skipped.
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), svc.calls.Load())

	close(svc.release)
	cancel()
	<-done
}
