package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/BlockApex/bundl-controller-service/internal/domain"
)

type dueListerStub struct {
	bundles []domain.Bundle
	err     error
}

func (s *dueListerStub) ListDueBundles(ctx context.Context, now int64) ([]domain.Bundle, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.bundles, nil
}

type triggerCall struct {
	caller    string
	owner     string
	bundleID  uint64
	recipient string
}

type engineStub struct {
	calls []triggerCall
	errs  map[uint64]error
}

func (s *engineStub) Trigger(ctx context.Context, caller, owner string, bundleID uint64, recipientAccount string) (*domain.Payment, error) {
	s.calls = append(s.calls, triggerCall{caller, owner, bundleID, recipientAccount})
	if err, ok := s.errs[bundleID]; ok {
		return nil, err
	}
	return &domain.Payment{Owner: owner, BundleID: bundleID, Amount: 10}, nil
}

func newTestJobs(repo DueBundleLister, engine TriggerEngine) *Jobs {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewJobs(repo, engine, "ops-trigger", logger)
}

func TestProcessDueBundles_TriggersEachDueBundle(t *testing.T) {
	repo := &dueListerStub{bundles: []domain.Bundle{
		{Owner: "user_1", BundleID: 0},
		{Owner: "user_2", BundleID: 3},
	}}
	engine := &engineStub{}
	jobs := newTestJobs(repo, engine)

	jobs.ProcessDueBundles()

	if len(engine.calls) != 2 {
		t.Fatalf("expected 2 trigger calls, got %d", len(engine.calls))
	}
	for _, call := range engine.calls {
		if call.caller != "ops-trigger" {
			t.Fatalf("scan must trigger as the scheduler authority, got %q", call.caller)
		}
		if call.recipient != "" {
			t.Fatalf("scan must defer to the bundle's registered recipient, got %q", call.recipient)
		}
	}
}

func TestProcessDueBundles_ContinuesPastGatingFailures(t *testing.T) {
	repo := &dueListerStub{bundles: []domain.Bundle{
		{Owner: "user_1", BundleID: 0},
		{Owner: "user_1", BundleID: 1},
		{Owner: "user_1", BundleID: 2},
	}}
	engine := &engineStub{errs: map[uint64]error{
		0: ErrIntervalNotPassed,
		1: ErrInsufficientFunds,
	}}
	jobs := newTestJobs(repo, engine)

	jobs.ProcessDueBundles()

	if len(engine.calls) != 3 {
		t.Fatalf("gating failures must not abort the scan, got %d calls", len(engine.calls))
	}
}

func TestProcessDueBundles_AbortsWhenListFails(t *testing.T) {
	repo := &dueListerStub{err: errors.New("db unavailable")}
	engine := &engineStub{}
	jobs := newTestJobs(repo, engine)

	jobs.ProcessDueBundles()

	if len(engine.calls) != 0 {
		t.Fatal("no triggers expected when the due-bundle query fails")
	}
}
