// Package reconciler runs the reconciliation pipeline end to end.
//
// A run loads raw batches from a BatchSource and passes them through four
// phases, each consuming the previous phase's output:
//   - normalize: raw rows to canonical settlement and ledger records
//   - resolve: settlement store names to canonical branches
//   - match: two-phase one-to-one pairing of ledger and settlement records
//   - aggregate: the per-branch table with a TOTAL row
//
// Cancellation is checked before every phase. A cancelled run returns no
// report. Non-fatal row anomalies from every phase are collected into the
// report's diagnostics.
//
// Example usage:
//
//	svc, err := reconciler.NewService(registry, reconciler.DefaultConfig(),
//		reconciler.WithMetrics(metrics.NewRecorder()))
//	if err != nil {
//		return err
//	}
//	report, err := svc.Reconcile(ctx, source)
package reconciler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"card-reconciliation-service/internal/aggregator"
	"card-reconciliation-service/internal/branch"
	"card-reconciliation-service/internal/matcher"
	"card-reconciliation-service/internal/metrics"
	"card-reconciliation-service/internal/models"
	"card-reconciliation-service/internal/normalizer"
	"card-reconciliation-service/pkg/errors"
	"card-reconciliation-service/pkg/logger"

	"github.com/google/uuid"
)

// Phase names, also used as metric labels
const (
	PhaseLoad      = "load"
	PhaseNormalize = "normalize"
	PhaseResolve   = "resolve"
	PhaseMatch     = "match"
	PhaseAggregate = "aggregate"
)

// Config holds run options
type Config struct {
	// Channels fixes the settlement channel columns of the report and their
	// order. Empty means the order the settlement batches arrive in.
	Channels []string                `mapstructure:"channels" json:"channels,omitempty"`
	Matching *matcher.MatchingConfig `mapstructure:"matching" json:"matching"`
}

// DefaultConfig returns the default run options
func DefaultConfig() *Config {
	return &Config{
		Matching: matcher.DefaultMatchingConfig(),
	}
}

// Validate checks the run options
func (c *Config) Validate() error {
	if c.Matching == nil {
		return errors.ConfigurationError(errors.CodeMissingConfig, "matching", nil, nil)
	}
	if err := c.Matching.Validate(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Channels))
	for _, ch := range c.Channels {
		key := strings.ToUpper(strings.TrimSpace(ch))
		if key == "" {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "channels", c.Channels,
				fmt.Errorf("channel names must not be blank"))
		}
		if seen[key] {
			return errors.ConfigurationError(errors.CodeConfigConflict, "channels", ch,
				fmt.Errorf("channel %s listed more than once", ch))
		}
		seen[key] = true
	}
	return nil
}

// Option customizes a Service
type Option func(*Service)

// WithMetrics records run metrics on rec
func WithMetrics(rec *metrics.Recorder) Option {
	return func(s *Service) { s.metrics = rec }
}

// WithClock overrides the clock used to stamp reports
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRunIDs overrides the run id generator
func WithRunIDs(next func() string) Option {
	return func(s *Service) { s.newRunID = next }
}

// Service executes reconciliation runs. A Service holds no per-run state
// and may run several reconciliations at once.
type Service struct {
	normalizer *normalizer.Normalizer
	matcher    *matcher.Matcher
	config     *Config
	metrics    *metrics.Recorder
	logger     logger.Logger
	now        func() time.Time
	newRunID   func() string
}

// NewService creates a service over the given schema registry; a nil
// registry means the built-in channel schemas and a nil config the defaults.
func NewService(registry *normalizer.Registry, config *Config, opts ...Option) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		normalizer: normalizer.New(registry),
		matcher:    matcher.NewMatcher(config.Matching),
		config:     config,
		logger:     logger.GetGlobalLogger().WithComponent("reconciler"),
		now:        time.Now,
		newRunID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Registry returns the schema registry the service normalizes with
func (s *Service) Registry() *normalizer.Registry {
	return s.normalizer.Registry()
}

// Reconcile loads every input from src and runs the pipeline over it
func (s *Service) Reconcile(ctx context.Context, src BatchSource) (*aggregator.ReconciliationReport, error) {
	r := s.newRun()

	var in Input
	err := r.phase(ctx, PhaseLoad, func(t *logger.PhaseTracker) error {
		var err error
		if in.Ledger, err = src.LoadLedger(ctx); err != nil {
			return wrapLoad(err, "ledger")
		}
		if in.Settlements, err = src.LoadSettlements(ctx); err != nil {
			return wrapLoad(err, "settlement files")
		}
		if in.BranchKey, err = src.LoadBranchKey(ctx); err != nil {
			return wrapLoad(err, "branch key")
		}
		t.Set("settlement_batches", len(in.Settlements)).Set("branch_key_entries", len(in.BranchKey))
		return nil
	})
	if err != nil {
		return nil, r.finish(err)
	}

	report, err := r.execute(ctx, &in)
	return report, r.finish(err)
}

// ReconcileBatches runs the pipeline over already loaded input
func (s *Service) ReconcileBatches(ctx context.Context, in *Input) (*aggregator.ReconciliationReport, error) {
	r := s.newRun()
	report, err := r.execute(ctx, in)
	return report, r.finish(err)
}

func wrapLoad(err error, what string) error {
	return errors.WrapIfNeeded(err, errors.CategoryFile, errors.CodeFileCorrupted,
		fmt.Sprintf("failed to load %s", what))
}

// run carries the state of one reconciliation
type run struct {
	svc    *Service
	id     string
	logger logger.Logger

	channels    []string
	settlements []models.SettlementRecord
	ledger      []models.LedgerRecord
	diagnostics []*errors.ReconcilerError
}

func (s *Service) newRun() *run {
	id := s.newRunID()
	return &run{
		svc:         s,
		id:          id,
		logger:      s.logger.WithField("run_id", id),
		diagnostics: make([]*errors.ReconcilerError, 0),
	}
}

// phase runs fn unless ctx is already done
func (r *run) phase(ctx context.Context, name string, fn func(t *logger.PhaseTracker) error) error {
	if err := ctx.Err(); err != nil {
		return errors.ReconciliationError(errors.CodeCancelled, name, err)
	}

	t := logger.StartPhase(r.logger, name)
	if err := fn(t); err != nil {
		r.svc.metrics.ObservePhase(name, t.Fail(err))
		return err
	}
	r.svc.metrics.ObservePhase(name, t.Complete())
	return nil
}

func (r *run) execute(ctx context.Context, in *Input) (*aggregator.ReconciliationReport, error) {
	if in == nil || in.Ledger == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "ledger", nil, nil).
			WithSuggestion("provide the ledger export for the period")
	}

	r.logger.WithFields(logger.Fields{
		"ledger_source":      in.Ledger.Source,
		"settlement_batches": len(in.Settlements),
	}).Info("Starting reconciliation run")

	if err := r.phase(ctx, PhaseNormalize, func(t *logger.PhaseTracker) error {
		return r.normalize(t, in)
	}); err != nil {
		return nil, err
	}

	var resolution *branch.Resolution
	if err := r.phase(ctx, PhaseResolve, func(t *logger.PhaseTracker) error {
		resolver, err := branch.NewResolver(in.BranchKey)
		if err != nil {
			return err
		}
		resolution = resolver.Resolve(r.settlements)
		r.collect(resolution.Diagnostics)
		t.Set("resolved", len(resolution.Resolved)).Set("unresolved", len(resolution.Unresolved))
		return nil
	}); err != nil {
		return nil, err
	}

	var result *matcher.Result
	if err := r.phase(ctx, PhaseMatch, func(t *logger.PhaseTracker) error {
		var err error
		if result, err = r.svc.matcher.Match(resolution.Records, r.ledger); err != nil {
			return err
		}
		t.Set("exact", result.Summary.Exact).
			Set("fallback", result.Summary.Fallback).
			Set("unmatched", result.Summary.Unmatched)
		return nil
	}); err != nil {
		return nil, err
	}

	var report *aggregator.ReconciliationReport
	if err := r.phase(ctx, PhaseAggregate, func(t *logger.PhaseTracker) error {
		var err error
		report, err = aggregator.New(r.channels...).Aggregate(resolution.Records, r.ledger, result)
		if err != nil {
			return err
		}
		t.Set("branches", report.Stats.Branches)
		return nil
	}); err != nil {
		return nil, err
	}

	report.RunID = r.id
	report.GeneratedAt = r.svc.now().UTC()
	report.Diagnostics = r.diagnostics
	r.record(report)

	return report, nil
}

// normalize converts the ledger and every settlement batch. A channel may
// supply at most one settlement batch per run.
func (r *run) normalize(t *logger.PhaseTracker, in *Input) error {
	n := r.svc.normalizer

	ledger, err := n.Normalize(in.Ledger)
	if err != nil {
		return err
	}
	if ledger.Kind != models.KindLedger {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "ledger", in.Ledger.Channel,
			fmt.Errorf("channel %s is a %s channel", ledger.Channel, ledger.Kind))
	}
	r.ledger = ledger.Ledger
	r.absorb(ledger)

	seen := make(map[string]bool, len(in.Settlements))
	var arrived []string
	for _, batch := range in.Settlements {
		c, err := n.Normalize(batch)
		if err != nil {
			return err
		}
		if c.Kind != models.KindSettlement {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "settlement", batch.Channel,
				fmt.Errorf("channel %s is a %s channel", c.Channel, c.Kind))
		}
		key := strings.ToUpper(c.Channel)
		if seen[key] {
			return errors.ConfigurationError(errors.CodeConfigConflict, "settlement", c.Channel,
				fmt.Errorf("more than one settlement batch for channel %s", c.Channel))
		}
		seen[key] = true
		arrived = append(arrived, c.Channel)
		r.settlements = append(r.settlements, c.Settlements...)
		r.absorb(c)
	}

	r.channels = r.svc.config.Channels
	if len(r.channels) == 0 {
		r.channels = arrived
	}

	t.Set("ledger_records", len(r.ledger)).Set("settlement_records", len(r.settlements))
	return nil
}

func (r *run) absorb(c *normalizer.Canonical) {
	r.svc.metrics.RecordRecords(string(c.Kind), c.Channel, c.Stats.Kept)
	r.svc.metrics.RecordDropped(c.Channel, c.Stats.Dropped)
	r.collect(c.Diagnostics)
}

func (r *run) collect(diags []*errors.ReconcilerError) {
	r.diagnostics = append(r.diagnostics, diags...)
}

// record publishes the finished report's figures
func (r *run) record(report *aggregator.ReconciliationReport) {
	m := r.svc.metrics
	m.RecordMatches(report.MatchSummary.Exact, report.MatchSummary.Fallback, report.MatchSummary.Unmatched)
	m.RecordUnmatchedSettlement(report.MatchSummary.UnmatchedSettlement)
	for _, d := range report.Diagnostics {
		m.RecordDiagnostic(string(d.Code))
	}
	for _, b := range report.Rows() {
		m.SetBranchNetVariance(b.BranchName, b.NetVariance)
	}
	total := report.Total()
	m.SetTotal("ledger_total", total.LedgerTotal)
	m.SetTotal("gross_paid", total.GrossPaid)
	m.SetTotal("variance", total.Variance)
	m.SetTotal("net_variance", total.NetVariance)

	r.logger.WithFields(logger.Fields{
		"branches":    report.Stats.Branches,
		"exact":       report.MatchSummary.Exact,
		"fallback":    report.MatchSummary.Fallback,
		"unmatched":   report.MatchSummary.Unmatched,
		"diagnostics": len(report.Diagnostics),
		"net":         total.NetVariance.StringFixed(2),
	}).Info("Reconciliation run complete")
}

// finish stamps the run outcome and passes err through
func (r *run) finish(err error) error {
	status := "success"
	switch {
	case err == nil:
	case errors.HasCode(err, errors.CodeCancelled):
		status = "cancelled"
	default:
		status = "failure"
	}
	if err != nil {
		r.logger.WithError(err).WithField("status", status).Error("Reconciliation run failed")
	}
	r.svc.metrics.RunFinished(status, r.svc.now())
	return err
}
