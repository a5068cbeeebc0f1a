// Package memory implements the immune memory store: the aggregate
// holding patterns, recipient profiles, risk signals, the adaptation
// trail, and the resilience score.
//
// The store is a single logical actor over one mutable aggregate per
// agent/wallet. All mutations serialize behind one RWMutex; reads that
// tolerate slightly stale data are served from a lock-free snapshot.
// No operation here performs blocking I/O on the hot path: external
// calls (reasoning, payment execution) happen before a decision reaches
// RecordTransactionOutcome.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/agentic-finance/kestrel/internal/adapt"
	"github.com/agentic-finance/kestrel/internal/detect"
	"github.com/agentic-finance/kestrel/internal/domain"
	"github.com/agentic-finance/kestrel/internal/ledger"
	"github.com/agentic-finance/kestrel/internal/profile"
	"github.com/agentic-finance/kestrel/internal/resilience"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnknownSignal  = errors.New("unknown risk signal")
	ErrUnknownPattern = errors.New("unknown pattern")
)

// Profiles cached per recipient live this long before a dashboard read
// falls back to the store.
const profileCacheTTL = 10 * time.Minute

// Options holds the store's optional collaborators. All of them may be
// nil; the store then runs purely in memory.
type Options struct {
	Repository domain.Repository
	Cache      domain.Cache
	Bus        domain.EventBus
	AgentID    string
}

// Store is the immune memory aggregate root.
type Store struct {
	mu sync.RWMutex

	ledger   *ledger.Ledger
	builder  *profile.Builder
	registry *detect.Registry

	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	agentID string

	patterns     map[domain.PatternKey]*domain.EconomicPattern
	patternsByID map[string]*domain.EconomicPattern
	profiles     map[string]*domain.RecipientProfile
	signals      []*domain.RiskSignal
	signalsByID  map[string]*domain.RiskSignal
	adaptations  []*domain.AdaptationEvent
	score        float64
	lastUpdated  time.Time

	snapshot atomic.Pointer[domain.MemorySnapshot]
	validate *validator.Validate
}

// New creates an immune memory store starting from the neutral score.
func New(led *ledger.Ledger, builder *profile.Builder, registry *detect.Registry, opts Options) *Store {
	if opts.AgentID == "" {
		opts.AgentID = "agent-default"
	}
	s := &Store{
		ledger:       led,
		builder:      builder,
		registry:     registry,
		repo:         opts.Repository,
		cache:        opts.Cache,
		bus:          opts.Bus,
		agentID:      opts.AgentID,
		patterns:     make(map[domain.PatternKey]*domain.EconomicPattern),
		patternsByID: make(map[string]*domain.EconomicPattern),
		profiles:     make(map[string]*domain.RecipientProfile),
		signalsByID:  make(map[string]*domain.RiskSignal),
		score:        domain.ResilienceInitial,
		lastUpdated:  time.Now().UTC(),
		validate:     validator.New(),
	}
	s.publishSnapshot()
	return s
}

// Load hydrates the aggregate from the repository. Called once at
// startup, after ledger.Load.
func (s *Store) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}

	patterns, err := s.repo.ListPatterns(ctx)
	if err != nil {
		return fmt.Errorf("failed to load patterns: %w", err)
	}
	signals, err := s.repo.ListSignals(ctx)
	if err != nil {
		return fmt.Errorf("failed to load signals: %w", err)
	}
	adaptations, err := s.repo.ListAdaptations(ctx)
	if err != nil {
		return fmt.Errorf("failed to load adaptations: %w", err)
	}
	score, updated, err := s.repo.GetMemoryState(ctx)
	if err != nil {
		return fmt.Errorf("failed to load memory state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range patterns {
		s.patterns[p.Key()] = p
		s.patternsByID[p.ID] = p
	}
	s.signals = signals
	for _, sig := range signals {
		s.signalsByID[sig.ID] = sig
	}
	s.adaptations = adaptations
	s.score = resilience.Clamp(score)
	if !updated.IsZero() {
		s.lastUpdated = updated
	}

	// Profiles are derived state: rebuild rather than persist.
	for _, tx := range s.ledger.All() {
		if _, ok := s.profiles[tx.Recipient]; ok {
			continue
		}
		s.profiles[tx.Recipient] = s.builder.Build(
			tx.Recipient, s.ledger.ByRecipient(tx.Recipient), s.ledger.TotalSpend())
	}

	s.publishSnapshot()
	return nil
}

// RecordResult summarizes the state changes one decision produced.
type RecordResult struct {
	TxID            string                    `json:"txId"`
	PatternsFired   []*domain.EconomicPattern `json:"patternsFired,omitempty"`
	Signal          *domain.RiskSignal        `json:"signal,omitempty"`
	Profile         *domain.RecipientProfile  `json:"profile"`
	ResilienceScore int                       `json:"resilienceScore"`
	Band            domain.ResilienceBand     `json:"band"`
}

// RecordTransactionOutcome is the sole entry point after the reasoning
//// layer has decided on a transaction. Atomically: appends the
// transaction to the ledger, rebuilds the recipient profile, merges
// detector and decision-label patterns, applies the clamped score
// delta, and raises a risk signal for HIGH or CRITICAL threats.
//
// Validation failures reject the whole call before any state changes.
func (s *Store) RecordTransactionOutcome(ctx context.Context, tx *domain.Transaction, decision *domain.Decision) (*RecordResult, error) {
	if tx == nil || decision == nil {
		return nil, fmt.Errorf("%w: transaction and decision are required", ErrInvalidInput)
	}
	if tx.ID == "" {
		return nil, fmt.Errorf("%w: transaction id is required", ErrInvalidInput)
	}
	if err := s.validate.Struct(tx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.validate.Struct(decision); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The ledger append is the only remaining step that can fail
	// (duplicate id); everything after it is pure in-memory compute, so
	// the all-or-nothing contract holds without staging.
	if err := s.ledger.Append(ctx, tx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	now := time.Now().UTC()
	result := &RecordResult{TxID: tx.ID}

	// (a) Recompute and upsert the recipient profile.
	prof := s.builder.Build(tx.Recipient, s.ledger.ByRecipient(tx.Recipient), s.ledger.TotalSpend())
	s.profiles[tx.Recipient] = prof
	result.Profile = prof
	s.writeProfileCache(ctx, prof)

	// (b) Run detectors and merge whatever fired, then append an
	// occurrence for every pattern label the decision carries.
	for _, fresh := range s.registry.DetectAll(tx, s.ledger) {
		merged := s.upsertPattern(ctx, fresh)
		result.PatternsFired = append(result.PatternsFired, merged)
	}
	severity := decision.ThreatLevel.Severity()
	for _, label := range decision.PatternsDetected {
		s.appendLabelOccurrence(ctx, domain.PatternType(label), tx, decision, severity)
	}

	// (c) Apply the clamped score delta.
	s.score = resilience.Apply(s.score, decision.ResilienceImpact)

	// (d) Raise a signal for HIGH or CRITICAL decisions.
	if decision.ThreatLevel.AtLeastHigh() {
		sig := &domain.RiskSignal{
			ID:           uuid.New().String(),
			PatternType:  decision.PrimaryPatternType(),
			Severity:     severity,
			Description:  fmt.Sprintf("%s threat on payment of %.2f to %s", decision.ThreatLevel, tx.Amount, tx.Recipient),
			DetectedAt:   now,
			RelatedTxIDs: []string{tx.ID},
		}
		s.signals = append(s.signals, sig)
		s.signalsByID[sig.ID] = sig
		result.Signal = sig
		s.persistSignal(ctx, sig)
		s.publishEvent(ctx, domain.TopicSignalRaised, sig)
	}

	s.lastUpdated = now
	s.assertScoreBounds()
	s.persistState(ctx)
	s.publishSnapshot()

	result.ResilienceScore = s.scoreLocked()
	result.Band = resilience.Band(s.score)
	s.publishEvent(ctx, domain.TopicDecisionRecorded, result)
	return result, nil
}

// upsertPattern merges a freshly detected pattern into the aggregate.
// The merge key is (type, recipient), not the fresh id: repeat
// detections grow one pattern instead of duplicating it. Threat level,
// impact, and description come from the fresh detection; identity,
// detection time, confidence, and the active flag stay with the
// existing pattern.
func (s *Store) upsertPattern(ctx context.Context, fresh *domain.EconomicPattern) *domain.EconomicPattern {
	existing, ok := s.patterns[fresh.Key()]
	if !ok {
		s.patterns[fresh.Key()] = fresh
		s.patternsByID[fresh.ID] = fresh
		s.persistPattern(ctx, fresh)
		return fresh
	}

	occ := fresh.Occurrences[0]
	s.assertOccurrenceInLedger(occ.TxID)
	existing.Occurrences = append(existing.Occurrences, occ)
	existing.ThreatLevel = fresh.ThreatLevel
	existing.EstimatedImpact = fresh.EstimatedImpact
	existing.Description = fresh.Description
	s.persistPattern(ctx, existing)
	return existing
}

// appendLabelOccurrence records a decision-labeled pattern hit. When a
// detector already appended an occurrence for this transaction, the
// label is a duplicate view of the same evidence and is skipped.
func (s *Store) appendLabelOccurrence(ctx context.Context, t domain.PatternType, tx *domain.Transaction, decision *domain.Decision, severity float64) {
	key := domain.PatternKey{Type: t, Recipient: tx.Recipient}
	existing, ok := s.patterns[key]
	if !ok {
		p := &domain.EconomicPattern{
			ID:          uuid.New().String(),
			Type:        t,
			Recipient:   tx.Recipient,
			Description: fmt.Sprintf("%s flagged by reasoning decision for %s", t, tx.Recipient),
			DetectedAt:  time.Now().UTC(),
			Occurrences: []domain.PatternOccurrence{{
				TxID:      tx.ID,
				Timestamp: tx.Timestamp,
				Severity:  severity,
				Context:   fmt.Sprintf("decision: %s", decision.Recommendation),
			}},
			ThreatLevel:     decision.ThreatLevel,
			EstimatedImpact: tx.Amount,
			Active:          true,
			Confidence:      0.5,
		}
		s.patterns[key] = p
		s.patternsByID[p.ID] = p
		s.persistPattern(ctx, p)
		return
	}

	if last := existing.LatestOccurrence(); last != nil && last.TxID == tx.ID {
		return
	}
	s.assertOccurrenceInLedger(tx.ID)
	existing.Occurrences = append(existing.Occurrences, domain.PatternOccurrence{
		TxID:      tx.ID,
		Timestamp: tx.Timestamp,
		Severity:  severity,
		Context:   fmt.Sprintf("decision: %s", decision.Recommendation),
	})
	existing.ThreatLevel = decision.ThreatLevel
	s.persistPattern(ctx, existing)
}

// AdaptSensitivity consumes outcome feedback for a pattern type,
// nudging the learning confidence of every known pattern of that type
// and appending to the adaptation audit trail.
func (s *Store) AdaptSensitivity(ctx context.Context, patternType domain.PatternType, outcome domain.AdaptationOutcome) (*domain.AdaptationEvent, error) {
	if !domain.ValidPatternType(string(patternType)) {
		return nil, fmt.Errorf("%w: unknown pattern type %q", ErrInvalidInput, patternType)
	}
	if outcome != domain.OutcomeSuccess && outcome != domain.OutcomeFailure {
		return nil, fmt.Errorf("%w: outcome must be success or failure", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	event := adapt.NewEvent(patternType, outcome)
	s.adaptations = append(s.adaptations, event)

	for _, p := range s.patterns {
		if p.Type != patternType {
			continue
		}
		p.Confidence = adapt.NextConfidence(p.Confidence, outcome)
		s.persistPattern(ctx, p)
	}

	s.lastUpdated = event.Timestamp
	if s.repo != nil {
		if err := s.repo.SaveAdaptation(ctx, event); err != nil {
			slog.Error("failed to persist adaptation event", "error", err)
		}
	}
	s.persistState(ctx)
	s.publishSnapshot()
	s.publishEvent(ctx, domain.TopicAdaptationApplied, event)
	return event, nil
}

// ResolveSignal marks a risk signal resolved. Resolution is an operator
// action; nothing inside the engine triggers it.
func (s *Store) ResolveSignal(ctx context.Context, signalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig, ok := s.signalsByID[signalID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSignal, signalID)
	}
	sig.Resolved = true
	s.lastUpdated = time.Now().UTC()
	s.persistSignal(ctx, sig)
	s.publishSnapshot()
	return nil
}

// ResolvePattern marks a pattern inactive. Like signal resolution this
// is operator-only; re-detection does not flip a resolved pattern back
// to active.
func (s *Store) ResolvePattern(ctx context.Context, patternID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.patternsByID[patternID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPattern, patternID)
	}
	p.Active = false
	s.lastUpdated = time.Now().UTC()
	s.persistPattern(ctx, p)
	s.publishSnapshot()
	return nil
}

// ResilienceScore returns the current score as an integer in [0,100].
func (s *Store) ResilienceScore() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scoreLocked()
}

// Band returns the current qualitative score band.
func (s *Store) Band() domain.ResilienceBand {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return resilience.Band(s.score)
}

// ActiveRiskSignals returns unresolved signals, most recent first.
func (s *Store) ActiveRiskSignals() []*domain.RiskSignal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.RiskSignal, 0, len(s.signals))
	for i := len(s.signals) - 1; i >= 0; i-- {
		if !s.signals[i].Resolved {
			out = append(out, cloneSignal(s.signals[i]))
		}
	}
	return out
}

// Patterns returns every known pattern, active and inactive. Callers
// filter on Active as needed.
func (s *Store) Patterns() []*domain.EconomicPattern {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.EconomicPattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		out = append(out, clonePattern(p))
	}
	return out
}

// RecipientProfile returns the profile for a recipient. The false
// return is an absence signal for unknown recipients, not an error.
func (s *Store) RecipientProfile(recipient string) (*domain.RecipientProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[recipient]
	if !ok {
		return nil, false
	}
	return cloneProfile(p), true
}

// Adaptations returns the adaptation audit trail in append order.
func (s *Store) Adaptations() []*domain.AdaptationEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.AdaptationEvent, len(s.adaptations))
	for i, e := range s.adaptations {
		c := *e
		out[i] = &c
	}
	return out
}

// StatusView is a consistent read of the headline engine state.
type StatusView struct {
	ResilienceScore  int                   `json:"resilienceScore"`
	Band             domain.ResilienceBand `json:"band"`
	ActiveSignals    []*domain.RiskSignal  `json:"activeSignals"`
	PatternCount     int                   `json:"patternCount"`
	TransactionCount int                   `json:"transactionCount"`
	LastUpdated      time.Time             `json:"lastUpdated"`
}

// Status returns score, band, and active signals from one consistent
// view of the aggregate.
func (s *Store) Status() *StatusView {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make([]*domain.RiskSignal, 0, len(s.signals))
	for i := len(s.signals) - 1; i >= 0; i-- {
		if !s.signals[i].Resolved {
			active = append(active, cloneSignal(s.signals[i]))
		}
	}

	return &StatusView{
		ResilienceScore:  s.scoreLocked(),
		Band:             resilience.Band(s.score),
		ActiveSignals:    active,
		PatternCount:     len(s.patterns),
		TransactionCount: s.ledger.Len(),
		LastUpdated:      s.lastUpdated,
	}
}

// Snapshot returns the latest lock-free memory snapshot. Dashboards
// read this; it may trail the write path by one mutation.
func (s *Store) Snapshot() *domain.MemorySnapshot {
	return s.snapshot.Load()
}

// scoreLocked rounds the score for presentation. Caller holds a lock.
func (s *Store) scoreLocked() int {
	return int(math.Round(s.score))
}

// assertScoreBounds surfaces an internal invariant violation. After
// clamping the score can never leave [0,100]; seeing it outside means a
// bug upstream, which must reach the operator rather than be swallowed.
func (s *Store) assertScoreBounds() {
	if s.score < domain.ResilienceMin || s.score > domain.ResilienceMax {
		slog.Error("invariant violation: resilience score out of bounds",
			"score", s.score,
		)
		s.score = resilience.Clamp(s.score)
	}
}

// assertOccurrenceInLedger surfaces occurrences referencing unknown
// transactions. Should not occur under correct use.
func (s *Store) assertOccurrenceInLedger(txID string) {
	if s.ledger.Get(txID) == nil {
		slog.Error("invariant violation: pattern occurrence references unknown transaction",
			"tx_id", txID,
		)
	}
}

// publishSnapshot rebuilds the lock-free snapshot. Caller holds the
// write lock (or is the constructor).
func (s *Store) publishSnapshot() {
	snap := &domain.MemorySnapshot{
		Patterns:        make([]*domain.EconomicPattern, 0, len(s.patterns)),
		Profiles:        make(map[string]*domain.RecipientProfile, len(s.profiles)),
		Signals:         make([]*domain.RiskSignal, 0, len(s.signals)),
		Adaptations:     make([]*domain.AdaptationEvent, 0, len(s.adaptations)),
		ResilienceScore: s.scoreLocked(),
		Band:            resilience.Band(s.score),
		LastUpdated:     s.lastUpdated,
	}
	for _, p := range s.patterns {
		snap.Patterns = append(snap.Patterns, clonePattern(p))
	}
	for id, p := range s.profiles {
		if p != nil {
			snap.Profiles[id] = cloneProfile(p)
		}
	}
	for _, sig := range s.signals {
		snap.Signals = append(snap.Signals, cloneSignal(sig))
	}
	for _, e := range s.adaptations {
		c := *e
		snap.Adaptations = append(snap.Adaptations, &c)
	}
	s.snapshot.Store(snap)
}

// writeProfileCache caches the recomputed profile, best-effort.
func (s *Store) writeProfileCache(ctx context.Context, p *domain.RecipientProfile) {
	if s.cache == nil || p == nil {
		return
	}
	if err := s.cache.SetProfile(ctx, p.Recipient, p, profileCacheTTL); err != nil {
		slog.Warn("failed to cache recipient profile",
			"recipient", p.Recipient,
			"error", err,
		)
	}
}

// persistPattern writes a pattern through to the repository,
// best-effort. The in-memory aggregate is the working state; a
// persistence failure is an operational problem, not a reason to lose
// the mutation.
func (s *Store) persistPattern(ctx context.Context, p *domain.EconomicPattern) {
	if s.repo == nil {
		return
	}
	if err := s.repo.SavePattern(ctx, p); err != nil {
		slog.Error("failed to persist pattern", "pattern_id", p.ID, "error", err)
	}
}

func (s *Store) persistSignal(ctx context.Context, sig *domain.RiskSignal) {
	if s.repo == nil {
		return
	}
	if err := s.repo.SaveSignal(ctx, sig); err != nil {
		slog.Error("failed to persist signal", "signal_id", sig.ID, "error", err)
	}
}

func (s *Store) persistState(ctx context.Context) {
	if s.repo == nil {
		return
	}
	if err := s.repo.SaveMemoryState(ctx, s.score, s.lastUpdated); err != nil {
		slog.Error("failed to persist memory state", "error", err)
	}
}

// publishEvent emits a bus event, best-effort.
func (s *Store) publishEvent(ctx context.Context, topic string, payload any) {
	if s.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to marshal event payload", "topic", topic, "error", err)
		return
	}
	if err := s.bus.Publish(ctx, s.agentID, topic, data); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "error", err)
	}
}

func clonePattern(p *domain.EconomicPattern) *domain.EconomicPattern {
	c := *p
	c.Occurrences = make([]domain.PatternOccurrence, len(p.Occurrences))
	copy(c.Occurrences, p.Occurrences)
	return &c
}

func cloneProfile(p *domain.RecipientProfile) *domain.RecipientProfile {
	c := *p
	c.PurposeCounts = make(map[string]int, len(p.PurposeCounts))
	for k, v := range p.PurposeCounts {
		c.PurposeCounts[k] = v
	}
	return &c
}

func cloneSignal(sig *domain.RiskSignal) *domain.RiskSignal {
	c := *sig
	c.RelatedTxIDs = make([]string, len(sig.RelatedTxIDs))
	copy(c.RelatedTxIDs, sig.RelatedTxIDs)
	return &c
}
