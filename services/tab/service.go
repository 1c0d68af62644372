// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/AleutianTab/pkg/logging"
	"github.com/AleutianAI/AleutianTab/services/tab/engine"
	"github.com/AleutianAI/AleutianTab/services/tab/protocol"
	"github.com/AleutianAI/AleutianTab/services/tab/rl"
	"github.com/AleutianAI/AleutianTab/services/tab/telemetry"
)

const meterName = "aleutian-tab"

// maxTrackedSuggestions bounds the issued-suggestion table. Feedback
// for an evicted id is acknowledged but not recorded, the same as for
// an unknown one.
const maxTrackedSuggestions = 512

// watcherSuppress is how long a save mutes the policy file watcher so
// the daemon does not reload its own write.
const watcherSuppress = 2 * time.Second

var (
	rpcRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aleutian",
		Subsystem: "tab",
		Name:      "rpc_requests_total",
		Help:      "RPC requests by method and status",
	}, []string{"method", "status"})

	rpcDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "aleutian",
		Subsystem: "tab",
		Name:      "rpc_duration_seconds",
		Help:      "RPC dispatch duration by method",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
	}, []string{"method"})
)

// suggester is the engine surface the service drives. *engine.Engine
// implements it; tests substitute a canned one.
type suggester interface {
	Suggest(ctx context.Context, filePath, content string, line, char int) (*engine.Suggestion, error)
	SetModel(model string) error
	Model() string
	Memo() *engine.MemoCache
}

// issuedSuggestion is what feedback needs to credit the right arm.
type issuedSuggestion struct {
	bucket   string
	strategy string
	issuedAt time.Time
}

// Service dispatches the protocol methods onto the engine and bandit.
//
// # Description
//
//	Every non-empty suggestion gets a fresh uuid and a single-use entry
//	in the issued table; feedback consumes the entry, updates the
//	policy, and appends to the rolling feedback log. Feedback whose id
//	is unknown, already consumed, or evicted is acknowledged with
//	recorded=false and changes nothing, which is what keeps duplicate
//	and stale reports from ever reaching the bandit. Engine failures
//	degrade to a "none" result on the wire.
//
// # Thread Safety
//
//	Safe for concurrent use. The stdio loop is serial by construction,
//	but every WebSocket connection dispatches independently.
type Service struct {
	cfg     Config
	log     *logging.Logger
	engine  suggester
	policy  *rl.Policy
	storage *rl.Storage
	watcher *rl.PolicyWatcher
	metrics *telemetry.Metrics

	disabledReg metric.Registration

	started  time.Time
	requests atomic.Int64

	mu            sync.Mutex
	issued        map[string]issuedSuggestion
	issuedOrder   []string
	feedbackCount int

	// saveMu serializes policy saves; Storage is not concurrency-safe.
	saveMu sync.Mutex
}

// NewService builds the daemon core: strategies, bandit policy with
// persisted state, engine, and the policy file watcher.
//
// Inputs:
//
//	cfg - Validated configuration.
//	log - Logger; nil falls back to the package default logger.
//
// Outputs:
//
//	*Service - The assembled service. Call Close on shutdown.
//	error - Non-nil when strategies, policy, or engine cannot be built.
func NewService(cfg Config, log *logging.Logger) (*Service, error) {
	if log == nil {
		log = logging.Default()
	}
	log = log.With("component", "tab.service")

	strategies, err := rl.LoadStrategies(cfg.StrategiesFile)
	if err != nil {
		return nil, fmt.Errorf("load strategies: %w", err)
	}
	registry := rl.NewRegistry(strategies)

	pcfg := rl.DefaultPolicyConfig()
	pcfg.Strategies = registry.Names()
	pcfg.ExplorationConstant = cfg.UCBConstant
	pcfg.MinObservations = cfg.MinObservations
	pcfg.ProtectedStrategy = cfg.ProtectedStrategy
	policy, err := rl.NewPolicy(pcfg)
	if err != nil {
		return nil, fmt.Errorf("build policy: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	storage := rl.NewStorage(cfg.DataDir)
	storage.SetFeedbackCap(cfg.FeedbackCap)
	if err := storage.Load(policy); err != nil {
		log.Warn("Starting with a fresh policy", "error", err)
	}

	meter := otel.Meter(meterName)
	metrics, err := telemetry.NewMetrics(meter)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	eng, err := engine.New(engine.Config{
		Model:    cfg.Model,
		MemoSize: cfg.MemoMaxEntries,
		MemoTTL:  cfg.MemoTTL(),
	}, registry, policy, log, metrics)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	s := &Service{
		cfg:     cfg,
		log:     log,
		engine:  eng,
		policy:  policy,
		storage: storage,
		metrics: metrics,
		started: time.Now(),
		issued:  make(map[string]issuedSuggestion),
	}

	if reg, err := telemetry.RegisterDisabledStrategies(meter, policy.DisabledCount); err != nil {
		log.Warn("Disabled-strategies gauge unavailable", "error", err)
	} else {
		s.disabledReg = reg
	}

	watcher, err := rl.NewPolicyWatcher(storage.PolicyPath(), rl.DefaultWatchDebounce, s.reloadPolicy)
	if err != nil {
		log.Warn("Policy file watching disabled", "error", err)
	} else if err := watcher.Start(); err != nil {
		log.Warn("Policy file watching disabled", "error", err)
	} else {
		s.watcher = watcher
	}

	return s, nil
}

// Close stops the watcher and persists the policy one last time.
func (s *Service) Close() error {
	if s.watcher != nil {
		s.watcher.Stop()
	}
	if s.disabledReg != nil {
		_ = s.disabledReg.Unregister()
	}
	return s.savePolicy("shutdown")
}

// Handle implements the transport dispatch: decode, route, answer.
// It never returns a zero envelope; unroutable requests come back as
// JSON-RPC errors.
func (s *Service) Handle(ctx context.Context, req protocol.RequestEnvelope) protocol.ResponseEnvelope {
	start := time.Now()
	s.requests.Add(1)

	result, errObj := s.dispatch(ctx, req)

	status := "ok"
	if errObj != nil {
		status = "error"
	}
	rpcRequests.WithLabelValues(req.Method, status).Inc()
	rpcDuration.WithLabelValues(req.Method).Observe(time.Since(start).Seconds())

	if errObj != nil {
		return protocol.NewErrorResponse(req.ID, errObj.Code, errObj.Message)
	}
	resp, err := protocol.NewResponse(req.ID, result)
	if err != nil {
		s.log.Error("Failed to marshal result", "method", req.Method, "error", err)
		return protocol.NewErrorResponse(req.ID, protocol.CodeInternalError, "internal error")
	}
	return resp
}

func (s *Service) dispatch(ctx context.Context, req protocol.RequestEnvelope) (any, *protocol.ErrorObject) {
	switch req.Method {
	case protocol.MethodGetSuggestion:
		var p protocol.GetSuggestionParams
		if eo := decodeParams(req.Params, &p); eo != nil {
			return nil, eo
		}
		res, err := s.GetSuggestion(ctx, p)
		switch {
		case err == nil:
			return res, nil
		case errors.Is(err, ErrInvalidParams):
			return nil, invalidParams(err)
		case errors.Is(err, ErrNoSuggestion):
			return noSuggestion(), nil
		default:
			// Model and backend failures mean "nothing to show", not a
			// broken connection.
			s.log.Debug("Suggestion degraded to none", "error", err)
			return noSuggestion(), nil
		}

	case protocol.MethodSendFeedback:
		var p protocol.SendFeedbackParams
		if eo := decodeParams(req.Params, &p); eo != nil {
			return nil, eo
		}
		res, err := s.SendFeedback(ctx, p)
		switch {
		case err == nil, errors.Is(err, ErrStaleResponse):
			return res, nil
		case errors.Is(err, ErrInvalidParams):
			return nil, invalidParams(err)
		default:
			s.log.Warn("Feedback failed", "error", err)
			return nil, &protocol.ErrorObject{Code: protocol.CodeInternalError, Message: "internal error"}
		}

	case protocol.MethodGetStats:
		return s.GetStats(ctx), nil

	case protocol.MethodGetRLStats:
		return s.GetRLStats(ctx), nil

	case protocol.MethodSetModel:
		var p protocol.SetModelParams
		if eo := decodeParams(req.Params, &p); eo != nil {
			return nil, eo
		}
		res, err := s.SetModel(ctx, p)
		switch {
		case err == nil:
			return res, nil
		case errors.Is(err, ErrInvalidParams):
			return nil, invalidParams(err)
		default:
			return nil, &protocol.ErrorObject{Code: protocol.CodeInternalError, Message: err.Error()}
		}

	case protocol.MethodClearCache:
		return s.ClearCache(ctx), nil

	case protocol.MethodPing:
		return s.Ping(ctx), nil

	default:
		err := fmt.Errorf("%w: %s", ErrUnknownMethod, req.Method)
		return nil, &protocol.ErrorObject{Code: protocol.CodeMethodNotFound, Message: err.Error()}
	}
}

// GetSuggestion runs the engine for one position.
//
// Returns ErrNoSuggestion when the position is skipped or the model
// declines, ErrInvalidParams on bad input, and the engine's error on
// backend failure. Successful results carry a fresh single-use id.
func (s *Service) GetSuggestion(ctx context.Context, params protocol.GetSuggestionParams) (protocol.GetSuggestionResult, error) {
	if err := params.Validate(); err != nil {
		return protocol.GetSuggestionResult{}, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout())
	defer cancel()

	sugg, err := s.engine.Suggest(ctx, params.FilePath, params.Content, params.Cursor.Line, params.Cursor.Character)
	if err != nil {
		return protocol.GetSuggestionResult{}, fmt.Errorf("suggest: %w", err)
	}
	if sugg.Text == "" {
		return protocol.GetSuggestionResult{}, ErrNoSuggestion
	}

	id := uuid.NewString()
	s.track(id, sugg)
	return protocol.GetSuggestionResult{
		Suggestion:   sugg.Text,
		Type:         protocol.SuggestionTypeInsertion,
		SuggestionID: id,
		Strategy:     sugg.Strategy,
		Bucket:       sugg.Bucket,
		Cached:       sugg.Cached,
	}, nil
}

// SendFeedback resolves one issued suggestion.
//
// The suggestion id is single use. ErrStaleResponse (with a
// recorded=false result) reports an id the daemon is not tracking;
// the bandit and the log are untouched in that case.
func (s *Service) SendFeedback(ctx context.Context, params protocol.SendFeedbackParams) (protocol.SendFeedbackResult, error) {
	if err := params.Validate(); err != nil {
		return protocol.SendFeedbackResult{}, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}

	rec, ok := s.take(params.SuggestionID)
	if !ok {
		s.log.Debug("Ignoring feedback for untracked suggestion", "suggestion_id", params.SuggestionID)
		return protocol.SendFeedbackResult{Status: protocol.StatusOK, Recorded: false}, ErrStaleResponse
	}

	reward := rl.Reward(params.Accepted, params.LatencyMS)
	s.policy.Update(rec.bucket, rec.strategy, reward)

	verdict := "rejected"
	if params.Accepted {
		verdict = "accepted"
	}
	s.metrics.FeedbackTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("verdict", verdict)))
	s.log.Debug("Feedback recorded",
		"bucket", rec.bucket,
		"strategy", rec.strategy,
		"accepted", params.Accepted,
		"latency_ms", params.LatencyMS,
		"reward", reward,
	)

	if err := s.storage.LogFeedback(rl.FeedbackEntry{
		TS:        time.Now().Unix(),
		Bucket:    rec.bucket,
		Strategy:  rec.strategy,
		Accepted:  params.Accepted,
		LatencyMS: params.LatencyMS,
	}); err != nil {
		s.log.Warn("Failed to append feedback log", "error", err)
	}

	s.maybeAutosave()
	return protocol.SendFeedbackResult{Status: protocol.StatusOK, Recorded: true}, nil
}

// GetStats reports daemon-level counters.
func (s *Service) GetStats(_ context.Context) protocol.GetStatsResult {
	ms := s.engine.Memo().Stats()
	return protocol.GetStatsResult{
		Cache: protocol.CacheStats{
			Size:         ms.Size,
			MaxSize:      ms.MaxSize,
			TotalHits:    ms.TotalHits,
			FilesTracked: ms.FilesTracked,
		},
		Model:         s.engine.Model(),
		RequestsTotal: s.requests.Load(),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	}
}

// GetRLStats reports the bandit's per-bucket arm state.
func (s *Service) GetRLStats(_ context.Context) protocol.GetRLStatsResult {
	st := s.policy.State()
	res := protocol.GetRLStatsResult{
		TotalInteractions: st.TotalInteractions,
		Buckets:           make(map[string]map[string]protocol.StrategyStat, len(st.Buckets)),
		Disabled:          make(map[string][]string),
	}
	for bucket, arms := range st.Buckets {
		stats := make(map[string]protocol.StrategyStat, len(arms))
		for name, a := range arms {
			stats[name] = protocol.StrategyStat{
				Mean:         a.Mean,
				Observations: a.Observations,
				Disabled:     a.Disabled,
			}
			if a.Disabled {
				res.Disabled[bucket] = append(res.Disabled[bucket], name)
			}
		}
		res.Buckets[bucket] = stats
	}
	for _, names := range res.Disabled {
		sort.Strings(names)
	}
	if len(res.Disabled) == 0 {
		res.Disabled = nil
	}
	return res
}

// SetModel swaps the completion model.
func (s *Service) SetModel(_ context.Context, params protocol.SetModelParams) (protocol.SetModelResult, error) {
	if err := params.Validate(); err != nil {
		return protocol.SetModelResult{}, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if err := s.engine.SetModel(params.Model); err != nil {
		return protocol.SetModelResult{}, err
	}
	return protocol.SetModelResult{Status: protocol.StatusOK, Model: s.engine.Model()}, nil
}

// ClearCache empties the memo cache.
func (s *Service) ClearCache(_ context.Context) protocol.ClearCacheResult {
	n := s.engine.Memo().Clear()
	s.log.Info("Memo cache cleared", "entries", n)
	return protocol.ClearCacheResult{Status: protocol.StatusOK, Cleared: n}
}

// Ping answers liveness probes.
func (s *Service) Ping(_ context.Context) protocol.PingResult {
	return protocol.PingResult{Status: protocol.StatusOK}
}

// track registers an issued suggestion, evicting the oldest live entry
// once the table is full.
func (s *Service) track(id string, sugg *engine.Suggestion) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.issued[id] = issuedSuggestion{
		bucket:   sugg.Bucket,
		strategy: sugg.Strategy,
		issuedAt: time.Now(),
	}
	s.issuedOrder = append(s.issuedOrder, id)
	for len(s.issued) > maxTrackedSuggestions && len(s.issuedOrder) > 0 {
		oldest := s.issuedOrder[0]
		s.issuedOrder = s.issuedOrder[1:]
		// Consumed ids linger in the order queue; skip them.
		if _, live := s.issued[oldest]; live {
			delete(s.issued, oldest)
		}
	}
}

// take consumes an issued entry. The second return is false when the
// id is not being tracked.
func (s *Service) take(id string) (issuedSuggestion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.issued[id]
	if ok {
		delete(s.issued, id)
	}
	return rec, ok
}

func (s *Service) maybeAutosave() {
	s.mu.Lock()
	s.feedbackCount++
	due := s.cfg.AutosaveEvery > 0 && s.feedbackCount%s.cfg.AutosaveEvery == 0
	s.mu.Unlock()
	if !due {
		return
	}
	if err := s.savePolicy("autosave"); err != nil {
		s.log.Warn("Policy autosave failed", "error", err)
	}
}

func (s *Service) savePolicy(reason string) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if s.watcher != nil {
		s.watcher.Suppress(watcherSuppress)
	}
	if err := s.storage.Save(s.policy); err != nil {
		return fmt.Errorf("save policy (%s): %w", reason, err)
	}
	s.log.Debug("Policy saved", "reason", reason, "interactions", s.policy.TotalInteractions())
	return nil
}

// reloadPolicy is the watcher callback for external policy file edits.
func (s *Service) reloadPolicy() {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if err := s.storage.Load(s.policy); err != nil {
		s.log.Warn("Failed to reload policy file", "error", err)
		return
	}
	s.log.Info("Policy file reloaded", "interactions", s.policy.TotalInteractions())
}

func decodeParams(raw json.RawMessage, out any) *protocol.ErrorObject {
	if len(raw) == 0 {
		return &protocol.ErrorObject{Code: protocol.CodeInvalidParams, Message: "missing params"}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &protocol.ErrorObject{Code: protocol.CodeInvalidParams, Message: "malformed params: " + err.Error()}
	}
	return nil
}

func invalidParams(err error) *protocol.ErrorObject {
	return &protocol.ErrorObject{Code: protocol.CodeInvalidParams, Message: err.Error()}
}

func noSuggestion() protocol.GetSuggestionResult {
	return protocol.GetSuggestionResult{Type: protocol.SuggestionTypeNone}
}
