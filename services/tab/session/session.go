// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianTab/pkg/logging"
	"github.com/AleutianAI/AleutianTab/services/tab/protocol"
)

const (
	// DefaultDebounce is the quiet window after the last edit before a
	// fetch fires.
	DefaultDebounce = 250 * time.Millisecond

	// DefaultNearbyTolerance is how many characters the cursor may
	// drift from an in-flight fetch before a new fetch is warranted.
	DefaultNearbyTolerance = 8

	// DefaultFetchTimeout bounds one getSuggestion round trip.
	DefaultFetchTimeout = 30 * time.Second

	// DefaultFeedbackTimeout bounds one sendFeedback delivery.
	DefaultFeedbackTimeout = 5 * time.Second

	// DefaultRefreshPerSec caps how often stale cache entries trigger
	// background refreshes.
	DefaultRefreshPerSec = 2.0

	defaultQueueSize = 64
)

// Fetcher is the slice of the daemon protocol a session needs: one
// method to ask for a suggestion and one to report what became of it.
// *transport.Conn satisfies it.
type Fetcher interface {
	GetSuggestion(ctx context.Context, params protocol.GetSuggestionParams) (protocol.GetSuggestionResult, error)
	SendFeedback(ctx context.Context, params protocol.SendFeedbackParams) (protocol.SendFeedbackResult, error)
}

// Config tunes one session. The zero value works; NewSession fills in
// defaults for anything unset.
type Config struct {
	// Debounce is the quiet window after the last edit before fetching.
	Debounce time.Duration

	// NearbyTolerance is the cursor drift, in characters on the same
	// line, that an in-flight fetch is considered to cover.
	NearbyTolerance int

	// StaleAfter is the cache entry age that triggers a background
	// refresh on the next lookup hit.
	StaleAfter time.Duration

	// MaxCacheEntries caps the per-session suggestion cache.
	MaxCacheEntries int

	// FetchTimeout bounds a getSuggestion round trip.
	FetchTimeout time.Duration

	// FeedbackTimeout bounds a sendFeedback delivery.
	FeedbackTimeout time.Duration

	// ContextLines is forwarded to the daemon; zero means the server
	// default.
	ContextLines int

	// RefreshPerSec rate-limits stale-entry background refreshes.
	RefreshPerSec float64

	// QueueSize is the event queue depth.
	QueueSize int

	// Classifier judges document changes against the pending
	// suggestion. Nil means PrefixClassifier with defaults.
	Classifier Classifier

	// OnSuggestion, when set, is called after a fresh suggestion is
	// offered so the editor can re-query completions. It runs on its
	// own goroutine and may call back into the session.
	OnSuggestion func(filePath string, line, character int)
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Debounce:        DefaultDebounce,
		NearbyTolerance: DefaultNearbyTolerance,
		StaleAfter:      DefaultStaleAfter,
		MaxCacheEntries: DefaultMaxCacheEntries,
		FetchTimeout:    DefaultFetchTimeout,
		FeedbackTimeout: DefaultFeedbackTimeout,
		RefreshPerSec:   DefaultRefreshPerSec,
		QueueSize:       defaultQueueSize,
	}
}

type eventKind int

const (
	evEdit eventKind = iota
	evDocChange
	evNavigate
	evLookup
	evFetchResult
	evClose
)

type lookupReply struct {
	text string
	ok   bool
}

// fetchSnapshot freezes the document view a fetch was launched from.
type fetchSnapshot struct {
	filePath string
	line     int
	char     int
	content  string
}

type event struct {
	kind eventKind

	filePath string
	line     int
	char     int
	content  string

	change Change

	currentLine string
	reply       chan lookupReply

	seq    uint64
	fetch  fetchSnapshot
	result protocol.GetSuggestionResult
	err    error
}

// Session drives the completion pipeline for one open document.
//
// # Description
//
//	A session owns its cache, its debounce timer, its in-flight fetch
//	slot, and the single pending suggestion. All of it is touched only
//	by the run goroutine; public methods enqueue events and return.
//	Fetches run on short-lived goroutines and feed their results back
//	through the same queue, so a transport reader never mutates session
//	state, and handlers see a strict serial order of edits, changes,
//	lookups, and results.
type Session struct {
	cfg      Config
	filePath string
	fetcher  Fetcher
	cache    *Cache
	classify Classifier
	log      *logging.Logger

	events chan event
	done   chan struct{}

	// Owned by the run goroutine.
	content    string
	cursorLine int
	cursorChar int
	pending    *PendingSuggestion
	timer      *time.Timer
	timerC     <-chan time.Time
	inFlight   bool
	flight     fetchSnapshot
	queued     *fetchSnapshot
	fetchSeq   uint64
	refresh    *rate.Limiter
}

// NewSession starts the event loop for one document and returns the
// running session. Close releases it.
func NewSession(filePath string, fetcher Fetcher, cfg Config, log *logging.Logger) *Session {
	if log == nil {
		log = logging.Default()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.NearbyTolerance <= 0 {
		cfg.NearbyTolerance = DefaultNearbyTolerance
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.MaxCacheEntries <= 0 {
		cfg.MaxCacheEntries = DefaultMaxCacheEntries
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.FeedbackTimeout <= 0 {
		cfg.FeedbackTimeout = DefaultFeedbackTimeout
	}
	if cfg.RefreshPerSec <= 0 {
		cfg.RefreshPerSec = DefaultRefreshPerSec
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	classify := cfg.Classifier
	if classify == nil {
		classify = PrefixClassifier{}
	}
	s := &Session{
		cfg:      cfg,
		filePath: filePath,
		fetcher:  fetcher,
		cache:    NewCache(cfg.MaxCacheEntries, cfg.StaleAfter),
		classify: classify,
		log:      log.With("component", "tab.session", "file", filePath),
		events:   make(chan event, cfg.QueueSize),
		done:     make(chan struct{}),
		refresh:  rate.NewLimiter(rate.Limit(cfg.RefreshPerSec), 1),
	}
	go s.run()
	return s
}

// FilePath returns the document this session serves.
func (s *Session) FilePath() string {
	return s.filePath
}

// HandleEdit reports a buffer edit: the new cursor position and the
// full document text after the edit.
//
// # Description
//
//	Every edit restarts the debounce timer; a fetch fires only once the
//	document has been quiet for the configured window. When a single
//	keystroke produces both a document change and a cursor move, deliver
//	HandleDocumentChange first so an acceptance resolves before the
//	cursor move is judged for staleness-by-navigation.
func (s *Session) HandleEdit(line, char int, content string) {
	s.deliver(event{kind: evEdit, line: line, char: char, content: content})
}

// HandleDocumentChange feeds one text change to the feedback
// classifier. Changes in other files, or with no pending suggestion,
// are ignored.
func (s *Session) HandleDocumentChange(change Change) {
	s.deliver(event{kind: evDocChange, change: change})
}

// HandleNavigate reports a cursor move that is not an edit. Moving to a
// different file or line implicitly rejects the pending suggestion.
func (s *Session) HandleNavigate(filePath string, line, char int) {
	s.deliver(event{kind: evNavigate, filePath: filePath, line: line, char: char})
}

// Lookup asks the cache for the remaining suggestion text at the
// cursor.
//
// # Description
//
//	This is the synchronous hot path the editor calls on every
//	completion request. It never touches the network: either the cached
//	suggestion still matches what the user typed since capture and the
//	untyped remainder comes back, or there is nothing to show. A hit on
//	an entry older than StaleAfter additionally kicks off one background
//	refresh without delaying the returned value.
//
// Outputs:
//   - the untyped remainder and true, or "" and false.
func (s *Session) Lookup(line, char int, currentLine string) (string, bool) {
	reply := make(chan lookupReply, 1)
	select {
	case s.events <- event{kind: evLookup, line: line, char: char, currentLine: currentLine, reply: reply}:
	case <-s.done:
		return "", false
	}
	select {
	case r := <-reply:
		return r.text, r.ok
	case <-s.done:
		return "", false
	}
}

// Close shuts the session down: the pending suggestion resolves as an
// implicit rejection, cache entries for the document are dropped, and
// the event loop stops. Close blocks until the loop has exited and is
// safe to call more than once.
func (s *Session) Close() {
	s.deliver(event{kind: evClose})
	<-s.done
}

func (s *Session) deliver(ev event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case ev := <-s.events:
			switch ev.kind {
			case evEdit:
				s.handleEdit(ev)
			case evDocChange:
				s.handleDocChange(ev)
			case evNavigate:
				s.handleNavigate(ev)
			case evLookup:
				s.handleLookup(ev)
			case evFetchResult:
				s.handleFetchResult(ev)
			case evClose:
				s.handleClose()
				return
			}
		case <-s.timerC:
			// A nil timerC parks this branch until the next armTimer.
			s.timerC = nil
			s.fireFetch()
		}
	}
}

func (s *Session) handleEdit(ev event) {
	s.content = ev.content
	s.cursorLine, s.cursorChar = ev.line, ev.char
	if s.pending != nil && ev.line != s.pending.Line {
		s.resolvePending(false)
	}
	s.armTimer()
}

func (s *Session) handleDocChange(ev event) {
	if s.pending == nil {
		return
	}
	switch s.classify.Classify(*s.pending, ev.change) {
	case VerdictAccept:
		s.resolvePending(true)
	case VerdictReject:
		s.resolvePending(false)
	}
}

func (s *Session) handleNavigate(ev event) {
	if ev.filePath == s.filePath {
		s.cursorLine, s.cursorChar = ev.line, ev.char
	}
	if s.pending == nil {
		return
	}
	if ev.filePath != s.pending.FilePath || ev.line != s.pending.Line {
		s.resolvePending(false)
	}
}

func (s *Session) handleLookup(ev event) {
	remaining, entry, ok := s.cache.Lookup(s.filePath, ev.line, ev.char, ev.currentLine)
	ev.reply <- lookupReply{text: remaining, ok: ok}
	if ok {
		s.maybeRefresh(entry, ev.line, ev.char)
	}
}

// maybeRefresh launches one background refetch for a stale entry. The
// rate limiter is consulted before the latch so a denied refresh does
// not burn the entry's one refresh for the episode.
func (s *Session) maybeRefresh(entry CachedSuggestion, line, char int) {
	if s.inFlight {
		return
	}
	if time.Since(entry.CapturedAt) <= s.cfg.StaleAfter {
		return
	}
	if !s.refresh.Allow() {
		return
	}
	if !s.cache.RefreshDue(s.filePath, line) {
		return
	}
	s.log.Debug("Refreshing stale suggestion", "line", line)
	s.launch(fetchSnapshot{filePath: s.filePath, line: line, char: char, content: s.content})
}

func (s *Session) handleFetchResult(ev event) {
	if ev.seq != s.fetchSeq {
		s.log.Debug("Dropping superseded fetch result", "seq", ev.seq)
		return
	}
	s.inFlight = false
	defer s.launchQueued()

	if ev.err != nil {
		s.log.Debug("Suggestion fetch failed", "line", ev.fetch.line, "error", ev.err)
		return
	}
	if ev.result.Suggestion == "" || ev.result.Type == protocol.SuggestionTypeNone {
		return
	}

	now := time.Now()
	s.cache.Put(CachedSuggestion{
		FilePath:     ev.fetch.filePath,
		Line:         ev.fetch.line,
		Character:    ev.fetch.char,
		LinePrefix:   linePrefixAt(ev.fetch.content, ev.fetch.line, ev.fetch.char),
		Text:         ev.result.Suggestion,
		SuggestionID: ev.result.SuggestionID,
		Strategy:     ev.result.Strategy,
		Bucket:       ev.result.Bucket,
		CapturedAt:   now,
	})

	// A response can land after the cursor has moved on. The entry
	// above still warms the cache, but a suggestion nobody will see
	// must not enter the feedback path; neither can one the daemon gave
	// no id for.
	if ev.result.SuggestionID == "" || s.filePath != ev.fetch.filePath || s.cursorLine != ev.fetch.line {
		return
	}

	s.resolvePending(false)
	s.pending = &PendingSuggestion{
		SuggestionID: ev.result.SuggestionID,
		Strategy:     ev.result.Strategy,
		Bucket:       ev.result.Bucket,
		Text:         ev.result.Suggestion,
		FilePath:     ev.fetch.filePath,
		Line:         ev.fetch.line,
		Character:    ev.fetch.char,
		IssuedAt:     now,
	}
	if s.cfg.OnSuggestion != nil {
		// Own goroutine: the hook may call straight back into Lookup.
		go s.cfg.OnSuggestion(ev.fetch.filePath, ev.fetch.line, ev.fetch.char)
	}
}

func (s *Session) handleClose() {
	s.resolvePending(false)
	s.cache.InvalidateFile(s.filePath)
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timerC = nil
}

// armTimer starts or restarts the debounce window. An already-fired
// timer can still hold an undelivered tick, so it is drained before
// the Reset to keep a window from closing early.
func (s *Session) armTimer() {
	if s.timer == nil {
		s.timer = time.NewTimer(s.cfg.Debounce)
		s.timerC = s.timer.C
		return
	}
	if !s.timer.Stop() {
		select {
		case <-s.timer.C:
		default:
		}
	}
	s.timer.Reset(s.cfg.Debounce)
	s.timerC = s.timer.C
}

// fireFetch runs when the debounce window closes. With a fetch already
// in flight for a nearby position the edit is covered and nothing
// happens; a genuinely different position waits in the single queued
// slot until the in-flight request resolves.
func (s *Session) fireFetch() {
	snap := fetchSnapshot{
		filePath: s.filePath,
		line:     s.cursorLine,
		char:     s.cursorChar,
		content:  s.content,
	}
	if s.inFlight {
		if s.nearby(snap) {
			s.log.Debug("Fetch suppressed, in-flight request covers position", "line", snap.line)
			return
		}
		s.queued = &snap
		return
	}
	s.launch(snap)
}

func (s *Session) nearby(snap fetchSnapshot) bool {
	if s.flight.filePath != snap.filePath || s.flight.line != snap.line {
		return false
	}
	delta := snap.char - s.flight.char
	if delta < 0 {
		delta = -delta
	}
	return delta <= s.cfg.NearbyTolerance
}

// launch starts one fetch goroutine. The in-flight call is never
// cancelled by later edits; its response re-enters the queue and the
// usual supersede rules decide what it is still good for.
func (s *Session) launch(snap fetchSnapshot) {
	s.inFlight = true
	s.flight = snap
	s.fetchSeq++
	seq := s.fetchSeq
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FetchTimeout)
		defer cancel()
		result, err := s.fetcher.GetSuggestion(ctx, protocol.GetSuggestionParams{
			FilePath:     snap.filePath,
			Content:      snap.content,
			Cursor:       protocol.CursorPosition{Line: snap.line, Character: snap.char},
			ContextLines: s.cfg.ContextLines,
		})
		s.deliver(event{kind: evFetchResult, seq: seq, fetch: snap, result: result, err: err})
	}()
}

func (s *Session) launchQueued() {
	if s.queued == nil || s.inFlight {
		return
	}
	snap := *s.queued
	s.queued = nil
	s.launch(snap)
}

// resolvePending resolves the outstanding suggestion if there is one.
// With nothing pending it is a no-op, which is what makes resolution
// idempotent: the first resolver wins and later signals fall through.
func (s *Session) resolvePending(accepted bool) {
	if s.pending == nil {
		return
	}
	p := *s.pending
	s.pending = nil
	latency := time.Since(p.IssuedAt)
	s.log.Debug("Resolving suggestion",
		"suggestion_id", p.SuggestionID,
		"accepted", accepted,
		"latency_ms", latency.Milliseconds(),
	)
	go s.sendFeedback(p.SuggestionID, accepted, latency)
}

func (s *Session) sendFeedback(id string, accepted bool, latency time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.FeedbackTimeout)
	defer cancel()
	result, err := s.fetcher.SendFeedback(ctx, protocol.SendFeedbackParams{
		SuggestionID: id,
		Accepted:     accepted,
		LatencyMS:    float64(latency) / float64(time.Millisecond),
	})
	if err != nil {
		s.log.Debug("Feedback delivery failed", "suggestion_id", id, "error", err)
		return
	}
	if !result.Recorded {
		s.log.Debug("Feedback not recorded by daemon", "suggestion_id", id)
	}
}

func linePrefixAt(content string, line, char int) string {
	lines := strings.Split(content, "\n")
	if line < 0 || line >= len(lines) {
		return ""
	}
	runes := []rune(lines[line])
	if char > len(runes) {
		char = len(runes)
	}
	if char < 0 {
		char = 0
	}
	return string(runes[:char])
}
