// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianTab/pkg/logging"
	"github.com/AleutianAI/AleutianTab/services/tab/protocol"
)

// DefaultCallTimeout is the per-request deadline when the caller's
// context carries none of its own.
const DefaultCallTimeout = 30 * time.Second

// ConnConfig tunes a client connection.
type ConnConfig struct {
	// CallTimeout bounds each Call. Zero means DefaultCallTimeout.
	CallTimeout time.Duration
}

// Conn is the editor-side JSON-RPC connection to the daemon.
//
// # Description
//
//	A background reader correlates responses to calls through a pending
//	map keyed by the monotonically increasing request id. At most one
//	response is ever delivered per id: a timed-out or cancelled call
//	removes its entry first, so a late response finds nothing and is
//	dropped with a debug log. That drop is the normal fate of responses
//	outrun by fast typing, not an error.
//
//	Writes go through one mutex, reads through one goroutine, so Conn is
//	safe for concurrent calls from any number of sessions.
type Conn struct {
	cfg ConnConfig
	rwc io.ReadWriteCloser
	log *logging.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan protocol.ResponseEnvelope
	closed  bool

	done chan struct{}
}

// NewConn starts a connection over the given transport, typically the
// stdio pipe of a spawned daemon.
func NewConn(rwc io.ReadWriteCloser, cfg ConnConfig, log *logging.Logger) *Conn {
	if log == nil {
		log = logging.Default()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	c := &Conn{
		cfg:     cfg,
		rwc:     rwc,
		log:     log.With("component", "tab.client"),
		pending: make(map[int64]chan protocol.ResponseEnvelope),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Call sends one request and decodes the response into result. A nil
// result discards the response body.
//
// Returns ErrTimeout past the per-request deadline, ErrConnClosed once
// the connection is broken, the server's ErrorObject for error
// responses, and the context's error if it expires first.
func (c *Conn) Call(ctx context.Context, method string, params, result any) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnClosed
	}
	c.nextID++
	id := c.nextID
	ch := make(chan protocol.ResponseEnvelope, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	req, err := protocol.NewRequest(id, method, params)
	if err != nil {
		c.forget(id)
		return err
	}
	if err := c.write(req); err != nil {
		c.forget(id)
		return fmt.Errorf("%w: %v", ErrConnClosed, err)
	}

	timer := time.NewTimer(c.cfg.CallTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if result == nil {
			if resp.Error != nil {
				return resp.Error
			}
			return nil
		}
		return resp.DecodeResult(result)
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	case <-timer.C:
		c.forget(id)
		return ErrTimeout
	case <-c.done:
		return ErrConnClosed
	}
}

// Notify sends a request without registering for a response. Whatever
// the server answers, if anything, is dropped by the reader.
func (c *Conn) Notify(method string, params any) error {
	req, err := protocol.NewRequest(0, method, params)
	if err != nil {
		return err
	}
	if err := c.write(req); err != nil {
		return fmt.Errorf("%w: %v", ErrConnClosed, err)
	}
	return nil
}

// Close tears the connection down. Outstanding calls fail with
// ErrConnClosed. Close is safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.pending = make(map[int64]chan protocol.ResponseEnvelope)
	c.mu.Unlock()
	close(c.done)
	return c.rwc.Close()
}

func (c *Conn) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return protocol.WriteMessage(c.rwc, v)
}

func (c *Conn) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Conn) readLoop() {
	reader := protocol.NewLineReader(c.rwc)
	for {
		resp, err := reader.ReadResponse()
		if err != nil {
			// A single bad line does not poison the stream.
			if errors.Is(err, protocol.ErrMalformedResponse) || errors.Is(err, protocol.ErrLineTooLong) {
				c.log.Warn("Dropping undecodable response line", "error", err)
				continue
			}
			c.fail(err)
			return
		}
		c.dispatch(resp)
	}
}

func (c *Conn) dispatch(resp protocol.ResponseEnvelope) {
	c.mu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.mu.Unlock()
	if !ok {
		c.log.Debug("Dropping response with no waiting call", "id", resp.ID)
		return
	}
	ch <- resp
}

// fail marks the conn broken after a terminal reader error. Waiting
// calls unblock through the done channel; the failure is logged once.
func (c *Conn) fail(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.pending = make(map[int64]chan protocol.ResponseEnvelope)
	c.mu.Unlock()
	close(c.done)
	_ = c.rwc.Close()
	if errors.Is(err, io.EOF) {
		c.log.Info("Daemon connection closed")
		return
	}
	c.log.Warn("Daemon connection failed", "error", err)
}

// =============================================================================
// Typed calls
// =============================================================================

// GetSuggestion asks the daemon for a completion. Together with
// SendFeedback this satisfies session.Fetcher.
func (c *Conn) GetSuggestion(ctx context.Context, params protocol.GetSuggestionParams) (protocol.GetSuggestionResult, error) {
	var result protocol.GetSuggestionResult
	err := c.Call(ctx, protocol.MethodGetSuggestion, &params, &result)
	return result, err
}

// SendFeedback reports a suggestion's resolution.
func (c *Conn) SendFeedback(ctx context.Context, params protocol.SendFeedbackParams) (protocol.SendFeedbackResult, error) {
	var result protocol.SendFeedbackResult
	err := c.Call(ctx, protocol.MethodSendFeedback, &params, &result)
	return result, err
}

// GetStats fetches daemon usage counters.
func (c *Conn) GetStats(ctx context.Context) (protocol.GetStatsResult, error) {
	var result protocol.GetStatsResult
	err := c.Call(ctx, protocol.MethodGetStats, nil, &result)
	return result, err
}

// GetRLStats fetches per-bucket strategy statistics.
func (c *Conn) GetRLStats(ctx context.Context) (protocol.GetRLStatsResult, error) {
	var result protocol.GetRLStatsResult
	err := c.Call(ctx, protocol.MethodGetRLStats, nil, &result)
	return result, err
}

// SetModel switches the daemon's backend model.
func (c *Conn) SetModel(ctx context.Context, model string) (protocol.SetModelResult, error) {
	var result protocol.SetModelResult
	err := c.Call(ctx, protocol.MethodSetModel, &protocol.SetModelParams{Model: model}, &result)
	return result, err
}

// ClearCache empties the daemon's suggestion memo cache.
func (c *Conn) ClearCache(ctx context.Context) (protocol.ClearCacheResult, error) {
	var result protocol.ClearCacheResult
	err := c.Call(ctx, protocol.MethodClearCache, nil, &result)
	return result, err
}

// Ping checks the daemon is answering.
func (c *Conn) Ping(ctx context.Context) (protocol.PingResult, error) {
	var result protocol.PingResult
	err := c.Call(ctx, protocol.MethodPing, nil, &result)
	return result, err
}
