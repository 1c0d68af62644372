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
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianTab/services/tab/protocol"
	"github.com/AleutianAI/AleutianTab/services/tab/session"
)

// The session scheduler talks to the daemon through this type.
var _ session.Fetcher = (*Conn)(nil)

// fakeDaemon is the far end of a net.Pipe. Tests drive it from the
// test goroutine while the call under test runs in its own goroutine,
// since pipe writes block until the other side reads.
type fakeDaemon struct {
	t      *testing.T
	conn   net.Conn
	reader *protocol.LineReader
}

func newPipeConn(t *testing.T, cfg ConnConfig) (*Conn, *fakeDaemon) {
	t.Helper()
	clientEnd, daemonEnd := net.Pipe()
	c := NewConn(clientEnd, cfg, nil)
	t.Cleanup(func() { _ = c.Close() })
	t.Cleanup(func() { _ = daemonEnd.Close() })
	return c, &fakeDaemon{t: t, conn: daemonEnd, reader: protocol.NewLineReader(daemonEnd)}
}

func (d *fakeDaemon) readRequest() protocol.RequestEnvelope {
	d.t.Helper()
	req, err := d.reader.ReadRequest()
	require.NoError(d.t, err)
	return req
}

func (d *fakeDaemon) reply(id int64, result any) {
	d.t.Helper()
	resp, err := protocol.NewResponse(id, result)
	require.NoError(d.t, err)
	require.NoError(d.t, protocol.WriteMessage(d.conn, resp))
}

func (d *fakeDaemon) replyError(id int64, code int, msg string) {
	d.t.Helper()
	require.NoError(d.t, protocol.WriteMessage(d.conn, protocol.NewErrorResponse(id, code, msg)))
}

func (d *fakeDaemon) writeRaw(line string) {
	d.t.Helper()
	_, err := d.conn.Write([]byte(line))
	require.NoError(d.t, err)
}

// waitErr receives the call's return value with a deadline so a broken
// correlation path fails the test instead of hanging it.
func waitErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("call did not return in time")
		return nil
	}
}

func TestConn_CallDecodesResult(t *testing.T) {
	c, d := newPipeConn(t, ConnConfig{})

	var result protocol.GetSuggestionResult
	done := make(chan error, 1)
	go func() {
		r, err := c.GetSuggestion(context.Background(), protocol.GetSuggestionParams{
			FilePath: "main.py",
			Content:  "def add(a, b):\n    return ",
			Cursor:   protocol.CursorPosition{Line: 1, Character: 11},
		})
		result = r
		done <- err
	}()

	req := d.readRequest()
	assert.Equal(t, protocol.MethodGetSuggestion, req.Method)
	assert.Positive(t, req.ID)

	var params protocol.GetSuggestionParams
	require.NoError(t, json.Unmarshal(req.Params, &params))
	assert.Equal(t, "main.py", params.FilePath)
	assert.Equal(t, 11, params.Cursor.Character)

	d.reply(req.ID, protocol.GetSuggestionResult{
		Suggestion:   "a + b",
		Type:         protocol.SuggestionTypeInsertion,
		SuggestionID: "11111111-2222-4333-8444-555555555555",
		Strategy:     "standard",
		Bucket:       "python:function:small:start",
	})

	require.NoError(t, waitErr(t, done))
	assert.Equal(t, "a + b", result.Suggestion)
	assert.Equal(t, "standard", result.Strategy)
}

func TestConn_CorrelatesOutOfOrderResponses(t *testing.T) {
	c, d := newPipeConn(t, ConnConfig{})

	var ping protocol.PingResult
	var stats protocol.GetStatsResult
	pingDone := make(chan error, 1)
	statsDone := make(chan error, 1)
	go func() {
		r, err := c.Ping(context.Background())
		ping = r
		pingDone <- err
	}()
	go func() {
		r, err := c.GetStats(context.Background())
		stats = r
		statsDone <- err
	}()

	first := d.readRequest()
	second := d.readRequest()
	byMethod := map[string]protocol.RequestEnvelope{first.Method: first, second.Method: second}
	require.Contains(t, byMethod, protocol.MethodPing)
	require.Contains(t, byMethod, protocol.MethodGetStats)
	assert.NotEqual(t, byMethod[protocol.MethodPing].ID, byMethod[protocol.MethodGetStats].ID)

	// Answer in the opposite order to force correlation by id.
	d.reply(byMethod[protocol.MethodGetStats].ID, protocol.GetStatsResult{Model: "qwen2.5-coder:1.5b", RequestsTotal: 7})
	d.reply(byMethod[protocol.MethodPing].ID, protocol.PingResult{Status: protocol.StatusOK})

	require.NoError(t, waitErr(t, pingDone))
	require.NoError(t, waitErr(t, statsDone))
	assert.Equal(t, protocol.StatusOK, ping.Status)
	assert.Equal(t, int64(7), stats.RequestsTotal)
}

func TestConn_ServerErrorBecomesErrorObject(t *testing.T) {
	c, d := newPipeConn(t, ConnConfig{})

	done := make(chan error, 1)
	go func() {
		_, err := c.SetModel(context.Background(), "")
		done <- err
	}()

	req := d.readRequest()
	d.replyError(req.ID, protocol.CodeInvalidParams, "model is required")

	err := waitErr(t, done)
	var rpcErr *protocol.ErrorObject
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, protocol.CodeInvalidParams, rpcErr.Code)
	assert.Equal(t, "model is required", rpcErr.Message)
}

func TestConn_CallTimeout(t *testing.T) {
	c, d := newPipeConn(t, ConnConfig{CallTimeout: 60 * time.Millisecond})

	done := make(chan error, 1)
	go func() {
		_, err := c.Ping(context.Background())
		done <- err
	}()

	req := d.readRequest()
	assert.ErrorIs(t, waitErr(t, done), ErrTimeout)

	// The late answer finds no waiting call and is dropped; the
	// connection keeps working for the next request.
	d.reply(req.ID, protocol.PingResult{Status: protocol.StatusOK})

	var second protocol.PingResult
	go func() {
		r, err := c.Ping(context.Background())
		second = r
		done <- err
	}()
	next := d.readRequest()
	assert.NotEqual(t, req.ID, next.ID)
	d.reply(next.ID, protocol.PingResult{Status: protocol.StatusOK})
	require.NoError(t, waitErr(t, done))
	assert.Equal(t, protocol.StatusOK, second.Status)
}

func TestConn_ContextCancellation(t *testing.T) {
	c, d := newPipeConn(t, ConnConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Ping(ctx)
		done <- err
	}()

	d.readRequest()
	cancel()
	assert.ErrorIs(t, waitErr(t, done), context.Canceled)
}

func TestConn_SkipsMalformedResponseLines(t *testing.T) {
	c, d := newPipeConn(t, ConnConfig{})

	var result protocol.PingResult
	done := make(chan error, 1)
	go func() {
		r, err := c.Ping(context.Background())
		result = r
		done <- err
	}()

	req := d.readRequest()
	d.writeRaw("this is not json\n")
	d.reply(req.ID, protocol.PingResult{Status: protocol.StatusOK})

	require.NoError(t, waitErr(t, done))
	assert.Equal(t, protocol.StatusOK, result.Status)
}

func TestConn_DaemonDisconnectFailsCalls(t *testing.T) {
	c, d := newPipeConn(t, ConnConfig{})

	done := make(chan error, 1)
	go func() {
		_, err := c.Ping(context.Background())
		done <- err
	}()

	d.readRequest()
	require.NoError(t, d.conn.Close())
	assert.ErrorIs(t, waitErr(t, done), ErrConnClosed)

	_, err := c.Ping(context.Background())
	assert.ErrorIs(t, err, ErrConnClosed)
}

func TestConn_CloseUnblocksCalls(t *testing.T) {
	c, d := newPipeConn(t, ConnConfig{})

	done := make(chan error, 1)
	go func() {
		_, err := c.Ping(context.Background())
		done <- err
	}()

	d.readRequest()
	require.NoError(t, c.Close())
	assert.ErrorIs(t, waitErr(t, done), ErrConnClosed)
	assert.NoError(t, c.Close())
}

func TestConn_NotifyCarriesNoID(t *testing.T) {
	c, d := newPipeConn(t, ConnConfig{})

	done := make(chan error, 1)
	go func() {
		done <- c.Notify(protocol.MethodClearCache, nil)
	}()

	req := d.readRequest()
	assert.Equal(t, int64(0), req.ID)
	assert.Equal(t, protocol.MethodClearCache, req.Method)
	require.NoError(t, waitErr(t, done))

	// An unsolicited answer to the notification is dropped without
	// disturbing later calls.
	d.reply(0, protocol.ClearCacheResult{Status: protocol.StatusOK, Cleared: 3})

	var result protocol.PingResult
	go func() {
		r, err := c.Ping(context.Background())
		result = r
		done <- err
	}()
	next := d.readRequest()
	d.reply(next.ID, protocol.PingResult{Status: protocol.StatusOK})
	require.NoError(t, waitErr(t, done))
	assert.Equal(t, protocol.StatusOK, result.Status)
}
