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
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianTab/pkg/logging"
	"github.com/AleutianAI/AleutianTab/services/tab/protocol"
)

// Handler answers one decoded request with one response envelope.
//
// Implementations own method routing and params validation; the
// transport owns framing, ordering, and panic containment.
type Handler interface {
	Handle(ctx context.Context, req protocol.RequestEnvelope) protocol.ResponseEnvelope
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, req protocol.RequestEnvelope) protocol.ResponseEnvelope

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, req protocol.RequestEnvelope) protocol.ResponseEnvelope {
	return f(ctx, req)
}

// Server frames requests for a Handler over stdio or a WebSocket.
//
// # Description
//
//	Each connection is served by one loop that reads, dispatches, and
//	answers strictly in order, so the handler sees at most one request
//	at a time per connection. Undecodable input is answered with a
//	parse error and the loop keeps reading; only a transport failure
//	ends it. A handler panic becomes an internal error response instead
//	of taking the daemon down.
type Server struct {
	handler Handler
	log     *logging.Logger
}

// NewServer builds a server around the given handler.
func NewServer(handler Handler, log *logging.Logger) *Server {
	if log == nil {
		log = logging.Default()
	}
	return &Server{
		handler: handler,
		log:     log.With("component", "tab.server"),
	}
}

// Serve reads requests from in and writes responses to out until the
// stream ends or ctx is cancelled. A clean EOF returns nil.
//
// This is the editor-spawned mode: in and out are the process's own
// stdin and stdout, one editor per daemon.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	reader := protocol.NewLineReader(in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		req, err := reader.ReadRequest()
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return nil
			case errors.Is(err, protocol.ErrMalformedRequest), errors.Is(err, protocol.ErrLineTooLong):
				s.log.Warn("Rejecting undecodable request line", "error", err)
				if werr := protocol.WriteMessage(out, protocol.NewErrorResponse(0, protocol.CodeParseError, "parse error")); werr != nil {
					return werr
				}
				continue
			default:
				return fmt.Errorf("read request: %w", err)
			}
		}
		if req.Method == "" {
			if werr := protocol.WriteMessage(out, protocol.NewErrorResponse(req.ID, protocol.CodeInvalidRequest, "missing method")); werr != nil {
				return werr
			}
			continue
		}
		if err := protocol.WriteMessage(out, s.dispatch(ctx, req)); err != nil {
			return err
		}
	}
}

// dispatch runs the handler, converting a panic into an internal error
// response so one bad request cannot end the connection.
func (s *Server) dispatch(ctx context.Context, req protocol.RequestEnvelope) (resp protocol.ResponseEnvelope) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Handler panic", "method", req.Method, "panic", r)
			resp = protocol.NewErrorResponse(req.ID, protocol.CodeInternalError, "internal error")
		}
	}()
	return s.handler.Handle(ctx, req)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	// 1MB Read Buffer
	ReadBufferSize: 1024 * 1024,
	// 1MB Write Buffer
	WriteBufferSize: 1024 * 1024,
}

// WSHandler serves the same request/response envelopes over a
// WebSocket, one text frame per message.
//
// This is the shared-daemon mode: several editors connect to one
// long-running process and each connection gets its own serial loop.
func (s *Server) WSHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			s.log.Error("Failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()
		s.log.Info("Websocket editor connected", "remote", c.Request.RemoteAddr)

		for {
			_, raw, err := ws.ReadMessage()
			if err != nil {
				s.log.Info("Websocket editor disconnected", "error", err.Error())
				return
			}
			var req protocol.RequestEnvelope
			if err := json.Unmarshal(raw, &req); err != nil {
				if s.sendJSON(ws, protocol.NewErrorResponse(0, protocol.CodeParseError, "parse error")) != nil {
					return
				}
				continue
			}
			if req.Method == "" {
				if s.sendJSON(ws, protocol.NewErrorResponse(req.ID, protocol.CodeInvalidRequest, "missing method")) != nil {
					return
				}
				continue
			}
			if s.sendJSON(ws, s.dispatch(c.Request.Context(), req)) != nil {
				return
			}
		}
	}
}

func (s *Server) sendJSON(ws *websocket.Conn, v any) error {
	err := ws.WriteJSON(v)
	if err != nil {
		s.log.Warn("Failed to write websocket JSON", "error", err)
	}
	return err
}
