// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package protocol

import (
	"encoding/json"
	"fmt"
)

// Version is the JSON-RPC protocol version carried in every envelope.
const Version = "2.0"

// =============================================================================
// Error Codes
// =============================================================================

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// =============================================================================
// Envelopes
// =============================================================================

// RequestEnvelope is a JSON-RPC 2.0 request.
//
// # Description
//
// The caller assigns a positive, monotonically increasing ID per connection.
// Params is kept raw so the dispatcher can decode into the method's typed
// params struct after routing.
type RequestEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// ResponseEnvelope is a JSON-RPC 2.0 response.
//
// # Description
//
// Exactly one of Result or Error is set. ID echoes the request ID, or 0
// when the request was so malformed no ID could be recovered.
type ResponseEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

// ErrorObject is the error member of a JSON-RPC response.
type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface so transport code can return an
// ErrorObject directly.
func (e *ErrorObject) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// =============================================================================
// Constructors
// =============================================================================

// NewRequest builds a request envelope with marshaled params.
func NewRequest(id int64, method string, params any) (RequestEnvelope, error) {
	req := RequestEnvelope{
		JSONRPC: Version,
		ID:      id,
		Method:  method,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return RequestEnvelope{}, fmt.Errorf("marshal params for %s: %w", method, err)
		}
		req.Params = raw
	}
	return req, nil
}

// NewResponse builds a success response envelope with marshaled result.
func NewResponse(id int64, result any) (ResponseEnvelope, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return ResponseEnvelope{}, fmt.Errorf("marshal result: %w", err)
	}
	return ResponseEnvelope{
		JSONRPC: Version,
		ID:      id,
		Result:  raw,
	}, nil
}

// NewErrorResponse builds an error response envelope.
func NewErrorResponse(id int64, code int, message string) ResponseEnvelope {
	return ResponseEnvelope{
		JSONRPC: Version,
		ID:      id,
		Error: &ErrorObject{
			Code:    code,
			Message: message,
		},
	}
}

// DecodeResult unmarshals the response result into out.
//
// Returns the embedded ErrorObject if the response carries one, and
// ErrEmptyResult if the response has neither result nor error.
func (r *ResponseEnvelope) DecodeResult(out any) error {
	if r.Error != nil {
		return r.Error
	}
	if len(r.Result) == 0 {
		return ErrEmptyResult
	}
	if err := json.Unmarshal(r.Result, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
