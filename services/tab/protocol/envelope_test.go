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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// Envelope Construction Tests
// -----------------------------------------------------------------------------

func TestNewRequest(t *testing.T) {
	t.Run("with params", func(t *testing.T) {
		req, err := NewRequest(7, MethodGetSuggestion, GetSuggestionParams{
			FilePath: "main.go",
			Content:  "package main\n",
			Cursor:   CursorPosition{Line: 1, Character: 0},
		})
		require.NoError(t, err)

		assert.Equal(t, Version, req.JSONRPC)
		assert.Equal(t, int64(7), req.ID)
		assert.Equal(t, MethodGetSuggestion, req.Method)
		assert.NotEmpty(t, req.Params)

		var p GetSuggestionParams
		require.NoError(t, json.Unmarshal(req.Params, &p))
		assert.Equal(t, "main.go", p.FilePath)
		assert.Equal(t, 1, p.Cursor.Line)
	})

	t.Run("nil params omitted", func(t *testing.T) {
		req, err := NewRequest(1, MethodPing, nil)
		require.NoError(t, err)
		assert.Nil(t, req.Params)

		data, err := json.Marshal(req)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "params")
	})

	t.Run("unmarshalable params", func(t *testing.T) {
		_, err := NewRequest(1, MethodPing, make(chan int))
		assert.Error(t, err)
	})
}

func TestNewResponse(t *testing.T) {
	resp, err := NewResponse(9, PingResult{Status: StatusOK})
	require.NoError(t, err)

	assert.Equal(t, Version, resp.JSONRPC)
	assert.Equal(t, int64(9), resp.ID)
	assert.Nil(t, resp.Error)

	var result PingResult
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, StatusOK, result.Status)
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse(3, CodeMethodNotFound, "method not found: frobnicate")

	assert.Equal(t, Version, resp.JSONRPC)
	assert.Equal(t, int64(3), resp.ID)
	assert.Nil(t, resp.Result)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "frobnicate")
}

func TestErrorObject_Error(t *testing.T) {
	e := &ErrorObject{Code: CodeInternalError, Message: "boom"}
	assert.Contains(t, e.Error(), "-32603")
	assert.Contains(t, e.Error(), "boom")
}

// -----------------------------------------------------------------------------
// DecodeResult Tests
// -----------------------------------------------------------------------------

func TestResponseEnvelope_DecodeResult(t *testing.T) {
	t.Run("decodes typed result", func(t *testing.T) {
		resp, err := NewResponse(1, GetSuggestionResult{
			Suggestion:   "fmt.Println(x)",
			Type:         SuggestionTypeInsertion,
			SuggestionID: "abc",
			Strategy:     "standard",
			Bucket:       "go:function:medium:mid",
		})
		require.NoError(t, err)

		var result GetSuggestionResult
		require.NoError(t, resp.DecodeResult(&result))
		assert.Equal(t, "fmt.Println(x)", result.Suggestion)
		assert.Equal(t, "standard", result.Strategy)
	})

	t.Run("returns embedded error", func(t *testing.T) {
		resp := NewErrorResponse(1, CodeInvalidParams, "bad cursor")

		var result GetSuggestionResult
		err := resp.DecodeResult(&result)
		require.Error(t, err)

		var eo *ErrorObject
		require.ErrorAs(t, err, &eo)
		assert.Equal(t, CodeInvalidParams, eo.Code)
	})

	t.Run("empty result", func(t *testing.T) {
		resp := ResponseEnvelope{JSONRPC: Version, ID: 1}

		var result PingResult
		assert.ErrorIs(t, resp.DecodeResult(&result), ErrEmptyResult)
	})

	t.Run("malformed result", func(t *testing.T) {
		resp := ResponseEnvelope{
			JSONRPC: Version,
			ID:      1,
			Result:  json.RawMessage(`{"suggestion": 42}`),
		}

		var result GetSuggestionResult
		assert.ErrorIs(t, resp.DecodeResult(&result), ErrMalformedResponse)
	})
}

// -----------------------------------------------------------------------------
// Wire Shape Tests
// -----------------------------------------------------------------------------

func TestResponseEnvelope_WireShape(t *testing.T) {
	t.Run("success omits error member", func(t *testing.T) {
		resp, err := NewResponse(5, ClearCacheResult{Status: StatusOK, Cleared: 12})
		require.NoError(t, err)

		data, err := json.Marshal(resp)
		require.NoError(t, err)
		assert.NotContains(t, string(data), `"error"`)
		assert.Contains(t, string(data), `"cleared":12`)
	})

	t.Run("error omits result member", func(t *testing.T) {
		resp := NewErrorResponse(5, CodeParseError, "parse error")

		data, err := json.Marshal(resp)
		require.NoError(t, err)
		assert.NotContains(t, string(data), `"result"`)
		assert.Contains(t, string(data), `-32700`)
	})
}
