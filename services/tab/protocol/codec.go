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
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// MaxLineBytes is the largest wire message the codec will accept.
// Oversized lines are discarded whole so the stream stays framed.
const MaxLineBytes = 4 * 1024 * 1024 // 4MB

// WriteMessage marshals v and writes it as one newline-terminated JSON line.
//
// # Description
//
// The marshaled bytes and the trailing newline go out in a single Write
// call, so concurrent writers that serialize on a mutex never interleave
// partial lines.
func WriteMessage(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// LineReader reads newline-delimited JSON messages from a stream.
//
// # Description
//
// The reader tolerates partial reads: a message split across multiple
// chunks is reassembled before being returned. Lines longer than
// MaxLineBytes are discarded up to the next newline and reported as
// ErrLineTooLong, leaving the reader usable for the next message.
//
// # Thread Safety
//
// Not safe for concurrent use. Dedicate one LineReader per goroutine.
type LineReader struct {
	r *bufio.Reader
}

// NewLineReader wraps r in a LineReader with a 64KB initial buffer.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// ReadMessage returns the next newline-delimited message with surrounding
// whitespace trimmed. Callers should skip zero-length returns (blank lines).
func (lr *LineReader) ReadMessage() ([]byte, error) {
	var buf []byte
	for {
		chunk, err := lr.r.ReadSlice('\n')
		buf = append(buf, chunk...)

		if len(buf) > MaxLineBytes {
			if discardErr := lr.discardToNewline(err == nil); discardErr != nil {
				return nil, discardErr
			}
			return nil, ErrLineTooLong
		}

		switch err {
		case nil:
			return bytes.TrimSpace(buf), nil
		case bufio.ErrBufferFull:
			// Partial line, keep accumulating
			continue
		case io.EOF:
			if len(bytes.TrimSpace(buf)) > 0 {
				// Stream ended mid-message
				return nil, io.ErrUnexpectedEOF
			}
			return nil, io.EOF
		default:
			return nil, err
		}
	}
}

// discardToNewline drops input until the next newline so an oversized line
// does not poison subsequent frames. alreadyTerminated is true when the
// accumulated buffer ended with the newline itself.
func (lr *LineReader) discardToNewline(alreadyTerminated bool) error {
	if alreadyTerminated {
		return nil
	}
	for {
		_, err := lr.r.ReadSlice('\n')
		switch err {
		case nil:
			return nil
		case bufio.ErrBufferFull:
			continue
		default:
			return err
		}
	}
}

// ReadRequest reads and decodes the next request envelope.
func (lr *LineReader) ReadRequest() (RequestEnvelope, error) {
	var req RequestEnvelope
	line, err := lr.next()
	if err != nil {
		return req, err
	}
	if err := json.Unmarshal(line, &req); err != nil {
		return req, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	return req, nil
}

// ReadResponse reads and decodes the next response envelope.
func (lr *LineReader) ReadResponse() (ResponseEnvelope, error) {
	var resp ResponseEnvelope
	line, err := lr.next()
	if err != nil {
		return resp, err
	}
	if err := json.Unmarshal(line, &resp); err != nil {
		return resp, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return resp, nil
}

// next returns the next non-blank message.
func (lr *LineReader) next() ([]byte, error) {
	for {
		line, err := lr.ReadMessage()
		if err != nil {
			return nil, err
		}
		if len(line) > 0 {
			return line, nil
		}
	}
}
