// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianTab/pkg/logging"
	"github.com/AleutianAI/AleutianTab/services/tab/transport"
)

// childShutdownGrace is how long a spawned daemon gets to exit after
// its stdin closes before being killed.
const childShutdownGrace = 3 * time.Second

// newClient connects a transport.Conn to a daemon: over WebSocket when
// --connect is given, otherwise over stdio pipes to a freshly spawned
// `tab serve` child. The cleanup func tears the connection (and any
// child) down.
func newClient(ctx context.Context) (*transport.Conn, func(), error) {
	log := logging.New(logging.Config{Level: logging.LevelWarn, Service: "tab-cli"})

	var rwc io.ReadWriteCloser
	var err error
	if connectAddr != "" {
		rwc, err = dialDaemon(ctx, connectAddr)
	} else {
		rwc, err = spawnDaemon()
	}
	if err != nil {
		return nil, nil, err
	}

	conn := transport.NewConn(rwc, transport.ConnConfig{}, log)
	cleanup := func() {
		_ = conn.Close()
		log.Close()
	}
	return conn, cleanup, nil
}

// dialDaemon opens the daemon's WebSocket endpoint.
func dialDaemon(ctx context.Context, addr string) (io.ReadWriteCloser, error) {
	url := "ws://" + addr + "/v1/tab/ws"
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", url, err)
	}
	return &wsStream{conn: ws}, nil
}

// wsStream adapts a WebSocket to the line-delimited byte stream the
// transport.Conn codec expects: one outbound line per frame, one
// inbound frame per line.
type wsStream struct {
	conn *websocket.Conn
	buf  bytes.Buffer
}

func (s *wsStream) Read(p []byte) (int, error) {
	for s.buf.Len() == 0 {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		s.buf.Write(data)
		s.buf.WriteByte('\n')
	}
	return s.buf.Read(p)
}

func (s *wsStream) Write(p []byte) (int, error) {
	if err := s.conn.WriteMessage(websocket.TextMessage, bytes.TrimRight(p, "\n")); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsStream) Close() error {
	return s.conn.Close()
}

// spawnDaemon starts `tab serve` as a child on stdio pipes.
func spawnDaemon() (io.ReadWriteCloser, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}

	args := []string{"serve", "--quiet"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	cmd := exec.Command(exe, args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn daemon: %w", err)
	}
	return &childDaemon{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

// childDaemon is the stdio pipe pair of a spawned daemon. Closing it
// closes the child's stdin, which the daemon treats as a clean stop.
type childDaemon struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

func (c *childDaemon) Read(p []byte) (int, error) {
	return c.stdout.Read(p)
}

func (c *childDaemon) Write(p []byte) (int, error) {
	return c.stdin.Write(p)
}

func (c *childDaemon) Close() error {
	_ = c.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- c.cmd.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(childShutdownGrace):
		_ = c.cmd.Process.Kill()
		return <-done
	}
}
