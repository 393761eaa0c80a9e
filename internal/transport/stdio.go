// Copyright 2025 Joseph Cumines
//
// Stdio transport for JSON-RPC 2.0 communication

package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
)

// maxLineSize bounds a single inbound message.
const maxLineSize = 16 << 20

// ErrClosed is returned by operations on a closed transport.
var ErrClosed = errors.New("transport is closed")

// StdioTransport implements newline-delimited JSON-RPC 2.0 over stdin/stdout.
// Requests are handled concurrently so a long build does not block a ping;
// writes are serialized.
//
//lint:ignore BETTERALIGN struct is intentionally ordered for clarity
type StdioTransport struct {
	scanner *bufio.Scanner
	writer  io.Writer
	readMu  sync.Mutex
	writeMu sync.Mutex
	closed  bool
}

// NewStdioTransport creates a new stdio transport
func NewStdioTransport(stdin io.Reader, stdout io.Writer) *StdioTransport {
	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &StdioTransport{
		scanner: scanner,
		writer:  stdout,
	}
}

// errParse wraps a line that was read but could not be decoded.
type errParse struct{ err error }

func (e *errParse) Error() string { return "failed to parse JSON: " + e.err.Error() }
func (e *errParse) Unwrap() error { return e.err }

// ReadMessage reads the next non-empty line as a message. It returns io.EOF
// once stdin is exhausted.
func (t *StdioTransport) ReadMessage() (*Message, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	for {
		if t.IsClosed() {
			return nil, ErrClosed
		}
		if !t.scanner.Scan() {
			if err := t.scanner.Err(); err != nil {
				return nil, fmt.Errorf("failed to read line: %w", err)
			}
			return nil, io.EOF
		}
		line := strings.TrimSpace(t.scanner.Text())
		if line == "" {
			continue
		}
		var msg Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			return nil, &errParse{err}
		}
		return &msg, nil
	}
}

// WriteMessage writes a JSON-RPC 2.0 message followed by a newline.
func (t *StdioTransport) WriteMessage(msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	data = append(data, '\n')

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if _, err := t.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// Close closes the transport
func (t *StdioTransport) Close() error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.closed = true
	return nil
}

// IsClosed returns whether the transport is closed
func (t *StdioTransport) IsClosed() bool {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.closed
}

// Serve reads messages until EOF or ctx is done, dispatching each to handler
// in its own goroutine. In-flight handlers are awaited before returning.
func (t *StdioTransport) Serve(ctx context.Context, handler Handler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	defer wg.Wait()

	msgs := make(chan *Message)
	errs := make(chan error, 1)
	go func() {
		defer close(msgs)
		for {
			msg, err := t.ReadMessage()
			if err != nil {
				var perr *errParse
				if errors.As(err, &perr) {
					log.Printf("Error reading message: %v", err)
					if werr := t.WriteMessage(NewError(json.RawMessage("null"), ErrCodeParseError, "Parse error")); werr != nil {
						log.Printf("Error writing message: %v", werr)
					}
					continue
				}
				errs <- err
				return
			}
			select {
			case msgs <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				var err error
				select {
				case err = <-errs:
				default:
					return nil
				}
				if errors.Is(err, io.EOF) || errors.Is(err, ErrClosed) {
					log.Println("Stdin closed, exiting")
					return nil
				}
				return err
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if response := respond(ctx, handler, msg); response != nil {
					if err := t.WriteMessage(response); err != nil {
						log.Printf("Error writing message: %v", err)
					}
				}
			}()
		}
	}
}
