// Package sse implements a minimal, line-buffered Server-Sent-Events
// decoder for LLM streaming responses. It is deliberately hand-rolled
// rather than built on either provider SDK's stream reassembly helper,
// since that reassembly is the component under specification here. The
// line-scanning approach follows the teacher's own ParseSSEStream utility
// (internal/agent/providers/anthropic.go).
package sse

import (
	"bufio"
	"io"
	"strings"
)

// Event is one logical SSE event: an optional named type and its
// (possibly multi-line) data payload joined with newlines.
type Event struct {
	Type string
	Data string
}

// Decoder reads a byte stream and yields complete SSE events, one per
// Next call. Events are terminated by a blank line; "event:" and "data:"
// lines accumulate until then. Comment lines (starting with ':') and
// unrecognised fields ("id:", "retry:") are ignored.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder wraps r for event-at-a-time consumption.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{scanner: bufio.NewScanner(r)}
}

// Next returns the next complete event, or io.EOF once the stream ends
// with no further events pending.
func (d *Decoder) Next() (*Event, error) {
	var eventType string
	var dataLines []string

	for d.scanner.Scan() {
		line := d.scanner.Text()

		if line == "" {
			if eventType != "" || len(dataLines) > 0 {
				return &Event{Type: eventType, Data: strings.Join(dataLines, "\n")}, nil
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
		// ignore comment/id/retry lines
	}

	if err := d.scanner.Err(); err != nil {
		return nil, err
	}
	if eventType != "" || len(dataLines) > 0 {
		return &Event{Type: eventType, Data: strings.Join(dataLines, "\n")}, nil
	}
	return nil, io.EOF
}

// All drains the decoder, invoking handler for each event in order.
// Stops at the first handler error or at end of stream.
func (d *Decoder) All(handler func(Event) error) error {
	for {
		ev, err := d.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := handler(*ev); err != nil {
			return err
		}
	}
}
