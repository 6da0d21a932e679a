// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"

	"github.com/daybookhq/daybook-tui/internal/model"
)

// =============================================================================
// WIRE FORMAT
// =============================================================================

// Stream responses are NDJSON: one JSON object per line. Smart query streams
// open with a start line carrying the assigned query id; both stream kinds
// then emit chunk lines and close with exactly one end or error line.

const (
	wireStart = "start"
	wireChunk = "chunk"
	wireEnd   = "end"
	wireError = "error"
)

type wireEvent struct {
	Event   string            `json:"event"`
	ID      string            `json:"id"`
	Content string            `json:"content,omitempty"`
	Model   string            `json:"model,omitempty"`
	Usage   *model.TokenUsage `json:"usage,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// EncodeEventLine serializes a stream event as one NDJSON line, newline
// included. Used by the daemon when writing stream responses.
func EncodeEventLine(ev StreamEvent) []byte {
	w := wireEvent{ID: ev.ID}
	switch ev.Kind {
	case EventChunk:
		w.Event = wireChunk
		w.Content = ev.Chunk
	case EventEnd:
		w.Event = wireEnd
		w.Model = ev.Model
		usage := ev.Usage
		w.Usage = &usage
	case EventError:
		w.Event = wireError
		w.Error = ev.Err
	}
	line, _ := json.Marshal(w)
	return append(line, '\n')
}

// EncodeStartLine serializes the opening line of a smart query stream.
func EncodeStartLine(id string) []byte {
	line, _ := json.Marshal(wireEvent{Event: wireStart, ID: id})
	return append(line, '\n')
}

// =============================================================================
// STREAM DECODER
// =============================================================================

// ErrBadStreamLine is returned when a line cannot be interpreted as a stream
// event. The decoder skips such lines during normal reads; only ReadStart
// surfaces the error, since a malformed opening line means the whole stream
// is unusable.
var ErrBadStreamLine = errors.New("malformed stream line")

// StreamDecoder reads NDJSON stream responses line by line.
type StreamDecoder struct {
	reader *bufio.Reader
}

// NewStreamDecoder wraps a response body in a decoder.
func NewStreamDecoder(r io.Reader) *StreamDecoder {
	return &StreamDecoder{reader: bufio.NewReader(r)}
}

// ReadStart reads the opening line of a smart query stream and returns the
// assigned query id.
func (d *StreamDecoder) ReadStart() (string, error) {
	line, err := d.readLine()
	if err != nil {
		return "", err
	}
	var w wireEvent
	if err := json.Unmarshal(line, &w); err != nil || w.Event != wireStart || w.ID == "" {
		return "", ErrBadStreamLine
	}
	return w.ID, nil
}

// ReadEvent reads the next stream event. Malformed and empty lines are
// skipped, matching how providers interleave keep-alive noise into streams.
// Returns io.EOF when the stream is exhausted.
func (d *StreamDecoder) ReadEvent() (StreamEvent, error) {
	for {
		line, err := d.readLine()
		if err != nil {
			return StreamEvent{}, err
		}

		var w wireEvent
		if err := json.Unmarshal(line, &w); err != nil {
			continue
		}

		ev := StreamEvent{ID: w.ID}
		switch w.Event {
		case wireChunk:
			ev.Kind = EventChunk
			ev.Chunk = w.Content
		case wireEnd:
			ev.Kind = EventEnd
			ev.Model = w.Model
			if w.Usage != nil {
				ev.Usage = *w.Usage
			}
		case wireError:
			ev.Kind = EventError
			ev.Err = w.Error
		default:
			continue
		}
		return ev, nil
	}
}

// readLine returns the next non-empty line, processing a trailing partial
// line at EOF.
func (d *StreamDecoder) readLine() ([]byte, error) {
	for {
		line, err := d.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF && len(line) > 0 {
				return line, nil
			}
			return nil, err
		}
		if len(line) > 1 {
			return line, nil
		}
	}
}
