package stream

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"sitepilot/internal/log"
)

// Decoder incrementally parses the `event:`/`data:` line protocol. Feed it
// raw chunks with Write; complete records are dispatched to the handler as
// they appear. A trailing partial line is held until its terminator arrives.
//
// An `event:` line sets the pending event name; the next `data:` line is
// parsed as JSON and dispatched under that name, which is then cleared. A
// `data:` line with no pending name is ignored, as are comments and blank
// lines. A malformed JSON payload skips that single record only.
//
// The decoder has no retry or reconnection responsibility.
type Decoder struct {
	handler func(Event)
	buf     []byte
	pending string
}

// NewDecoder creates a decoder dispatching to handler
func NewDecoder(handler func(Event)) *Decoder {
	return &Decoder{handler: handler}
}

// Write feeds a chunk into the decoder. Always succeeds; implements io.Writer
// so a response body can be copied straight in.
func (d *Decoder) Write(p []byte) (int, error) {
	d.buf = append(d.buf, p...)

	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			return len(p), nil
		}
		line := string(d.buf[:idx])
		d.buf = d.buf[idx+1:]
		d.processLine(strings.TrimSuffix(line, "\r"))
	}
}

// Flush processes any buffered trailing line. Call once at end of stream for
// bodies whose final record lacks a line terminator.
func (d *Decoder) Flush() {
	if len(d.buf) == 0 {
		return
	}
	line := strings.TrimSuffix(string(d.buf), "\r")
	d.buf = nil
	d.processLine(line)
}

func (d *Decoder) processLine(line string) {
	switch {
	case line == "" || strings.HasPrefix(line, ":"):
		return

	case strings.HasPrefix(line, "event:"):
		d.pending = strings.TrimSpace(strings.TrimPrefix(line, "event:"))

	case strings.HasPrefix(line, "data:"):
		if d.pending == "" {
			return
		}
		name := d.pending
		d.pending = ""

		payload := strings.TrimPrefix(line, "data:")
		payload = strings.TrimPrefix(payload, " ")
		d.dispatch(name, []byte(payload))
	}
}

func (d *Decoder) dispatch(name string, payload []byte) {
	var event Event
	var err error

	switch name {
	case "text_delta":
		var e TextDelta
		err = json.Unmarshal(payload, &e)
		event = e

	case "tool_start":
		var e ToolStart
		err = json.Unmarshal(payload, &e)
		event = e

	case "tool_result":
		var e ToolResult
		err = json.Unmarshal(payload, &e)
		event = e

	case "done":
		var e Done
		err = json.Unmarshal(payload, &e)
		event = e

	case "error":
		var e ErrorEvent
		err = json.Unmarshal(payload, &e)
		event = e

	default:
		// Unknown event names pass through silently for forward compatibility
		return
	}

	if err != nil {
		// Malformed record: skip it, the stream itself stays healthy
		log.Debug().Err(err).Str("event", name).Msg("skipping malformed stream record")
		return
	}

	d.handler(event)
}

// Copy drains r through the decoder until EOF or a read error, flushing any
// trailing partial record. Returns the read error, if any.
func Copy(d *Decoder, r io.Reader) error {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			d.Write(buf[:n])
		}
		if err == io.EOF {
			d.Flush()
			return nil
		}
		if err != nil {
			return err
		}
	}
}
