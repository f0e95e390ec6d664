package chat

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// sseReader parses text/event-stream payloads. Rumble only populates the
// data field, so event names and IDs are not tracked.
type sseReader struct {
	scanner *bufio.Scanner
	data    bytes.Buffer
}

// Chat events can carry a sizable init payload.
const sseMaxEventSize = 4 << 20

func newSSEReader(r io.Reader) *sseReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), sseMaxEventSize)
	return &sseReader{scanner: sc}
}

// next blocks until a complete non-empty event arrives and returns its data
// payload. Returns io.EOF when the stream ends cleanly.
func (r *sseReader) next() ([]byte, error) {
	r.data.Reset()
	for r.scanner.Scan() {
		line := r.scanner.Text()

		// A blank line terminates the event.
		if line == "" {
			if r.data.Len() == 0 {
				continue
			}
			return r.data.Bytes(), nil
		}

		// Comment lines keep the connection alive.
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		if field != "data" {
			continue
		}
		// Multi-line data fields are joined with newlines.
		if r.data.Len() > 0 {
			r.data.WriteByte('\n')
		}
		r.data.WriteString(value)
	}
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	if r.data.Len() > 0 {
		// Stream ended mid-event but the data is complete enough to parse.
		return r.data.Bytes(), nil
	}
	return nil, io.EOF
}
