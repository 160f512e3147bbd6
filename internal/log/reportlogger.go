package log

import (
	"encoding"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// ReportLogger writes one line per HID report sent to the host.
type ReportLogger interface {
	Log(kind string, r encoding.BinaryMarshaler)
}

type reportLogger struct {
	w   io.Writer
	mu  sync.Mutex
	now func() time.Time
}

// NewReport creates a ReportLogger writing to w. A nil w discards everything.
func NewReport(w io.Writer) ReportLogger {
	return &reportLogger{w: w, now: time.Now}
}

// Log emits a single line with timestamp, report kind and hex dump.
func (l *reportLogger) Log(kind string, r encoding.BinaryMarshaler) {
	if l.w == nil {
		return
	}
	data, err := r.MarshalBinary()
	if err != nil || len(data) == 0 {
		return
	}

	var hex strings.Builder
	const hexdigits = "0123456789abcdef"
	for i, b := range data {
		if i > 0 {
			hex.WriteByte(' ')
		}
		hex.WriteByte(hexdigits[b>>4])
		hex.WriteByte(hexdigits[b&0x0f])
	}
	line := fmt.Sprintf("%s %-5s %d bytes: %s\n",
		l.now().Format("2006/01/02 15:04:05.000"), kind, len(data), hex.String())

	l.mu.Lock()
	_, _ = io.WriteString(l.w, line)
	l.mu.Unlock()
}
