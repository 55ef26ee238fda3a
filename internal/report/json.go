package report

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/prettymuchbryce/treewatch/internal/event"
)

// jsonLine is one line of JSONReporter output.
type jsonLine struct {
	Time  time.Time  `json:"time"`
	Type  event.Type `json:"type,omitempty"`
	Path  string     `json:"path,omitempty"`
	Error string     `json:"error,omitempty"`
}

// JSONReporter writes one JSON object per event, one per line.
type JSONReporter struct {
	mu  sync.Mutex
	enc *json.Encoder
	now func() time.Time
}

// NewJSON creates a JSONReporter writing to stdout.
func NewJSON() *JSONReporter {
	return NewJSONWithWriter(os.Stdout)
}

// NewJSONWithWriter creates a JSONReporter writing to w.
func NewJSONWithWriter(w io.Writer) *JSONReporter {
	return &JSONReporter{enc: json.NewEncoder(w), now: time.Now}
}

func (r *JSONReporter) Batch(events []event.Event) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for _, e := range events {
		r.enc.Encode(jsonLine{Time: now, Type: e.Type, Path: e.Path})
	}
}

func (r *JSONReporter) Error(err error) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enc.Encode(jsonLine{Time: r.now(), Error: err.Error()})
}
