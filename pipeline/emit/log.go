package emit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// LogEmitter writes events to an io.Writer, either as JSONL or as a terse
// human-readable line per event.
type LogEmitter struct {
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter returns a LogEmitter writing to w (os.Stdout if nil).
func NewLogEmitter(w io.Writer, jsonMode bool) *LogEmitter {
	if w == nil {
		w = os.Stdout
	}
	return &LogEmitter{writer: w, jsonMode: jsonMode}
}

func (l *LogEmitter) Emit(event Event) {
	if l.jsonMode {
		l.emitJSON(event)
		return
	}
	l.emitText(event)
}

func (l *LogEmitter) emitJSON(event Event) {
	data, err := json.Marshal(struct {
		JobID         string                 `json:"job_id"`
		ProcessorName string                 `json:"processor_name,omitempty"`
		PageNumber    *int                   `json:"page_number,omitempty"`
		Msg           string                 `json:"msg"`
		Meta          map[string]interface{} `json:"meta,omitempty"`
	}{event.JobID, event.ProcessorName, event.PageNumber, event.Msg, event.Meta})
	if err != nil {
		_, _ = fmt.Fprintf(l.writer, "{\"error\":\"failed to marshal event: %v\"}\n", err)
		return
	}
	_, _ = fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogEmitter) emitText(event Event) {
	_, _ = fmt.Fprintf(l.writer, "[%s] job=%s processor=%s", event.Msg, event.JobID, event.ProcessorName)
	if event.PageNumber != nil {
		_, _ = fmt.Fprintf(l.writer, " page=%d", *event.PageNumber)
	}
	if len(event.Meta) > 0 {
		if metaJSON, err := json.Marshal(event.Meta); err == nil {
			_, _ = fmt.Fprintf(l.writer, " meta=%s", metaJSON)
		}
	}
	_, _ = fmt.Fprint(l.writer, "\n")
}

func (l *LogEmitter) EmitBatch(_ context.Context, events []Event) error {
	for _, event := range events {
		l.Emit(event)
	}
	return nil
}

func (l *LogEmitter) Flush(_ context.Context) error { return nil }
