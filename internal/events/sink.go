// Package events provides the structured event sink used by the session and
// scrape components.
//
// Components report what happened through Sink.Record and never inspect the
// result, so swapping sinks cannot change control flow.
package events

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Fields carries the structured payload of an event. An "err" field holding an
// error raises the event to warning level.
type Fields map[string]any

// Sink receives structured events
type Sink interface {
	Record(event string, fields Fields)
}

// Nop discards every event
type Nop struct{}

// Record implements Sink
func (Nop) Record(string, Fields) {}

// ZerologSink writes events through a zerolog logger
type ZerologSink struct {
	logger zerolog.Logger
}

// NewZerologSink creates a sink backed by the given logger
func NewZerologSink(logger zerolog.Logger) *ZerologSink {
	return &ZerologSink{logger: logger}
}

// Record implements Sink
func (s *ZerologSink) Record(event string, fields Fields) {
	ev := s.logger.Debug()
	if err, ok := fields["err"].(error); ok && err != nil {
		ev = s.logger.Warn().Err(err)
	}
	for _, k := range sortedKeys(fields) {
		if k == "err" {
			continue
		}
		ev = ev.Interface(k, fields[k])
	}
	ev.Str("event", event).Msg(event)
}

// FileSink writes JSON lines to a size-rotated log file
type FileSink struct {
	out  *lumberjack.Logger
	sink *ZerologSink
}

// FileOptions configures log rotation for FileSink
type FileOptions struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewFileSink creates a sink that appends to path, rotating per opts
func NewFileSink(path string, opts FileOptions) *FileSink {
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}
	out := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
	}
	logger := zerolog.New(out).Level(zerolog.DebugLevel).With().Timestamp().Logger()
	return &FileSink{out: out, sink: NewZerologSink(logger)}
}

// Record implements Sink
func (f *FileSink) Record(event string, fields Fields) {
	f.sink.Record(event, fields)
}

// Close closes the underlying file
func (f *FileSink) Close() error {
	return f.out.Close()
}

// Multi fans events out to several sinks
type Multi []Sink

// Record implements Sink
func (m Multi) Record(event string, fields Fields) {
	for _, s := range m {
		if s != nil {
			s.Record(event, fields)
		}
	}
}

// Recorder keeps events in memory. Tests use it to assert on what was reported.
type Recorder struct {
	mu     sync.Mutex
	Events []Event
}

// Event is a single recorded event
type Event struct {
	Name   string
	Fields Fields
}

// Record implements Sink
func (r *Recorder) Record(event string, fields Fields) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make(Fields, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	r.Events = append(r.Events, Event{Name: event, Fields: cp})
}

// Count returns how many times event was recorded
func (r *Recorder) Count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.Events {
		if e.Name == event {
			n++
		}
	}
	return n
}

// Names returns recorded event names in order
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.Events))
	for i, e := range r.Events {
		names[i] = e.Name
	}
	return names
}

func sortedKeys(f Fields) []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
