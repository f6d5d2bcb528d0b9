// Package tracer defines the event-tracing hooks the runtime fires
// around method loading and execution.
package tracer

import (
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

// EventTracer receives lifecycle events from a loaded method. A tracer
// must not mutate the values it observes; hooks are called synchronously
// on the executing goroutine.
type EventTracer interface {
	// MethodLoaded fires after a method is fully instantiated.
	MethodLoaded(method string, plannedBytes int64)
	// ExecuteBegin fires before the first instruction of an invocation.
	ExecuteBegin(method string)
	// ExecuteEnd fires after the last instruction or the first failure.
	ExecuteEnd(method string, elapsed time.Duration, err error)
	// OperatorBegin fires before instruction index dispatches op.
	OperatorBegin(method, op string, index int)
	// OperatorEnd fires after the instruction returns.
	OperatorEnd(method, op string, index int, err error)
}

// NopTracer discards all events. It is the default.
type NopTracer struct{}

// MethodLoaded implements EventTracer.
func (NopTracer) MethodLoaded(string, int64) {}

// ExecuteBegin implements EventTracer.
func (NopTracer) ExecuteBegin(string) {}

// ExecuteEnd implements EventTracer.
func (NopTracer) ExecuteEnd(string, time.Duration, error) {}

// OperatorBegin implements EventTracer.
func (NopTracer) OperatorBegin(string, string, int) {}

// OperatorEnd implements EventTracer.
func (NopTracer) OperatorEnd(string, string, int, error) {}

// LogTracer writes events through klog. Method-level events log at v=2,
// per-operator events at v=4. Every tracer carries a run ID so the
// events of concurrent modules can be told apart in shared logs.
type LogTracer struct {
	runID uuid.UUID
}

// NewLogTracer creates a LogTracer with a fresh run ID.
func NewLogTracer() *LogTracer {
	return &LogTracer{runID: uuid.New()}
}

// RunID returns the identifier stamped on every event.
func (l *LogTracer) RunID() uuid.UUID {
	return l.runID
}

// MethodLoaded implements EventTracer.
func (l *LogTracer) MethodLoaded(method string, plannedBytes int64) {
	klog.V(2).InfoS("method loaded", "run", l.runID, "method", method, "plannedBytes", plannedBytes)
}

// ExecuteBegin implements EventTracer.
func (l *LogTracer) ExecuteBegin(method string) {
	klog.V(2).InfoS("execute begin", "run", l.runID, "method", method)
}

// ExecuteEnd implements EventTracer.
func (l *LogTracer) ExecuteEnd(method string, elapsed time.Duration, err error) {
	if err != nil {
		klog.ErrorS(err, "execute failed", "run", l.runID, "method", method, "elapsed", elapsed)
		return
	}
	klog.V(2).InfoS("execute end", "run", l.runID, "method", method, "elapsed", elapsed)
}

// OperatorBegin implements EventTracer.
func (l *LogTracer) OperatorBegin(method, op string, index int) {
	klog.V(4).InfoS("op begin", "run", l.runID, "method", method, "op", op, "index", index)
}

// OperatorEnd implements EventTracer.
func (l *LogTracer) OperatorEnd(method, op string, index int, err error) {
	if err != nil {
		klog.V(2).ErrorS(err, "op failed", "run", l.runID, "method", method, "op", op, "index", index)
		return
	}
	klog.V(4).InfoS("op end", "run", l.runID, "method", method, "op", op, "index", index)
}
