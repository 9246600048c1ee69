// Package reqctx tags a search or login call with an id that follows its
// events and errors.
package reqctx

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

type key int

const requestKey key = 0

const unknownID = "unknown"

// RequestContext identifies one tool call
type RequestContext struct {
	RequestID string
	Operation string
	StartTime time.Time
}

// Elapsed returns the time since the call started
func (rc *RequestContext) Elapsed() time.Duration {
	return time.Since(rc.StartTime)
}

// WithRequestContext returns ctx tagged with a fresh id for op. A ctx that is
// already tagged is returned unchanged so nested calls share the outer id.
func WithRequestContext(ctx context.Context, op string) context.Context {
	if _, ok := ctx.Value(requestKey).(*RequestContext); ok {
		return ctx
	}
	return context.WithValue(ctx, requestKey, &RequestContext{
		RequestID: generateID(),
		Operation: op,
		StartTime: time.Now(),
	})
}

func GetRequestContext(ctx context.Context) *RequestContext {
	if rc, ok := ctx.Value(requestKey).(*RequestContext); ok {
		return rc
	}
	return &RequestContext{
		RequestID: unknownID,
		StartTime: time.Now(),
	}
}

// RequestID returns the id carried by ctx, or "unknown"
func RequestID(ctx context.Context) string {
	return GetRequestContext(ctx).RequestID
}

func generateID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// RequestError wraps an error with the id of the call that produced it
type RequestError struct {
	RequestID string
	Operation string
	Err       error
}

// Error implements the error interface
func (e *RequestError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("[%s %s] %v", e.Operation, e.RequestID, e.Err)
	}
	return fmt.Sprintf("[%s] %v", e.RequestID, e.Err)
}

// Unwrap returns the underlying error
func (e *RequestError) Unwrap() error {
	return e.Err
}

// NewRequestError wraps err with the request carried by ctx. nil stays nil.
func NewRequestError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	rc := GetRequestContext(ctx)
	return &RequestError{
		RequestID: rc.RequestID,
		Operation: rc.Operation,
		Err:       err,
	}
}
