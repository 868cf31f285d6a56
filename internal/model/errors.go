package model

import (
	"errors"
	"fmt"
)

// InvalidRangeError reports a malformed requested time range.
type InvalidRangeError struct {
	Start  int64
	End    int64
	Reason string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid range [%d, %d]: %s", e.Start, e.End, e.Reason)
}

// FetchError reports an upstream failure for one interface and window.
type FetchError struct {
	Interface string
	Window    Window
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s %s: %v", e.Interface, e.Window, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// MalformedResponseError reports a response that does not match the
// columnar measurement shape.
type MalformedResponseError struct {
	Interface string
	Reason    string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response for %s: %s", e.Interface, e.Reason)
}

// DoubleFinalizeError is returned when an engine is used after Finalize.
type DoubleFinalizeError struct {
	Op string
}

func (e *DoubleFinalizeError) Error() string {
	return fmt.Sprintf("aggregate: %s called on finalized engine", e.Op)
}

// FailedInterface returns the interface named by a fetch or shape error.
func FailedInterface(err error) (string, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Interface, true
	}
	var me *MalformedResponseError
	if errors.As(err, &me) {
		return me.Interface, true
	}
	return "", false
}
