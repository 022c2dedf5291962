package k8s

import (
	"context"
	"errors"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
)

// Class is the failure category every backend error is converted into
type Class int

const (
	// Transient failures are retried after one back-off interval
	Transient Class = iota
	// Unavailable means the cluster does not serve the kind
	Unavailable
	// NotFound is returned for a single missing object
	NotFound
	// Connectivity means the cluster could not be reached or authenticated
	Connectivity
	// MetricsAbsent means the metrics backend is not installed or unreachable
	MetricsAbsent
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Unavailable:
		return "unavailable"
	case NotFound:
		return "not_found"
	case Connectivity:
		return "connectivity"
	case MetricsAbsent:
		return "metrics_absent"
	default:
		return "unknown"
	}
}

// FetchError is a classified backend failure
type FetchError struct {
	Class Class
	Kind  ResourceKind
	Err   error
}

func (e *FetchError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("%s: %v", e.Class, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Class, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NewFetchError wraps err with an explicit class
func NewFetchError(class Class, kind ResourceKind, err error) *FetchError {
	return &FetchError{Class: class, Kind: kind, Err: err}
}

// ClassOf returns the class of any error; unclassified errors are transient
func ClassOf(err error) Class {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Class
	}
	return Transient
}

// classifyList converts a list failure. A missing resource type or method
// means the cluster version does not serve the kind.
func classifyList(kind ResourceKind, err error) error {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}
	switch {
	case apierrors.IsNotFound(err), meta.IsNoMatchError(err), apierrors.IsMethodNotSupported(err):
		return NewFetchError(Unavailable, kind, err)
	default:
		return NewFetchError(Transient, kind, err)
	}
}

// classifyGet converts a single-object failure
func classifyGet(kind ResourceKind, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case apierrors.IsNotFound(err):
		return NewFetchError(NotFound, kind, err)
	case meta.IsNoMatchError(err), apierrors.IsMethodNotSupported(err):
		return NewFetchError(Unavailable, kind, err)
	default:
		return NewFetchError(Transient, kind, err)
	}
}

// classifyConnect converts a connectivity check failure. Everything that goes
// wrong before the cluster answers is a connectivity problem.
func classifyConnect(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return NewFetchError(Connectivity, "", err)
}
