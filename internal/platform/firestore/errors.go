package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const maxDocumentIDBytes = 1500

// ErrorKind groups gRPC status codes into the outcomes the repositories act on.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNotFound
	KindConflict
	KindUnavailable
	KindInvalidArgument
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "unavailable"
	case KindInvalidArgument:
		return "invalid_argument"
	default:
		return "unknown"
	}
}

// Error is a classified Firestore failure. It satisfies repositories.RepositoryError.
type Error struct {
	Op   string
	Kind ErrorKind
	Code codes.Code
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound reports a missing document.
func (e *Error) IsNotFound() bool { return e != nil && e.Kind == KindNotFound }

// IsConflict reports a write that lost a race or violated a precondition.
func (e *Error) IsConflict() bool { return e != nil && e.Kind == KindConflict }

// IsUnavailable reports a transient backend failure worth retrying.
func (e *Error) IsUnavailable() bool { return e != nil && e.Kind == KindUnavailable }

// IsInvalidArgument reports a request Firestore refused to evaluate, such as a malformed id.
func (e *Error) IsInvalidArgument() bool { return e != nil && e.Kind == KindInvalidArgument }

func kindOf(code codes.Code) ErrorKind {
	switch code {
	case codes.NotFound:
		return KindNotFound
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted:
		return KindConflict
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.DeadlineExceeded:
		return KindUnavailable
	case codes.InvalidArgument, codes.OutOfRange:
		return KindInvalidArgument
	default:
		return KindUnknown
	}
}

// WrapError classifies err by its gRPC status. Context cancellation and deadlines come back as the
// plain context errors so callers can compare them with errors.Is.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var classified *Error
	if errors.As(err, &classified) {
		if classified.Op == "" {
			classified.Op = op
		}
		return classified
	}

	code := status.Code(err)
	switch code {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}
	return &Error{Op: op, Kind: kindOf(code), Code: code, Err: err}
}

// IsInvalidArgument reports whether err carries a Firestore InvalidArgument classification.
func IsInvalidArgument(err error) bool {
	var classified *Error
	return errors.As(err, &classified) && classified.IsInvalidArgument()
}

// ValidDocumentID reports whether Firestore can store a document under id. Client supplied ids are
// checked before a lookup so an unstorable id reads as a missing document.
func ValidDocumentID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	if len(id) > maxDocumentIDBytes || !utf8.ValidString(id) || strings.Contains(id, "/") {
		return false
	}
	if len(id) >= 4 && strings.HasPrefix(id, "__") && strings.HasSuffix(id, "__") {
		return false
	}
	return true
}

func missingDocument(op, id string) error {
	return &Error{Op: op, Kind: KindNotFound, Code: codes.NotFound, Err: fmt.Errorf("document %q cannot exist", id)}
}

func invalidDocumentID(op, id string) error {
	return &Error{Op: op, Kind: KindInvalidArgument, Code: codes.InvalidArgument, Err: fmt.Errorf("invalid document id %q", id)}
}
