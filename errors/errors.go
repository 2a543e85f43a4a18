/*
Package errors provides the error type for the ingest client. Every failure
surfaced by this module is an *Error. This borrows heavily from the Upspin
errors paper written by Rob Pike.
See: https://commandcenter.blogspot.com/2017/12/error-handling-in-upspin.html
Key differences are wrapped-error support via the stdlib errors package
Unwrap/Is/As additions, a permanence bit that upstream retry policies can
consult, and translation of the service's error envelope.

Usage is simply to pass an Op, a Kind, and either a standard error to be
wrapped or a format string that will become a string error.
*/
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// Separator is the string used to separate nested errors.
var Separator = ":\n\t"

// Op denotes the operation being performed when the error occurred.
type Op uint16

const (
	// OpUnknown indicates that the operation that caused the problem is unknown.
	OpUnknown Op = 0
	// OpIngestStream indicates a streaming ingest call.
	OpIngestStream Op = 1
	// OpIngestQueued indicates a queued ingest call.
	OpIngestQueued Op = 2
	// OpUpload indicates a staging upload to cloud storage.
	OpUpload Op = 3
	// OpResources indicates a resource discovery or token refresh call.
	OpResources Op = 4
	// OpStatus indicates an ingestion status lookup.
	OpStatus Op = 5
)

// String implements fmt.Stringer.
func (o Op) String() string {
	switch o {
	case OpIngestStream:
		return "OpIngestStream"
	case OpIngestQueued:
		return "OpIngestQueued"
	case OpUpload:
		return "OpUpload"
	case OpResources:
		return "OpResources"
	case OpStatus:
		return "OpStatus"
	}
	return "OpUnknown"
}

// Kind classifies the error as one of a set of standard conditions.
type Kind uint16

const (
	// KOther indicates the error kind was not defined.
	KOther Kind = 0
	// KIO is an external I/O error such as a network failure.
	KIO Kind = 1
	// KInternal is an internal error or inconsistency at the client.
	KInternal Kind = 2
	// KTimeout indicates an operation exceeded its deadline.
	KTimeout Kind = 3
	// KCancelled indicates the caller cancelled the operation.
	KCancelled Kind = 4
	// KLimitsExceeded indicates a request or batch was too large.
	KLimitsExceeded Kind = 5
	// KClientArgs indicates the caller supplied invalid arguments or sources.
	KClientArgs Kind = 6
	// KHTTPError wraps a non-2xx service response.
	KHTTPError Kind = 7
	// KBlobstore is a cloud storage (blob or lake) failure.
	KBlobstore Kind = 8
	// KLocalFileSystem is a local file access failure.
	KLocalFileSystem Kind = 9
	// KNoResource indicates a required resource kind is absent from the
	// discovery snapshot.
	KNoResource Kind = 10
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KIO:
		return "KIO"
	case KInternal:
		return "KInternal"
	case KTimeout:
		return "KTimeout"
	case KCancelled:
		return "KCancelled"
	case KLimitsExceeded:
		return "KLimitsExceeded"
	case KClientArgs:
		return "KClientArgs"
	case KHTTPError:
		return "KHTTPError"
	case KBlobstore:
		return "KBlobstore"
	case KLocalFileSystem:
		return "KLocalFileSystem"
	case KNoResource:
		return "KNoResource"
	}
	return "KOther"
}

// Well-known failure codes carried in Error.Code. Server-side envelopes may
// contribute their own codes; these are the ones raised by the client itself.
const (
	ConfigurationUnavailable = "ConfigurationUnavailable"
	NoContainers             = "NoContainers"
	NoQueues                 = "NoQueues"
	NoStatusTable            = "NoStatusTable"
	SourceEmpty              = "SourceEmpty"
	SourceNotReadable        = "SourceNotReadable"
	SourceSizeLimitExceeded  = "SourceSizeLimitExceeded"
	FormatMismatch           = "FormatMismatch"
	DuplicateBlob            = "DuplicateBlob"
	MultiIngestExceededLimit = "MultiIngestExceededLimit"
	UnsupportedSourceKind    = "UnsupportedSourceKind"
	EndpointNotFound         = "EndpointNotFound"
	ServiceError             = "ServiceError"
	RequestError             = "RequestError"
	RequestTooLarge          = "RequestTooLarge"
	UploadFailed             = "UploadFailed"
	Cancelled                = "Cancelled"
	OperationTimeout         = "OperationTimeout"
)

// Error is the error type for the ingest client.
type Error struct {
	// Op is the operation the client was performing.
	Op Op
	// Kind is the error classification.
	Kind Kind
	// Code is a short failure code, either raised by the client (the
	// constants above) or returned by the service envelope.
	Code string
	// SubCode is the service's @failureCode, when one was returned.
	SubCode string
	// Err is the wrapped internal error.
	Err error

	permanent bool
	inner     *Error
}

// SetNoRetry marks the error as permanent and returns it for chaining.
func (e *Error) SetNoRetry() *Error {
	e.permanent = true
	return e
}

// SetCode attaches a failure code and returns the error for chaining.
func (e *Error) SetCode(code string) *Error {
	e.Code = code
	return e
}

// Permanent reports whether upstream retries cannot help.
func (e *Error) Permanent() bool {
	return e.permanent
}

// Unwrap implements the stdlib errors Unwrap contract.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	if e.inner == nil {
		return e.Err
	}
	return e.inner
}

// pad appends str to the buffer if the buffer already has content.
func pad(b *strings.Builder, str string) {
	if b.Len() == 0 {
		return
	}
	b.WriteString(str)
}

func (e *Error) Error() string {
	b := new(strings.Builder)
	if e.Op != OpUnknown {
		pad(b, ": ")
		b.WriteString(fmt.Sprintf("Op(%s)", e.Op))
	}
	if e.Kind != KOther {
		pad(b, ": ")
		b.WriteString(fmt.Sprintf("Kind(%s)", e.Kind))
	}
	if e.Code != "" {
		pad(b, ": ")
		b.WriteString(fmt.Sprintf("Code(%s)", e.Code))
	}
	if e.Err != nil {
		pad(b, ": ")
		b.WriteString(e.Err.Error())
	}
	for inner := e.inner; inner != nil; inner = inner.inner {
		pad(b, Separator)
		b.WriteString(inner.Error())
	}
	if b.Len() == 0 {
		return "no error"
	}
	return b.String()
}

// E constructs an *Error wrapping err. If err is nil, it panics.
func E(o Op, k Kind, err error) *Error {
	if err == nil {
		panic("cannot pass a nil error")
	}
	if inner, ok := err.(*Error); ok {
		cp := *inner
		return &Error{Op: o, Kind: k, Code: cp.Code, SubCode: cp.SubCode, Err: cp.Err, permanent: cp.permanent}
	}
	return &Error{Op: o, Kind: k, Err: err}
}

// ES constructs an *Error from a format string, like fmt.Errorf.
// An empty message panics.
func ES(o Op, k Kind, s string, args ...interface{}) *Error {
	str := fmt.Sprintf(s, args...)
	if strings.TrimSpace(str) == "" {
		panic("errors.ES() cannot have an empty string error")
	}
	return &Error{Op: o, Kind: k, Err: errors.New(str)}
}

// W wraps error outer around inner. Both must be *Error or this panics.
func W(inner error, outer error) *Error {
	o, ok := outer.(*Error)
	if !ok {
		panic("W() got an outer error that was not of type *Error")
	}
	i, ok := inner.(*Error)
	if !ok {
		panic("W() got an inner error that was not of type *Error")
	}
	o.inner = i
	if i.permanent {
		o.permanent = true
	}
	return o
}

// Retry reports whether err may succeed on retry. Errors not raised by this
// package are considered retriable.
func Retry(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return !e.permanent
	}
	return true
}

// envelope is the service's error body shape.
type envelope struct {
	Error struct {
		Code        string `json:"code"`
		Message     string `json:"message"`
		Type        string `json:"@type"`
		Description string `json:"@message"`
		FailureCode string `json:"@failureCode"`
		Permanent   bool   `json:"@permanent"`
	} `json:"error"`
}

// HTTP translates a non-2xx service response into an *Error. The body is
// parsed as the service error envelope when possible; responses marked
// @permanent, and 4xx responses other than 404, are permanent.
func HTTP(op Op, status string, statusCode int, body io.Reader, prefix string) *Error {
	e := &Error{
		Op:   op,
		Kind: KHTTPError,
		Code: ServiceError,
	}

	raw, _ := io.ReadAll(io.LimitReader(body, 1<<20))
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Error.Message != "" {
		e.Code = env.Error.Code
		e.SubCode = env.Error.FailureCode
		msg := env.Error.Message
		if env.Error.Description != "" {
			msg = msg + "; " + env.Error.Description
		}
		if env.Error.Type != "" {
			msg = fmt.Sprintf("%s (%s)", msg, env.Error.Type)
		}
		e.Err = fmt.Errorf("%s(%s): %s", prefix, status, msg)
		if env.Error.Permanent {
			e.permanent = true
			if e.Code == "" {
				e.Code = RequestError
			}
		}
	} else {
		// Unparseable body from a failing request: classify on the status
		// code alone. A 5xx may clear up on retry even when the service did
		// not speak its own protocol.
		e.Err = fmt.Errorf("%s(%s): %s", prefix, status, strings.TrimSpace(string(raw)))
	}

	if statusCode >= 400 && statusCode < 500 && statusCode != 404 {
		e.permanent = true
		if e.Code == ServiceError {
			e.Code = RequestError
		}
	}
	return e
}

// ScrubURL strips the query string (SAS tokens and other secrets) from a URL
// so it can appear in error messages and logs.
func ScrubURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.IndexByte(raw, '?'); i >= 0 {
			return raw[:i]
		}
		return raw
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// GetIngestError returns the *Error inside err, or nil.
func GetIngestError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}
