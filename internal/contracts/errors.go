// Package contracts defines the capability interfaces (DeviceReader,
// DataCollectionStrategy, MetricsExporter, SamplerBackend) and the shared
// error taxonomy that every other package in this module depends on. It
// deliberately holds no logic beyond error construction: it exists so that
// device readers, the sampler manager, the collection engine, and the
// transport layer can all refer to the same small set of types without
// importing each other.
package contracts

import "fmt"

// ErrorKind is the error taxonomy from the telemetry design: readers and
// collectors classify failures into one of these kinds rather than
// returning ad-hoc errors, so the engine can decide per-kind whether a
// failure is fatal, transient, or simply "no data this cycle".
type ErrorKind int

const (
	// KindPlatformInit means a vendor library failed to load; the reader
	// is disabled but the process continues.
	KindPlatformInit ErrorKind = iota
	// KindNoDevices means no accelerators of this family are present.
	KindNoDevices
	// KindDeviceAccess means a reader produced samples previously but
	// failed this cycle; prior samples are marked stale.
	KindDeviceAccess
	// KindPermissionDenied means the device requires privileges the
	// process does not hold.
	KindPermissionDenied
	// KindWarming means a sampler subprocess is not yet ready.
	KindWarming
	// KindRemoteFetch means a scrape of a remote host failed.
	KindRemoteFetch
	// KindParseError means tool output or Prometheus text was malformed.
	KindParseError
	// KindFatal means the process cannot continue (bind failure,
	// unrecoverable panic).
	KindFatal
)

func (k ErrorKind) String() string {
	switch k {
	case KindPlatformInit:
		return "platform_init"
	case KindNoDevices:
		return "no_devices"
	case KindDeviceAccess:
		return "device_access"
	case KindPermissionDenied:
		return "permission_denied"
	case KindWarming:
		return "warming"
	case KindRemoteFetch:
		return "remote_fetch"
	case KindParseError:
		return "parse_error"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ReaderError is the error type every DeviceReader, SamplerBackend, and
// collection strategy returns. Remediation is an optional human-readable
// hint (e.g. "add user to the render group") surfaced to logs and, in
// local mode, to the UI collaborator.
type ReaderError struct {
	Kind        ErrorKind
	Source      string // reader/component identity, e.g. "nvidia"
	Remediation string
	Err         error
}

func (e *ReaderError) Error() string {
	if e.Remediation != "" {
		return fmt.Sprintf("%s: %s (%s): %s", e.Source, e.Kind, e.Remediation, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *ReaderError) Unwrap() error { return e.Err }

// Is implements errors.Is matching by Kind alone, so callers can write
// errors.Is(err, contracts.Warming) without constructing a full ReaderError.
func (e *ReaderError) Is(target error) bool {
	if sentinel, ok := target.(*kindSentinel); ok {
		return e.Kind == sentinel.kind
	}
	return false
}

type kindSentinel struct{ kind ErrorKind }

func (s *kindSentinel) Error() string { return s.kind.String() }

var (
	PlatformInit     error = &kindSentinel{KindPlatformInit}
	NoDevices        error = &kindSentinel{KindNoDevices}
	DeviceAccess     error = &kindSentinel{KindDeviceAccess}
	PermissionDenied error = &kindSentinel{KindPermissionDenied}
	Warming          error = &kindSentinel{KindWarming}
	RemoteFetch      error = &kindSentinel{KindRemoteFetch}
	ParseError       error = &kindSentinel{KindParseError}
	Fatal            error = &kindSentinel{KindFatal}
)

// NewReaderError wraps err with a classification and component identity.
func NewReaderError(kind ErrorKind, source string, err error) *ReaderError {
	return &ReaderError{Kind: kind, Source: source, Err: err}
}

// WithRemediation attaches a remediation hint and returns the receiver for
// chaining at the call site, e.g.:
//
//	return nil, contracts.NewReaderError(contracts.KindPermissionDenied, "amd", err).
//		WithRemediation("add user to the video/render group")
func (e *ReaderError) WithRemediation(hint string) *ReaderError {
	e.Remediation = hint
	return e
}

// CollectionError wraps a strategy-level failure (as opposed to a single
// reader's failure, which is absorbed and recorded per-reader).
type CollectionError struct {
	Strategy string
	Err      error
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Strategy, e.Err)
}

func (e *CollectionError) Unwrap() error { return e.Err }
