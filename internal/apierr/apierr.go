// Package apierr decodes backend error payloads into a closed taxonomy.
//
// The remote data API reports failures as {code, message, details, hint}
// where code is either a PostgreSQL SQLSTATE or a PostgREST PGRSTxxx code.
// Decoding happens exactly once, at the API boundary; everything above
// this package only ever sees the taxonomy, never raw payloads.
package apierr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
)

// Sentinel errors
var (
	// ErrSessionExpired is the synthetic error returned when an operation
	// is refused or abandoned because the session could not be validated.
	ErrSessionExpired = errors.New("session expired")
)

// Class is the classification of a backend failure.
type Class int

const (
	// Unknown is anything that does not match the rest of the taxonomy.
	Unknown Class = iota

	// SessionExpired covers JWT/auth failures that a token refresh can fix.
	SessionExpired

	// Conflict is a uniqueness violation.
	Conflict

	// ReferentialConstraint is a foreign-key violation.
	ReferentialConstraint

	// PermissionDenied is an authorization failure unrelated to expiry.
	PermissionDenied

	// NotFound is a zero-row result where one row was expected.
	NotFound

	// StorageRestricted means the durable local store is unavailable.
	StorageRestricted
)

// String returns the string representation of the class.
func (c Class) String() string {
	switch c {
	case SessionExpired:
		return "session_expired"
	case Conflict:
		return "conflict"
	case ReferentialConstraint:
		return "referential_constraint"
	case PermissionDenied:
		return "permission_denied"
	case NotFound:
		return "not_found"
	case StorageRestricted:
		return "storage_restricted"
	default:
		return "unknown"
	}
}

// PostgREST codes not covered by SQLSTATE constants.
const (
	// CodeJWTExpired is PostgREST's "JWT expired" code.
	CodeJWTExpired = "PGRST301"

	// CodeNoRows is PostgREST's "requested a single object, got zero rows".
	CodeNoRows = "PGRST116"
)

// sessionMessageFragments are matched case-insensitively against backend
// messages when the code alone is inconclusive.
var sessionMessageFragments = []string{
	"jwt expired",
	"jwt invalid",
	"jwt malformed",
	"invalid claim",
	"session expired",
	"authentication required",
	"token expired",
}

// BackendError is the decoded wire error shape from the remote API.
type BackendError struct {
	Op      string // operation context, e.g. "time_entries.insert"
	Status  int    // HTTP status, 0 when not applicable
	Code    string
	Message string
	Details string
	Hint    string
}

func (e *BackendError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: [%s] %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Classify maps an error to the taxonomy. Errors that do not carry a
// decoded BackendError (transport failures, context cancellation) are
// Unknown; callers treat those as transient at the transport layer.
func Classify(err error) Class {
	if err == nil {
		return Unknown
	}

	if errors.Is(err, ErrSessionExpired) {
		return SessionExpired
	}

	var be *BackendError
	if !errors.As(err, &be) {
		return Unknown
	}

	switch be.Code {
	case CodeJWTExpired:
		return SessionExpired
	case CodeNoRows:
		return NotFound
	case pgerrcode.UniqueViolation:
		return Conflict
	case pgerrcode.ForeignKeyViolation:
		return ReferentialConstraint
	case pgerrcode.InsufficientPrivilege:
		return PermissionDenied
	}

	msg := strings.ToLower(be.Message)
	for _, fragment := range sessionMessageFragments {
		if strings.Contains(msg, fragment) {
			return SessionExpired
		}
	}

	// A bare 401/403 with no recognizable code is treated as a session
	// problem: row-level security denials surface this way when the
	// token has silently gone stale.
	switch be.Status {
	case 401, 403:
		return SessionExpired
	}

	return Unknown
}

// IsRetryable reports whether a retry after a session refresh is
// believed to help. Only session expiry qualifies.
func IsRetryable(err error) bool {
	return Classify(err) == SessionExpired
}

// UserMessage returns the non-technical text shown to the user for err.
// Raw backend text is passed through only for Unknown, prefixed with the
// operation name for context.
func UserMessage(op string, err error) string {
	switch Classify(err) {
	case SessionExpired:
		return "your session has expired, reload and try again"
	case Conflict:
		return "a matching record already exists"
	case ReferentialConstraint:
		return "the record is referenced by related data"
	case PermissionDenied:
		return "you do not have permission to perform this action"
	case NotFound:
		return "no matching record was found"
	case StorageRestricted:
		return "local storage is restricted, changes will not survive a restart"
	default:
		return fmt.Sprintf("%s failed: %v", op, err)
	}
}
