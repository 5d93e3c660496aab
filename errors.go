package keyvault

import "github.com/layer-3/keyvault/core"

// Error kinds returned by Client methods
const (
	KindInternal        = core.KindInternal
	KindBadRequest      = core.KindBadRequest
	KindUnauthenticated = core.KindUnauthenticated
	KindForbidden       = core.KindForbidden
	KindNotFound        = core.KindNotFound
	KindConflict        = core.KindConflict
	KindIntegrity       = core.KindIntegrity
)

var (
	// ErrIntegrity is wrapped by errors from a wallet whose sealed key failed authentication
	ErrIntegrity = core.ErrIntegrity

	// ErrSignerTimeout is wrapped by signing errors that hit the deadline
	ErrSignerTimeout = core.ErrSignerTimeout
)

// KindOf reports the kind of an error returned by a Client method
func KindOf(err error) core.Kind { return core.KindOf(err) }

// IsNotFound reports whether err is a missing or inactive record
func IsNotFound(err error) bool { return core.KindOf(err) == core.KindNotFound }

// IsForbidden reports whether err is a rejected credential
func IsForbidden(err error) bool { return core.KindOf(err) == core.KindForbidden }
