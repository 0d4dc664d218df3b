package auth

import "errors"

// ErrUnauthenticated covers missing, malformed, expired and
// signature-invalid credentials.
var ErrUnauthenticated = errors.New("unauthenticated")

// ErrProviderUnavailable is returned when the identity provider's key
// material cannot be fetched at all. It is a retryable infrastructure
// failure and is kept distinct from ErrUnauthenticated so an outage is
// never mistaken for an attack.
var ErrProviderUnavailable = errors.New("identity provider unavailable")
