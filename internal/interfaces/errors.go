package interfaces

import "errors"

// ErrMissingCredential marks a broker call attempted without an API key.
// Surfaced distinctly from transient network failures: retrying will not help
// until the operator supplies a credential.
var ErrMissingCredential = errors.New("broker API key is not configured")
