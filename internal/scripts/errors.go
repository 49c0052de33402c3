package scripts

import "errors"

var (
	ErrMissingPlaceholder    = errors.New("script template is missing a required placeholder")
	ErrUnresolvedPlaceholder = errors.New("placeholder token left unresolved after substitution")
	ErrInvalidClassPath      = errors.New("class path must contain at least one dot")
)
