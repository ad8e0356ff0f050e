package agent

import "errors"

// ErrUnknownState means a worm was built with a state that has no guise or lifetime.
var ErrUnknownState = errors.New("agent: unknown state")
