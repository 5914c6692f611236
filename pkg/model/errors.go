package model

import "errors"

// Sentinel errors shared across edge and controller domain packages.
// Wrap with fmt.Errorf("...: %w", ErrX) at the call site; errhttp matches
// with errors.Is so wrapping never breaks status mapping.
var (
	ErrEdgeNotFound      = errors.New("edge not found")
	ErrCommandNotFound   = errors.New("command not found")
	ErrPluginNotFound    = errors.New("plugin not found")
	ErrInvalidRule       = errors.New("invalid rule definition")
	ErrRulesPushRejected = errors.New("rules push rejected")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrBadRequest        = errors.New("bad request")
)
