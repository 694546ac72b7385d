// Package platform hosts the surfaces an agent talks through: the
// interactive terminal session and the virtual in-process platform
// that expert agents run on.
package platform

import "context"

// Platform is a message surface for one agent.
type Platform interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
}

// TurnFunc runs one agent turn, streaming output through emit.
type TurnFunc func(ctx context.Context, input string, emit func(string)) error
