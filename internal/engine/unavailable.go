package engine

import (
	"context"
	"fmt"
)

// Unavailable returns a factory whose Create always fails with reason.
// Wired when no engine is configured so task starts surface a terminal
// failure instead of crashing the server.
func Unavailable(reason string) Factory {
	return FactoryFunc(func(ctx context.Context, spec TaskSpec) (Agent, error) {
		return nil, fmt.Errorf("automation engine unavailable: %s", reason)
	})
}
