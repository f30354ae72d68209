package interfaces

import "context"

// ContextProvider builds the textual market-context summary handed to
// the LLM alongside the deterministic signal. Implementations must
// degrade to an empty summary rather than fail the cycle.
type ContextProvider interface {
	MarketContext(ctx context.Context, symbol string) (string, error)
}
