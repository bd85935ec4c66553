package fieldops

import "context"

// Context is the execution context for FieldOps operations.
// It is an alias for context.Context; company/actor scope is injected
// via the scope package on the stdlib context.
type Context = context.Context
