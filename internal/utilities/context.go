package utilities

import "context"

type contextKey string

func (c contextKey) String() string {
	return "nsoauth context key " + string(c)
}

const (
	runIDKey = contextKey("run_id")
)

// WithRunID adds the identifier of the current pipeline run to the context.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// GetRunID reads the pipeline run identifier from the context.
func GetRunID(ctx context.Context) string {
	obj := ctx.Value(runIDKey)
	if obj == nil {
		return ""
	}

	return obj.(string)
}
