package llm

import "context"

// RequestProfile carries optional per-request generation preferences.
type RequestProfile struct {
	MaxTokens  int
	JSONOutput bool
}

type requestProfileContextKey struct{}

// WithRequestProfile stores a request profile on the provided context.
func WithRequestProfile(ctx context.Context, profile RequestProfile) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestProfileContextKey{}, profile)
}

// RequestProfileFromContext retrieves a request profile from context if present.
func RequestProfileFromContext(ctx context.Context) (RequestProfile, bool) {
	if ctx == nil {
		return RequestProfile{}, false
	}
	profile, ok := ctx.Value(requestProfileContextKey{}).(RequestProfile)
	if !ok {
		return RequestProfile{}, false
	}
	return profile, true
}

// MaxTokensFromContext returns the profile's token budget or fallback.
func MaxTokensFromContext(ctx context.Context, fallback int) int {
	if profile, ok := RequestProfileFromContext(ctx); ok && profile.MaxTokens > 0 {
		return profile.MaxTokens
	}
	return fallback
}

// JSONOutputFromContext reports whether the caller asked for a JSON body.
func JSONOutputFromContext(ctx context.Context) bool {
	profile, ok := RequestProfileFromContext(ctx)
	return ok && profile.JSONOutput
}
