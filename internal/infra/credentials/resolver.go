// Package credentials resolves the API key for a run. The key lives only in
// memory for the lifetime of the process and is never logged or written to
// disk.
package credentials

import (
	"errors"
	"os"
	"strings"
)

// EnvVar is the environment variable consulted when no explicit key is
// supplied.
const EnvVar = "OPENAI_API_KEY"

// ErrMissing indicates no API key could be obtained from any source.
var ErrMissing = errors.New("an API key is required (set " + EnvVar + " or provide one interactively)")

// PromptFunc asks the user for a key. It is only invoked when both the
// explicit value and the environment are empty.
type PromptFunc func() (string, error)

// Resolver obtains an API key with the precedence: explicit value,
// environment variable, interactive prompt.
type Resolver struct {
	envVar string
	prompt PromptFunc
}

// NewResolver builds a resolver. prompt may be nil for non-interactive
// contexts such as the web server.
func NewResolver(prompt PromptFunc) *Resolver {
	return &Resolver{envVar: EnvVar, prompt: prompt}
}

// Resolve returns the first non-empty key in precedence order, or ErrMissing
// when every source is exhausted. An invalid key is not detected here; it
// surfaces later as an authentication failure from the remote API.
func (r *Resolver) Resolve(explicit string) (string, error) {
	if key := strings.TrimSpace(explicit); key != "" {
		return key, nil
	}
	if key := strings.TrimSpace(os.Getenv(r.envVar)); key != "" {
		return key, nil
	}
	if r.prompt != nil {
		key, err := r.prompt()
		if err != nil {
			return "", err
		}
		if key = strings.TrimSpace(key); key != "" {
			return key, nil
		}
	}
	return "", ErrMissing
}
