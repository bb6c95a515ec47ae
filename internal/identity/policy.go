// Package identity decides which identity strings may join the chat.
// Policies register themselves by name, allowing the server config to pick
// one without the coordinator knowing about any concrete rule.
package identity

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrRejected matches every policy rejection via errors.Is.
var ErrRejected = errors.New("identity rejected")

// RejectedError carries the user-facing reason for a rejection.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return e.Reason
}

// Is reports whether target is ErrRejected.
func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

// Policy validates identities before a participant is registered.
type Policy interface {
	// Name returns the registered policy name (e.g., "suffix").
	Name() string

	// Validate returns nil if the identity is acceptable.
	// The error message is shown to the user as-is.
	Validate(identity string) error
}

// Options carries the settings a policy factory may need.
type Options struct {
	Suffixes []string
}

// Factory builds a policy from options.
type Factory func(opts Options) (Policy, error)

var (
	factories = make(map[string]Factory)
	mu        sync.RWMutex
)

// Register adds a policy factory.
// Panics if a policy with the same name is already registered.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("identity: policy %q already registered", name))
	}
	factories[name] = f
}

// Create instantiates a policy by name.
func Create(name string, opts Options) (Policy, error) {
	mu.RLock()
	f, ok := factories[name]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("identity: unknown policy %q", name)
	}
	return f(opts)
}

// Names returns all registered policy names, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Normalize returns the canonical form used to index identities.
func Normalize(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}

func init() {
	Register(PolicySuffix, func(opts Options) (Policy, error) {
		return NewSuffixPolicy(opts.Suffixes...)
	})
	Register(PolicyOpen, func(Options) (Policy, error) {
		return OpenPolicy{}, nil
	})
}
