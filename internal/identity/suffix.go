package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// Built-in policy names.
const (
	PolicySuffix = "suffix"
	PolicyOpen   = "open"
)

// DefaultSuffixes are the college email domains accepted out of the box.
var DefaultSuffixes = []string{".edu", ".ac.in", ".edu.in"}

// SuffixPolicy accepts identities ending with one of a fixed set of suffixes.
// Matching is case-insensitive.
type SuffixPolicy struct {
	suffixes []string
}

// NewSuffixPolicy creates a suffix policy. With no suffixes, DefaultSuffixes is used.
func NewSuffixPolicy(suffixes ...string) (*SuffixPolicy, error) {
	if len(suffixes) == 0 {
		suffixes = DefaultSuffixes
	}

	normalized := lo.Uniq(lo.Map(suffixes, func(s string, _ int) string {
		return strings.ToLower(strings.TrimSpace(s))
	}))
	if lo.Contains(normalized, "") {
		return nil, errors.New("identity: empty suffix in suffix policy")
	}

	return &SuffixPolicy{suffixes: normalized}, nil
}

// Name returns the policy name.
func (p *SuffixPolicy) Name() string {
	return PolicySuffix
}

// Suffixes returns the accepted suffixes.
func (p *SuffixPolicy) Suffixes() []string {
	return append([]string(nil), p.suffixes...)
}

// Validate checks the identity against the suffix list.
func (p *SuffixPolicy) Validate(identity string) error {
	id := Normalize(identity)
	if lo.ContainsBy(p.suffixes, func(s string) bool { return strings.HasSuffix(id, s) }) {
		return nil
	}
	return &RejectedError{Reason: fmt.Sprintf("Please use a valid college email (%s)", p.describe())}
}

func (p *SuffixPolicy) describe() string {
	switch len(p.suffixes) {
	case 1:
		return p.suffixes[0]
	case 2:
		return p.suffixes[0] + " or " + p.suffixes[1]
	}
	return strings.Join(p.suffixes[:len(p.suffixes)-1], ", ") + ", or " + p.suffixes[len(p.suffixes)-1]
}

// OpenPolicy accepts any non-blank identity. Meant for local development.
type OpenPolicy struct{}

// Name returns the policy name.
func (OpenPolicy) Name() string {
	return PolicyOpen
}

// Validate rejects only blank identities.
func (OpenPolicy) Validate(identity string) error {
	if strings.TrimSpace(identity) == "" {
		return &RejectedError{Reason: "Identity must not be empty"}
	}
	return nil
}
