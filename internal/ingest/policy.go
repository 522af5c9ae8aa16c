package ingest

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownPolicy is returned when parsing a policy name that does not exist.
var ErrUnknownPolicy = errors.New("unknown failure policy")

// Policy decides what happens to a run when a record fails.
type Policy int

const (
	// BestEffort logs failed records and goes on with the next one.
	BestEffort Policy = iota
	// FailFast stops the run on the first failed record.
	FailFast
)

var policyNames = map[Policy]string{
	BestEffort: "best-effort",
	FailFast:   "fail-fast",
}

// ParsePolicy returns the policy matching name.
func ParsePolicy(name string) (Policy, error) {
	for p, n := range policyNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w %q, expected one of best-effort, fail-fast", ErrUnknownPolicy, name)
}

func (p Policy) String() string {
	if n, ok := policyNames[p]; ok {
		return n
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) {
	if _, ok := policyNames[p]; !ok {
		return nil, fmt.Errorf("%w %d", ErrUnknownPolicy, int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(text []byte) error {
	v, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Set implements pflag.Value.
func (p *Policy) Set(s string) error {
	return p.UnmarshalText([]byte(s))
}

// Type implements pflag.Value.
func (Policy) Type() string {
	return "policy"
}
