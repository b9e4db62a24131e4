// Package static provides in-process verifiers for development and tests.
package static

import (
	"context"
	"sync"
)

// Verifier answers from a fixed policy. The zero value rejects everything.
type Verifier struct {
	mu       sync.Mutex
	allowAll bool
	allowed  map[string]bool
	calls    []Call
}

type Call struct {
	Ref       string
	Recipient string
	Amount    int64
}

func AllowAll() *Verifier {
	return &Verifier{allowAll: true}
}

func DenyAll() *Verifier {
	return &Verifier{}
}

// Allow marks ref as verified regardless of the default policy.
func (v *Verifier) Allow(ref string) *Verifier {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.allowed == nil {
		v.allowed = map[string]bool{}
	}
	v.allowed[ref] = true
	return v
}

func (v *Verifier) Verify(_ context.Context, externalRef, expectedRecipient string, expectedAmount int64) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, Call{Ref: externalRef, Recipient: expectedRecipient, Amount: expectedAmount})
	return v.allowAll || v.allowed[externalRef], nil
}

func (v *Verifier) Calls() []Call {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Call(nil), v.calls...)
}
