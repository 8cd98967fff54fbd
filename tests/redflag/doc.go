// Package redflag contains Red-Flag tests that prove the system correctly
// refuses unsafe or invalid operations. Every test here asserts a refusal
// and the exact reason given for it.
package redflag

// This package contains Red-Flag tests organized by concern:
// - policy_test.go: access policy denials surfaced through the gateway
// - auth_test.go: token rejection and revocation
// - bootstrap_test.go: the single-boss guarantee
