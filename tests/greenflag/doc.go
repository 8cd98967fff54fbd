// Package greenflag contains Green-Flag tests that prove the system correctly
// succeeds on explicitly permitted behavior. These tests validate happy paths
// end to end: HTTP gateway, services, access policy and a real SQLite store.
package greenflag

// This package contains Green-Flag tests organized by concern:
// - workflow_test.go: the boss/employee task lifecycle over HTTP
// - storage_test.go: the same operations against a SQLite repository
// - audit_test.go: decision logging and the persisted audit summary
