// Package roles defines the closed set of user roles.
//
// A Role is parsed once at the edge (JSON, database rows, token claims) and is
// a small integer everywhere else, so switches over it can be checked for
// exhaustiveness and an unparsed string can never reach the access policy.
package roles

import (
	"fmt"
)

// Role is the role of a user. The zero value is not a valid role.
type Role uint8

const (
	// Boss may assign their own tasks to employees and delete any task.
	Boss Role = iota + 1

	// Employee may act only on tasks they created or were assigned.
	Employee
)

const (
	bossName     = "boss"
	employeeName = "employee"
)

// All returns every valid role.
func All() []Role {
	return []Role{Boss, Employee}
}

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	return r == Boss || r == Employee
}

// String returns the wire representation of the role.
func (r Role) String() string {
	switch r {
	case Boss:
		return bossName
	case Employee:
		return employeeName
	default:
		return fmt.Sprintf("role(%d)", uint8(r))
	}
}

// Parse parses the wire representation of a role. Matching is case-sensitive:
// only "boss" and "employee" are accepted.
func Parse(s string) (Role, error) {
	switch s {
	case bossName:
		return Boss, nil
	case employeeName:
		return Employee, nil
	default:
		return 0, fmt.Errorf("invalid role: %q (valid: %s, %s)", s, bossName, employeeName)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("cannot marshal invalid role %d", uint8(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
