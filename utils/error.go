package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// Run lifecycle error kinds. Callers must be able to tell these apart
// to render role-specific guidance, so they are sentinel errors rather
// than boolean results.
var (
	ErrRunNotFound      = errors.New("run not found")
	ErrRunAlreadyExists = errors.New("run already exists")
	ErrLockTimeout      = errors.New("run lock not obtained within wait window")
)

// RoleAlreadyTakenError carries the current holder so the caller can
// tell the requester who beat them to the role.
type RoleAlreadyTakenError struct {
	Role   string
	Holder string
}

func (e *RoleAlreadyTakenError) Error() string {
	if e.Holder != "" {
		return fmt.Sprintf("role %s already taken by %s", e.Role, e.Holder)
	}
	return fmt.Sprintf("role %s already taken", e.Role)
}

func IsRoleAlreadyTaken(err error) (*RoleAlreadyTakenError, bool) {
	var taken *RoleAlreadyTakenError
	if errors.As(err, &taken) {
		return taken, true
	}
	return nil, false
}

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
