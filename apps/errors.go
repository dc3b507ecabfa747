// Package apps holds what the executables under apps/ share.
package apps

import "fmt"

// ArgumentError reports a command line argument that is missing or unusable.
type ArgumentError struct {
	Name   string
	Reason string
}

func NewArgumentError(name, reason string) *ArgumentError {
	return &ArgumentError{Name: name, Reason: reason}
}

func (err *ArgumentError) Error() string {
	return fmt.Sprintf("-%s %s", err.Name, err.Reason)
}
