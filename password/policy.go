package password

import (
	"errors"
	"fmt"
)

const (
	// MinLengthFloor is the smallest minimum length a policy may set.
	MinLengthFloor = 8
	// DefaultMaxPasswordBytes caps input when Config.MaxPasswordBytes is zero.
	DefaultMaxPasswordBytes = 1024
)

var (
	ErrTooShort = errors.New("password too short")
	ErrTooLong  = errors.New("password too long")
)

// LengthError reports a password outside the policy bounds. It matches
// [ErrTooShort] or [ErrTooLong] under errors.Is.
type LengthError struct {
	Limit int
	long  bool
}

func (e *LengthError) Error() string {
	if e.long {
		return fmt.Sprintf("password too long: maximum %d bytes", e.Limit)
	}
	return fmt.Sprintf("password too short: minimum %d bytes", e.Limit)
}

func (e *LengthError) Is(target error) bool {
	if e.long {
		return target == ErrTooLong
	}
	return target == ErrTooShort
}

// Policy bounds password length in bytes. Input is not normalized.
type Policy struct {
	MinLength int
	MaxBytes  int
}

// Check returns a *LengthError when pw falls outside p.
func (p Policy) Check(pw string) error {
	if len(pw) < p.MinLength {
		return &LengthError{Limit: p.MinLength}
	}
	return p.checkMax(pw)
}

func (p Policy) checkMax(pw string) error {
	if len(pw) > p.MaxBytes {
		return &LengthError{Limit: p.MaxBytes, long: true}
	}
	return nil
}
