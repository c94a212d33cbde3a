// Package validation collects configuration issues so callers can report
// all of them at once.
package validation

import (
	"errors"
	"fmt"
	"strings"
)

type Error struct {
	Subject string
	Issues  []string
}

func New(subject string) *Error {
	return &Error{Subject: subject}
}

func (e *Error) Error() string {
	subject := e.Subject
	if subject == "" {
		subject = "configuration"
	}
	if len(e.Issues) == 0 {
		return subject + " is invalid"
	}
	return subject + " is invalid: " + strings.Join(e.Issues, "; ")
}

func (e *Error) Add(issue string) {
	if strings.TrimSpace(issue) == "" {
		return
	}
	e.Issues = append(e.Issues, issue)
}

func (e *Error) Addf(format string, args ...any) {
	e.Add(fmt.Sprintf(format, args...))
}

// Merge folds the issues of a nested validation error into e. Other errors
// are added as a single issue.
func (e *Error) Merge(err error) {
	if err == nil {
		return
	}
	var nested *Error
	if errors.As(err, &nested) {
		e.Issues = append(e.Issues, nested.Issues...)
		return
	}
	e.Add(err.Error())
}

func (e *Error) OrNil() error {
	if e == nil || len(e.Issues) == 0 {
		return nil
	}
	return e
}
