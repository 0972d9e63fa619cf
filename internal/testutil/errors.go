// Package testutil provides testing utilities for SprintFoundry.
//
// This package contains mock errors and test helpers used across test files.
// It should only be imported by test files (*_test.go).
package testutil

import "errors"

// Mock errors for testing purposes.
// These errors are used to simulate various failure scenarios in tests.
var (
	// ErrMockRuntime indicates a mock agent runtime failure (used in tests).
	ErrMockRuntime = errors.New("runtime exploded")

	// ErrMockPlanner indicates a mock planner failure (used in tests).
	ErrMockPlanner = errors.New("planner exploded")

	// ErrMockGit indicates a mock git failure (used in tests).
	ErrMockGit = errors.New("git exploded")

	// ErrMockTickets indicates a mock ticket provider failure (used in tests).
	ErrMockTickets = errors.New("ticket provider exploded")

	// ErrMockNotify indicates a mock notifier failure (used in tests).
	ErrMockNotify = errors.New("notifier exploded")

	// ErrMockNetwork indicates a mock network error occurred (used in tests).
	ErrMockNetwork = errors.New("network error")
)
