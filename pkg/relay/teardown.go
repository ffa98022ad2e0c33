package relay

import (
	"errors"
	"fmt"
	"strings"
)

// TeardownCategory groups teardown steps; only the first failure per category is kept
type TeardownCategory int

const (
	TeardownWorker TeardownCategory = iota
	TeardownStore
)

// String returns the string representation of a TeardownCategory
func (c TeardownCategory) String() string {
	switch c {
	case TeardownWorker:
		return "worker"
	case TeardownStore:
		return "store"
	default:
		return "unknown"
	}
}

// TeardownError holds the first failure of each category from one shutdown
type TeardownError struct {
	Worker error
	Store  error
}

func (e *TeardownError) Error() string {
	parts := make([]string, 0, 2)
	if e.Worker != nil {
		parts = append(parts, "worker: "+e.Worker.Error())
	}
	if e.Store != nil {
		parts = append(parts, "store: "+e.Store.Error())
	}
	return "relay teardown failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes both causes to errors.Is and errors.As
func (e *TeardownError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Worker != nil {
		out = append(out, e.Worker)
	}
	if e.Store != nil {
		out = append(out, e.Store)
	}
	return out
}

// teardown runs every step it is given and folds their failures
type teardown struct {
	first map[TeardownCategory]error
}

func newTeardown() *teardown {
	return &teardown{first: make(map[TeardownCategory]error, 2)}
}

// run executes step; a panic counts as a failure of the step's category
func (t *teardown) run(cat TeardownCategory, step func() error) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return step()
	}()

	if err != nil {
		if _, seen := t.first[cat]; !seen {
			t.first[cat] = err
		}
	}
}

// err returns nil or a *TeardownError
func (t *teardown) err() error {
	if len(t.first) == 0 {
		return nil
	}
	return &TeardownError{Worker: t.first[TeardownWorker], Store: t.first[TeardownStore]}
}

// IsTeardownError reports whether err carries a *TeardownError
func IsTeardownError(err error) bool {
	var te *TeardownError
	return errors.As(err, &te)
}
