package accounts

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/keeper/internal/client/models"
)

var (
	// ErrInvalidAccount is returned when an AccountID has no backing record.
	ErrInvalidAccount = errors.New("invalid account")

	// ErrBiometricsUnavailable is matched by every passphrase read failure.
	// Callers fall back to a manual unlock when they see it.
	ErrBiometricsUnavailable = errors.New("biometrics unavailable")

	// ErrPassphraseNotStored is the cause of a BiometricsUnavailableError
	// when no passphrase was ever stored for the account.
	ErrPassphraseNotStored = errors.New("passphrase not stored")
)

// BiometricsUnavailableError wraps the reason a passphrase could not be read.
type BiometricsUnavailableError struct {
	Err error
}

func (e *BiometricsUnavailableError) Error() string {
	return fmt.Sprintf("biometrics unavailable: %v", e.Err)
}

func (e *BiometricsUnavailableError) Unwrap() error { return e.Err }

func (e *BiometricsUnavailableError) Is(target error) bool {
	return target == ErrBiometricsUnavailable
}

// StoreError is a failure of one of the backing stores.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("account store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// DeletionReport lists what DeleteAccount could not remove. A failed step
// is left for the next reconciliation pass to finish.
type DeletionReport struct {
	AccountID models.AccountID
	Failures  map[string]error
}

// Clean reports whether every step succeeded.
func (r DeletionReport) Clean() bool { return len(r.Failures) == 0 }

// Err joins the failures, or returns nil for a clean deletion.
func (r DeletionReport) Err() error {
	if r.Clean() {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, step := range deletionSteps {
		if err, ok := r.Failures[step]; ok {
			errs = append(errs, fmt.Errorf("%s: %w", step, err))
		}
	}
	return errors.Join(errs...)
}

func (r *DeletionReport) fail(step string, err error) {
	if err == nil {
		return
	}
	if r.Failures == nil {
		r.Failures = make(map[string]error)
	}
	r.Failures[step] = err
}
