// Package services contains the application services of the keeper client.
// This file defines the session service: sign in, lock, unlock (manually or
// through the biometric-gated passphrase), account switching, sign out and
// account removal. Every transition is published as a database.Event, so the
// connection manager opens and closes account databases in step.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/keeper/internal/client/accounts"
	"github.com/dmitrijs2005/keeper/internal/client/database"
	"github.com/dmitrijs2005/keeper/internal/client/models"
	"github.com/dmitrijs2005/keeper/internal/common"
	"github.com/dmitrijs2005/keeper/internal/cryptox"
	"github.com/dmitrijs2005/keeper/internal/logging"
)

var (
	ErrNotSignedIn = errors.New("not signed in")
	ErrLocked      = errors.New("session locked")
	// ErrManualUnlockRequired means the biometric unlock failed and the
	// user has to type the passphrase.
	ErrManualUnlockRequired = errors.New("manual unlock required")
	ErrSessionClosed        = errors.New("session service closed")
)

// AccountStore is the part of accounts.Store the session needs.
type AccountStore interface {
	StoreAccount(ctx context.Context, account models.Account, profile models.AccountProfile, key models.ArmoredPrivateKey) error
	LoadAccount(ctx context.Context, id models.AccountID) (models.Account, error)
	LoadPrivateKey(ctx context.Context, id models.AccountID) (models.ArmoredPrivateKey, error)
	LoadPassphrase(ctx context.Context, id models.AccountID) (models.Passphrase, error)
	StoreLastUsedAccount(ctx context.Context, id models.AccountID) error
	DeleteAccount(ctx context.Context, id models.AccountID) accounts.DeletionReport
}

// EventSync waits until the consumer of Events has handled every event up
// to seq. database.Manager implements it.
type EventSync interface {
	Sync(ctx context.Context, seq uint64) error
}

// SessionService holds the authentication state and the unlocked private
// key of the current account.
type SessionService struct {
	store  AccountStore
	log    logging.Logger
	events chan database.Event
	sync   EventSync

	mu     sync.Mutex
	state  models.SessionState
	seq    uint64
	key    []byte
	closed bool
}

// NewSessionService returns a signed-out session. buffer sizes the event
// channel; publishing blocks while it is full.
func NewSessionService(store AccountStore, log logging.Logger, buffer int) *SessionService {
	return &SessionService{
		store:  store,
		log:    log.With("component", "session"),
		events: make(chan database.Event, buffer),
		state:  models.NoSession(),
	}
}

// Events is the stream to feed into database.Manager.Start. It is closed
// by Close.
func (s *SessionService) Events() <-chan database.Event { return s.events }

// SetEventSync makes RemoveAccount wait for es before deleting files. Call
// it before the service is used.
func (s *SessionService) SetEventSync(es EventSync) { s.sync = es }

// State returns the current session state.
func (s *SessionService) State() models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns the session state together with the sequence number of
// the last published event, for database.Manager.Await.
func (s *SessionService) Current() (models.SessionState, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.seq
}

// PrivateKey returns a copy of the unlocked private key.
func (s *SessionService) PrivateKey() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state.Status {
	case models.SessionNone:
		return nil, ErrNotSignedIn
	case models.SessionAuthorizationRequired:
		return nil, ErrLocked
	}
	return append([]byte(nil), s.key...), nil
}

// SignIn registers account with its armored key and unlocks it. The
// passphrase must open the key.
func (s *SessionService) SignIn(ctx context.Context, account models.Account, profile models.AccountProfile, armored models.ArmoredPrivateKey, passphrase models.Passphrase) error {
	key, err := cryptox.Unarmor(string(armored), []byte(passphrase))
	if err != nil {
		return fmt.Errorf("failed to open private key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		common.WipeByteArray(key)
		return ErrSessionClosed
	}

	if err := s.store.StoreAccount(ctx, account, profile, armored); err != nil {
		common.WipeByteArray(key)
		return fmt.Errorf("failed to store account: %w", err)
	}
	s.authorize(ctx, account, key)
	s.log.Info(ctx, "signed in", "account_id", account.ID)
	return nil
}

// Unlock opens the private key of id with passphrase and authorizes the
// account. Unlocking another account than the current one switches to it.
func (s *SessionService) Unlock(ctx context.Context, id models.AccountID, passphrase models.Passphrase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	armored, err := s.store.LoadPrivateKey(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load private key: %w", err)
	}
	account, err := s.store.LoadAccount(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load account: %w", err)
	}
	key, err := cryptox.Unarmor(string(armored), []byte(passphrase))
	if err != nil {
		return fmt.Errorf("failed to open private key: %w", err)
	}

	s.authorize(ctx, account, key)
	s.log.Info(ctx, "unlocked", "account_id", id)
	return nil
}

// SwitchAccount unlocks another account. The database of the previous one
// is closed first.
func (s *SessionService) SwitchAccount(ctx context.Context, id models.AccountID, passphrase models.Passphrase) error {
	return s.Unlock(ctx, id, passphrase)
}

// UnlockWithBiometrics unlocks id with its stored passphrase. When the
// passphrase cannot be read the error matches ErrManualUnlockRequired.
func (s *SessionService) UnlockWithBiometrics(ctx context.Context, id models.AccountID) error {
	passphrase, err := s.store.LoadPassphrase(ctx, id)
	if err != nil {
		if errors.Is(err, accounts.ErrBiometricsUnavailable) {
			return fmt.Errorf("%w: %w", ErrManualUnlockRequired, err)
		}
		return err
	}
	return s.Unlock(ctx, id, passphrase)
}

// authorize must be called with mu held.
func (s *SessionService) authorize(ctx context.Context, account models.Account, key []byte) {
	if s.state.Status != models.SessionNone && s.state.Account.ID != account.ID {
		s.signOut()
	}
	common.WipeByteArray(s.key)
	s.key = key
	s.state = models.Authorized(account)
	s.publish(database.SessionEvent(s.state))

	if err := s.store.StoreLastUsedAccount(ctx, account.ID); err != nil {
		s.log.Warn(ctx, "failed to remember last used account", "account_id", account.ID, "error", err)
	}
}

// Lock forgets the private key and requires authorization again. Locking
// a locked session does nothing.
func (s *SessionService) Lock(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state.Status {
	case models.SessionNone:
		return ErrNotSignedIn
	case models.SessionAuthorizationRequired:
		return nil
	}
	common.WipeByteArray(s.key)
	s.key = nil
	s.state = models.AuthorizationRequired(s.state.Account)
	s.publish(database.SessionEvent(s.state))
	s.log.Info(ctx, "locked", "account_id", s.state.Account.ID)
	return nil
}

// SignOut ends the session. The account stays registered.
func (s *SessionService) SignOut(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Status == models.SessionNone {
		return
	}
	s.log.Info(ctx, "signed out", "account_id", s.state.Account.ID)
	s.signOut()
}

func (s *SessionService) signOut() {
	common.WipeByteArray(s.key)
	s.key = nil
	s.state = models.NoSession()
	s.publish(database.SessionEvent(s.state))
}

// RemoveAccount signs out if id is the current account, waits until the
// database manager has caught up and then deletes the account. Waiting
// keeps an open in flight from recreating the database after deletion.
func (s *SessionService) RemoveAccount(ctx context.Context, id models.AccountID) accounts.DeletionReport {
	s.mu.Lock()
	if s.state.Status != models.SessionNone && s.state.Account.ID == id {
		s.signOut()
	}
	seq := s.seq
	s.mu.Unlock()

	if s.sync != nil {
		if err := s.sync.Sync(ctx, seq); err != nil {
			s.log.Warn(ctx, "database manager did not catch up before account removal",
				"account_id", id, "error", err)
		}
	}
	return s.store.DeleteAccount(ctx, id)
}

// EnterBackground reports that the application went to the background.
func (s *SessionService) EnterBackground() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish(database.LifecycleEvent(database.LifecycleBackground))
}

// EnterForeground reports that the application is in the foreground again.
func (s *SessionService) EnterForeground() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish(database.LifecycleEvent(database.LifecycleForeground))
}

// publish stamps ev with the next sequence number. It must be called with
// mu held.
func (s *SessionService) publish(ev database.Event) {
	if s.closed {
		return
	}
	s.seq++
	s.events <- ev.At(s.seq)
}

// Close wipes the key and closes the event stream, which closes the
// database.
func (s *SessionService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	common.WipeByteArray(s.key)
	s.key = nil
	s.closed = true
	close(s.events)
}
