// Package accounts is the local account registry. It keeps three stores
// consistent with each other:
//
//   - the ordered list of registered AccountIDs in the preference store,
//     which is the only source of truth for which accounts exist;
//   - the Account, AccountProfile, ArmoredPrivateKey and Passphrase records
//     in the secure credential store, tagged by AccountID;
//   - the per-account database files in the application data directory.
//
// Reconcile removes every record and file that is not backed by a listed,
// fully present account. Mutations that can leave the stores out of step
// run it again before returning.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/dmitrijs2005/keeper/internal/client/keystore"
	"github.com/dmitrijs2005/keeper/internal/client/models"
	"github.com/dmitrijs2005/keeper/internal/client/prefs"
	"github.com/dmitrijs2005/keeper/internal/client/storage"
	"github.com/dmitrijs2005/keeper/internal/cryptox"
	"github.com/dmitrijs2005/keeper/internal/filex"
	"github.com/dmitrijs2005/keeper/internal/logging"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Preference keys.
const (
	PrefAccountsList    = "accountsList"
	PrefLastUsedAccount = "lastUsedAccount"
)

// Secure record keys. Every record is tagged with its AccountID.
const (
	KeyAccount    = "account"
	KeyProfile    = "accountProfile"
	KeyPrivateKey = "accountArmoredKey"
	KeyPassphrase = "accountPassphrase"
)

// Step names used in a DeletionReport.
const (
	StepList       = "accounts list"
	StepLastUsed   = "last used account"
	StepPassphrase = "passphrase"
	StepPrivateKey = "private key"
	StepAccount    = "account"
	StepProfile    = "profile"
	StepDatabase   = "database file"
	StepReconcile  = "reconcile"
)

var deletionSteps = []string{
	StepList, StepLastUsed, StepPassphrase, StepPrivateKey,
	StepAccount, StepProfile, StepDatabase, StepReconcile,
}

// Store is the local account registry. All methods are safe for concurrent
// use; they are serialized by a single mutex.
type Store struct {
	mu      sync.Mutex
	prefs   prefs.Store
	secure  keystore.Store
	fs      filex.FS
	log     logging.Logger
	updates *broadcaster
}

// NewStore wires the registry to its backing stores.
func NewStore(p prefs.Store, secure keystore.Store, fs filex.FS, log logging.Logger) *Store {
	log = log.With("component", "accounts")
	return &Store{
		prefs:   p,
		secure:  secure,
		fs:      fs,
		log:     log,
		updates: newBroadcaster(log),
	}
}

// Updates streams the AccountID of every account that was stored, changed
// or removed. The channel is closed when ctx is done.
func (s *Store) Updates(ctx context.Context) <-chan models.AccountID {
	return s.updates.subscribe(ctx)
}

func tagged(key string, id models.AccountID) keystore.Query {
	return keystore.Query{Key: key, Tag: string(id)}
}

func passphraseQuery(id models.AccountID) keystore.Query {
	return keystore.Query{Key: KeyPassphrase, Tag: string(id), RequiresBiometric: true}
}

// Reconcile restores the consistency of the three stores:
//
//  1. the accounts list is read;
//  2. the ids holding Account, Profile and Key records are enumerated, an
//     enumeration failure counting as "nothing present";
//  3. an id stays registered only if it is listed and has all three records;
//  4. the list is rewritten to the surviving ids, keeping its order;
//  5. records of every other enumerated id are deleted, the first failure
//     aborting the pass;
//  6. with no surviving id every passphrase is deleted;
//  7. database files of non-surviving ids are deleted;
//  8. one notification per removed id is published.
//
// Running it twice in a row changes nothing the second time.
func (s *Store) Reconcile(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconcile(ctx)
}

func (s *Store) reconcile(ctx context.Context) error {
	list, err := s.loadList(ctx)
	if err != nil {
		return err
	}

	var present [3]map[models.AccountID]bool
	var g errgroup.Group
	for i, key := range []string{KeyAccount, KeyProfile, KeyPrivateKey} {
		g.Go(func() error {
			present[i] = s.presentIDs(ctx, key)
			return nil
		})
	}
	_ = g.Wait()

	valid := make([]models.AccountID, 0, len(list))
	validSet := make(map[models.AccountID]bool, len(list))
	for _, id := range list {
		if validSet[id] {
			continue
		}
		if present[0][id] && present[1][id] && present[2][id] {
			valid = append(valid, id)
			validSet[id] = true
		}
	}

	if err := s.prefs.Save(ctx, PrefAccountsList, valid); err != nil {
		return storeErr("save accounts list", err)
	}

	removed := make(map[models.AccountID]bool)
	for _, id := range list {
		if !validSet[id] {
			removed[id] = true
		}
	}
	for _, set := range present {
		for id := range set {
			if !validSet[id] {
				removed[id] = true
			}
		}
	}

	for _, id := range sortedIDs(removed) {
		for _, key := range []string{KeyAccount, KeyProfile, KeyPrivateKey} {
			if err := s.secure.Delete(ctx, tagged(key, id)); err != nil {
				return storeErr(fmt.Sprintf("delete %s of %s", key, id), err)
			}
		}
	}

	if len(valid) == 0 {
		if err := s.secure.Delete(ctx, keystore.Query{Key: KeyPassphrase, RequiresBiometric: true}); err != nil {
			return storeErr("delete passphrases", err)
		}
	}

	files, err := s.orphanedFiles(ctx, validSet)
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := s.fs.DeleteFile(f.path); err != nil {
			return storeErr("delete database file", err)
		}
		removed[f.id] = true
	}

	ids := sortedIDs(removed)
	if len(ids) > 0 {
		s.log.Info(ctx, "reconciled accounts", "kept", len(valid), "removed", len(ids))
	}
	for _, id := range ids {
		s.updates.publish(ctx, id)
	}
	return nil
}

func (s *Store) presentIDs(ctx context.Context, key string) map[models.AccountID]bool {
	tags, err := keystore.Tags(ctx, s.secure, keystore.Query{Key: key})
	if err != nil {
		s.log.Warn(ctx, "failed to enumerate records, treating as empty", "key", key, "error", err)
		return nil
	}
	set := make(map[models.AccountID]bool, len(tags))
	for _, t := range tags {
		set[models.AccountID(t)] = true
	}
	return set
}

type dbFile struct {
	id   models.AccountID
	path string
}

// orphanedFiles lists database files, including SQLite sidecar files, whose
// AccountID is not in valid. Only names whose stem is a UUID are considered,
// so unrelated files in the data directory are never touched.
func (s *Store) orphanedFiles(ctx context.Context, valid map[models.AccountID]bool) ([]dbFile, error) {
	dir, err := s.fs.ApplicationDataDirectory()
	if err != nil {
		s.log.Warn(ctx, "failed to resolve data directory", "error", err)
		return nil, nil
	}
	names, err := s.fs.ContentsOfDirectory(dir)
	if err != nil {
		s.log.Warn(ctx, "failed to list data directory", "dir", dir, "error", err)
		return nil, nil
	}

	var out []dbFile
	for _, name := range names {
		id, ok := databaseFileID(name)
		if !ok || valid[id] {
			continue
		}
		out = append(out, dbFile{id: id, path: filepath.Join(dir, name)})
	}
	return out, nil
}

func databaseFileID(name string) (models.AccountID, bool) {
	for _, suffix := range storage.DatabaseFiles("." + storage.Extension) {
		stem, ok := strings.CutSuffix(name, suffix)
		if !ok {
			continue
		}
		if _, err := uuid.Parse(stem); err != nil {
			return "", false
		}
		return models.AccountID(stem), true
	}
	return "", false
}

func sortedIDs(set map[models.AccountID]bool) []models.AccountID {
	ids := make([]models.AccountID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *Store) loadList(ctx context.Context) ([]models.AccountID, error) {
	list, _, err := prefs.Load[[]models.AccountID](ctx, s.prefs, PrefAccountsList)
	if err != nil {
		return nil, storeErr("load accounts list", err)
	}
	return list, nil
}

// StoreAccount registers an account: the id is appended to the list, then
// the profile, the account and the key are written. The first failed write
// is returned. Reconcile runs afterwards whatever the outcome, so a partial
// write is rolled back.
func (s *Store) StoreAccount(ctx context.Context, account models.Account, profile models.AccountProfile, key models.ArmoredPrivateKey) error {
	if account.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidAccount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.store(ctx, account, profile, key)
	if err != nil {
		s.log.Error(ctx, "failed to store account", "account_id", account.ID, "error", err)
	}
	if rerr := s.reconcile(ctx); rerr != nil {
		s.log.Error(ctx, "reconcile after store failed", "account_id", account.ID, "error", rerr)
	}
	s.updates.publish(ctx, account.ID)
	return err
}

func (s *Store) store(ctx context.Context, account models.Account, profile models.AccountProfile, key models.ArmoredPrivateKey) error {
	list, err := s.loadList(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(list, account.ID) {
		list = append(list, account.ID)
	}
	if err := s.prefs.Save(ctx, PrefAccountsList, list); err != nil {
		return storeErr("save accounts list", err)
	}

	profile.AccountID = account.ID
	if err := keystore.Save(ctx, s.secure, profile, tagged(KeyProfile, account.ID)); err != nil {
		return storeErr("save profile", err)
	}
	if err := keystore.Save(ctx, s.secure, account, tagged(KeyAccount, account.ID)); err != nil {
		return storeErr("save account", err)
	}
	if err := keystore.Save(ctx, s.secure, key, tagged(KeyPrivateKey, account.ID)); err != nil {
		return storeErr("save private key", err)
	}
	return nil
}

// LoadAccounts returns the registered accounts in list order. Backend
// failures yield an empty or shorter result.
func (s *Store) LoadAccounts(ctx context.Context) []models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.loadList(ctx)
	if err != nil {
		s.log.Warn(ctx, "failed to load accounts", "error", err)
		return nil
	}
	out := make([]models.Account, 0, len(list))
	for _, id := range list {
		a, err := s.loadAccount(ctx, id)
		if err != nil {
			s.log.Warn(ctx, "skipping unreadable account", "account_id", id, "error", err)
			continue
		}
		out = append(out, a)
	}
	return out
}

// LoadAccount returns the stored Account of id.
func (s *Store) LoadAccount(ctx context.Context, id models.AccountID) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadAccount(ctx, id)
}

func (s *Store) loadAccount(ctx context.Context, id models.AccountID) (models.Account, error) {
	a, ok, err := keystore.LoadFirst[models.Account](ctx, s.secure, tagged(KeyAccount, id))
	if err != nil {
		return models.Account{}, storeErr("load account", err)
	}
	if !ok {
		return models.Account{}, fmt.Errorf("%w: %s", ErrInvalidAccount, id)
	}
	return a, nil
}

// LoadLastUsedAccount returns the account remembered by StoreLastUsedAccount,
// if it still exists.
func (s *Store) LoadLastUsedAccount(ctx context.Context) (models.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok, err := prefs.Load[models.AccountID](ctx, s.prefs, PrefLastUsedAccount)
	if err != nil {
		s.log.Warn(ctx, "failed to load last used account", "error", err)
		return models.Account{}, false
	}
	if !ok || id == "" {
		return models.Account{}, false
	}
	a, err := s.loadAccount(ctx, id)
	if err != nil {
		s.log.Debug(ctx, "last used account is gone", "account_id", id, "error", err)
		return models.Account{}, false
	}
	return a, true
}

// StoreLastUsedAccount remembers id as the account to preselect.
func (s *Store) StoreLastUsedAccount(ctx context.Context, id models.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.prefs.Save(ctx, PrefLastUsedAccount, id); err != nil {
		return storeErr("save last used account", err)
	}
	return nil
}

// LoadPrivateKey returns the armored private key of id.
func (s *Store) LoadPrivateKey(ctx context.Context, id models.AccountID) (models.ArmoredPrivateKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadPrivateKey(ctx, id)
}

func (s *Store) loadPrivateKey(ctx context.Context, id models.AccountID) (models.ArmoredPrivateKey, error) {
	k, ok, err := keystore.LoadFirst[models.ArmoredPrivateKey](ctx, s.secure, tagged(KeyPrivateKey, id))
	if err != nil {
		return "", storeErr("load private key", err)
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrInvalidAccount, id)
	}
	return k, nil
}

// LoadAccountProfile returns the profile of id.
func (s *Store) LoadAccountProfile(ctx context.Context, id models.AccountID) (models.AccountProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadProfile(ctx, id)
}

func (s *Store) loadProfile(ctx context.Context, id models.AccountID) (models.AccountProfile, error) {
	p, ok, err := keystore.LoadFirst[models.AccountProfile](ctx, s.secure, tagged(KeyProfile, id))
	if err != nil {
		return models.AccountProfile{}, storeErr("load profile", err)
	}
	if !ok {
		return models.AccountProfile{}, fmt.Errorf("%w: %s", ErrInvalidAccount, id)
	}
	return p, nil
}

func (s *Store) saveProfile(ctx context.Context, p models.AccountProfile) error {
	if err := keystore.Save(ctx, s.secure, p, tagged(KeyProfile, p.AccountID)); err != nil {
		return storeErr("save profile", err)
	}
	return nil
}

// UpdateAccountProfile replaces the user-facing fields of an existing
// profile. BiometricsEnabled is owned by StorePassphrase and
// DeletePassphrase and is kept as stored.
func (s *Store) UpdateAccountProfile(ctx context.Context, profile models.AccountProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.loadProfile(ctx, profile.AccountID)
	if err != nil {
		return err
	}
	profile.BiometricsEnabled = current.BiometricsEnabled
	if err := s.saveProfile(ctx, profile); err != nil {
		return err
	}
	s.updates.publish(ctx, profile.AccountID)
	return nil
}

// StorePassphrase saves the biometric-gated passphrase of id and enables
// biometrics on its profile.
func (s *Store) StorePassphrase(ctx context.Context, id models.AccountID, passphrase models.Passphrase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, err := s.loadProfile(ctx, id)
	if err != nil {
		return err
	}
	if err := keystore.Save(ctx, s.secure, passphrase, passphraseQuery(id)); err != nil {
		return storeErr("save passphrase", err)
	}
	profile.BiometricsEnabled = true
	if err := s.saveProfile(ctx, profile); err != nil {
		return err
	}
	s.updates.publish(ctx, id)
	return nil
}

// LoadPassphrase reads the passphrase of id through the biometric gate.
// Every failure is a *BiometricsUnavailableError.
func (s *Store) LoadPassphrase(ctx context.Context, id models.AccountID) (models.Passphrase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok, err := keystore.LoadFirst[models.Passphrase](ctx, s.secure, passphraseQuery(id))
	if err != nil {
		return "", &BiometricsUnavailableError{Err: err}
	}
	if !ok {
		return "", &BiometricsUnavailableError{Err: ErrPassphraseNotStored}
	}
	return p, nil
}

// DeletePassphrase disables biometrics on the profile of id and removes its
// passphrase.
func (s *Store) DeletePassphrase(ctx context.Context, id models.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, err := s.loadProfile(ctx, id)
	if err != nil {
		return err
	}
	profile.BiometricsEnabled = false
	if err := s.saveProfile(ctx, profile); err != nil {
		return err
	}
	if err := s.secure.Delete(ctx, passphraseQuery(id)); err != nil {
		return storeErr("delete passphrase", err)
	}
	s.updates.publish(ctx, id)
	return nil
}

// DeleteAccount removes every artifact of id. Each step runs regardless of
// the others; failures are logged and returned in the report, and the
// reconciliation pass that follows removes whatever a failed step left.
func (s *Store) DeleteAccount(ctx context.Context, id models.AccountID) DeletionReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := DeletionReport{AccountID: id}

	report.fail(StepList, s.removeFromList(ctx, id))
	report.fail(StepLastUsed, s.clearLastUsed(ctx, id))
	report.fail(StepPassphrase, s.secure.Delete(ctx, passphraseQuery(id)))
	report.fail(StepPrivateKey, s.secure.Delete(ctx, tagged(KeyPrivateKey, id)))
	report.fail(StepAccount, s.secure.Delete(ctx, tagged(KeyAccount, id)))
	report.fail(StepProfile, s.secure.Delete(ctx, tagged(KeyProfile, id)))
	report.fail(StepDatabase, s.deleteDatabase(id))
	report.fail(StepReconcile, s.reconcile(ctx))

	s.updates.publish(ctx, id)

	if !report.Clean() {
		s.log.Error(ctx, "account deleted with failures", "account_id", id, "error", report.Err())
	} else {
		s.log.Info(ctx, "account deleted", "account_id", id)
	}
	return report
}

func (s *Store) removeFromList(ctx context.Context, id models.AccountID) error {
	list, err := s.loadList(ctx)
	if err != nil {
		return err
	}
	list = slices.DeleteFunc(list, func(x models.AccountID) bool { return x == id })
	if err := s.prefs.Save(ctx, PrefAccountsList, list); err != nil {
		return storeErr("save accounts list", err)
	}
	return nil
}

func (s *Store) clearLastUsed(ctx context.Context, id models.AccountID) error {
	last, ok, err := prefs.Load[models.AccountID](ctx, s.prefs, PrefLastUsedAccount)
	if err != nil {
		return storeErr("load last used account", err)
	}
	if !ok || last != id {
		return nil
	}
	if err := s.prefs.Delete(ctx, PrefLastUsedAccount); err != nil {
		return storeErr("delete last used account", err)
	}
	return nil
}

func (s *Store) deleteDatabase(id models.AccountID) error {
	path, err := s.databasePath(id)
	if err != nil {
		return err
	}
	var errs []error
	for _, f := range storage.DatabaseFiles(path) {
		if err := s.fs.DeleteFile(f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Store) databasePath(id models.AccountID) (string, error) {
	dir, err := s.fs.ApplicationDataDirectory()
	if err != nil {
		return "", storeErr("resolve data directory", err)
	}
	return filepath.Join(dir, string(id)+"."+storage.Extension), nil
}

// DatabaseLocation returns the database file path of id and the key it is
// encrypted with. The key is derived from the account's private key, so it
// is stable for the lifetime of the registration.
func (s *Store) DatabaseLocation(ctx context.Context, id models.AccountID) (string, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	armored, err := s.loadPrivateKey(ctx, id)
	if err != nil {
		return "", nil, err
	}
	path, err := s.databasePath(id)
	if err != nil {
		return "", nil, err
	}
	return path, cryptox.DeriveKey([]byte(armored), []byte(id)), nil
}
