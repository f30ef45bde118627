package cli

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dmitrijs2005/keeper/internal/client/accounts"
	"github.com/dmitrijs2005/keeper/internal/client/models"
	"github.com/dmitrijs2005/keeper/internal/client/services"
	"github.com/dmitrijs2005/keeper/internal/common"
	"github.com/dmitrijs2005/keeper/internal/cryptox"
)

var (
	ErrNoAccounts         = errors.New("no accounts registered")
	ErrAmbiguousAccount   = errors.New("account reference is ambiguous")
	ErrPassphraseMismatch = errors.New("passphrases do not match")
)

// ListAccounts prints the registered accounts. The last used one is marked
// with "*".
func (a *App) ListAccounts(ctx context.Context) error {
	list := a.accounts.LoadAccounts(ctx)
	if len(list) == 0 {
		a.printf("No accounts.\n")
		return nil
	}
	last, _ := a.accounts.LoadLastUsedAccount(ctx)
	current := a.session.State()

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\tID\tLABEL\tUSER\tDOMAIN\tBIOMETRICS\tSTATE")
	for _, acc := range list {
		mark := ""
		if acc.ID == last.ID {
			mark = "*"
		}
		profile, err := a.accounts.LoadAccountProfile(ctx, acc.ID)
		if err != nil {
			a.log.Warn(ctx, "failed to load profile", "account_id", acc.ID, "error", err)
		}
		state := "-"
		if current.Account.ID == acc.ID {
			state = current.Status.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\t%s\n",
			mark, acc.ID, profile.Label, acc.UserID, acc.Domain, profile.BiometricsEnabled, state)
	}
	return w.Flush()
}

// AddAccount registers a new account with a freshly generated private key
// protected by the passphrase the user enters, and signs in to it.
func (a *App) AddAccount(ctx context.Context) error {
	userID, err := GetSimpleText(a.reader, "User", a.out)
	if err != nil {
		return err
	}
	domain, err := GetSimpleText(a.reader, "Server domain", a.out)
	if err != nil {
		return err
	}
	label, err := GetSimpleText(a.reader, "Label (optional)", a.out)
	if err != nil {
		return err
	}
	if userID == "" || domain == "" {
		return fmt.Errorf("%w: user and domain are required", accounts.ErrInvalidAccount)
	}
	if label == "" {
		label = userID + "@" + domain
	}

	passphrase, err := a.newPassphrase()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(passphrase)

	key := common.GenerateRandByteArray(cryptox.KeySize)
	defer common.WipeByteArray(key)
	armored, err := cryptox.Armor(key, passphrase)
	if err != nil {
		return err
	}

	account := models.Account{
		ID:          models.NewAccountID(),
		UserID:      userID,
		Domain:      domain,
		Fingerprint: fingerprint(key),
	}
	profile := models.AccountProfile{Label: label, Username: userID}

	if err := a.session.SignIn(ctx, account, profile, models.ArmoredPrivateKey(armored), models.Passphrase(passphrase)); err != nil {
		return err
	}
	if err := a.awaitDatabase(ctx); err != nil {
		return err
	}
	a.printf("Account %s added.\n", account.ID)
	return nil
}

func (a *App) newPassphrase() ([]byte, error) {
	first, err := a.secret("Passphrase")
	if err != nil {
		return nil, err
	}
	second, err := a.secret("Repeat passphrase")
	if err != nil {
		common.WipeByteArray(first)
		return nil, err
	}
	defer common.WipeByteArray(second)
	if len(first) == 0 || string(first) != string(second) {
		common.WipeByteArray(first)
		return nil, ErrPassphraseMismatch
	}
	return first, nil
}

func fingerprint(key []byte) string {
	sum := sha256.Sum256(key)
	return strings.ToUpper(hex.EncodeToString(sum[:8]))
}

// resolveAccount finds an account by id, id prefix or label. An empty ref
// selects the last used account.
func (a *App) resolveAccount(ctx context.Context, ref string) (models.Account, error) {
	if ref == "" {
		if acc, ok := a.accounts.LoadLastUsedAccount(ctx); ok {
			return acc, nil
		}
	}

	list := a.accounts.LoadAccounts(ctx)
	if len(list) == 0 {
		return models.Account{}, ErrNoAccounts
	}
	if ref == "" {
		if len(list) == 1 {
			return list[0], nil
		}
		return models.Account{}, fmt.Errorf("%w: pass an account id", ErrAmbiguousAccount)
	}

	var matches []models.Account
	for _, acc := range list {
		if string(acc.ID) == ref {
			return acc, nil
		}
		profile, _ := a.accounts.LoadAccountProfile(ctx, acc.ID)
		if strings.HasPrefix(string(acc.ID), ref) || profile.Label == ref {
			matches = append(matches, acc)
		}
	}
	switch len(matches) {
	case 0:
		return models.Account{}, fmt.Errorf("%w: %s", accounts.ErrInvalidAccount, ref)
	case 1:
		return matches[0], nil
	}
	return models.Account{}, fmt.Errorf("%w: %s", ErrAmbiguousAccount, ref)
}

// Unlock authorizes the account ref. Biometrics are tried first when the
// account has them enabled; otherwise, or when they fail, the user types
// the passphrase.
func (a *App) Unlock(ctx context.Context, ref string) error {
	acc, err := a.resolveAccount(ctx, ref)
	if err != nil {
		return err
	}

	profile, err := a.accounts.LoadAccountProfile(ctx, acc.ID)
	if err != nil {
		return err
	}

	unlocked := false
	if profile.BiometricsEnabled {
		err := a.session.UnlockWithBiometrics(ctx, acc.ID)
		switch {
		case err == nil:
			unlocked = true
		case errors.Is(err, services.ErrManualUnlockRequired):
			a.log.Info(ctx, "biometric unlock failed", "account_id", acc.ID, "error", err)
			a.printf("Biometric unlock failed, enter the passphrase.\n")
		default:
			return err
		}
	}

	if !unlocked {
		passphrase, err := a.secret("Passphrase for " + displayName(profile, acc))
		if err != nil {
			return err
		}
		err = a.session.Unlock(ctx, acc.ID, models.Passphrase(passphrase))
		common.WipeByteArray(passphrase)
		if err != nil {
			return err
		}
	}

	if err := a.awaitDatabase(ctx); err != nil {
		return err
	}
	a.printf("Unlocked %s.\n", displayName(profile, acc))
	return nil
}

func displayName(p models.AccountProfile, acc models.Account) string {
	if p.Label != "" {
		return p.Label
	}
	return string(acc.ID)
}

// Lock locks the current session.
func (a *App) Lock(ctx context.Context) error {
	if err := a.session.Lock(ctx); err != nil {
		return err
	}
	a.printf("Locked.\n")
	return nil
}

// SignOut ends the current session.
func (a *App) SignOut(ctx context.Context) error {
	a.session.SignOut(ctx)
	a.printf("Signed out.\n")
	return nil
}

// RemoveAccount deletes the account ref and all of its local data. With
// confirm set the user is asked first.
func (a *App) RemoveAccount(ctx context.Context, ref string, confirm bool) error {
	acc, err := a.resolveAccount(ctx, ref)
	if err != nil {
		return err
	}
	if confirm {
		ok, err := Confirm(a.reader, fmt.Sprintf("Remove account %s and all its local data?", acc.ID), a.out)
		if err != nil {
			return err
		}
		if !ok {
			a.printf("Cancelled.\n")
			return nil
		}
	}

	report := a.session.RemoveAccount(ctx, acc.ID)
	if !report.Clean() {
		return fmt.Errorf("account %s was not fully removed: %w", acc.ID, report.Err())
	}
	a.printf("Account %s removed.\n", acc.ID)
	return nil
}

// Reconcile repairs the account store.
func (a *App) Reconcile(ctx context.Context) error {
	if err := a.accounts.Reconcile(ctx); err != nil {
		return err
	}
	a.printf("Accounts reconciled.\n")
	return nil
}

// EnableBiometrics stores the passphrase of the current account behind the
// biometric gate.
func (a *App) EnableBiometrics(ctx context.Context) error {
	acc, err := a.currentAccount()
	if err != nil {
		return err
	}
	armored, err := a.accounts.LoadPrivateKey(ctx, acc.ID)
	if err != nil {
		return err
	}

	passphrase, err := a.secret("Passphrase")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(passphrase)

	key, err := cryptox.Unarmor(string(armored), passphrase)
	if err != nil {
		return err
	}
	common.WipeByteArray(key)

	if err := a.accounts.StorePassphrase(ctx, acc.ID, models.Passphrase(passphrase)); err != nil {
		return err
	}
	a.printf("Biometric unlock enabled.\n")
	return nil
}

// DisableBiometrics removes the stored passphrase of the current account.
func (a *App) DisableBiometrics(ctx context.Context) error {
	acc, err := a.currentAccount()
	if err != nil {
		return err
	}
	if err := a.accounts.DeletePassphrase(ctx, acc.ID); err != nil {
		return err
	}
	a.printf("Biometric unlock disabled.\n")
	return nil
}

// Rename changes the label of the current account.
func (a *App) Rename(ctx context.Context, newLabel string) error {
	acc, err := a.currentAccount()
	if err != nil {
		return err
	}
	profile, err := a.accounts.LoadAccountProfile(ctx, acc.ID)
	if err != nil {
		return err
	}
	profile.Label = newLabel
	if err := a.accounts.UpdateAccountProfile(ctx, profile); err != nil {
		return err
	}
	a.printf("Renamed to %s.\n", newLabel)
	return nil
}
