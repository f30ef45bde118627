package cli

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/keeper/internal/client/models"
	"github.com/dmitrijs2005/keeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/keeper/internal/client/services"
)

var secretTypes = map[string]models.ResourceType{
	"password": models.ResourceTypePassword,
	"totp":     models.ResourceTypeTOTP,
}

// AddSecret prompts for a secret and stores it in the current account.
func (a *App) AddSecret(ctx context.Context) error {
	if err := a.awaitDatabase(ctx); err != nil {
		return err
	}

	name, err := GetSimpleText(a.reader, "Name", a.out)
	if err != nil {
		return err
	}
	kind, err := GetSimpleText(a.reader, "Type (password, totp)", a.out)
	if err != nil {
		return err
	}
	rt, ok := secretTypes[kind]
	if !ok {
		if kind != "" {
			return fmt.Errorf("unknown secret type %q", kind)
		}
		rt = models.ResourceTypePassword
	}
	fields, err := GetFields(a.reader, a.out)
	if err != nil {
		return err
	}

	id, err := a.vault.Add(ctx, services.Secret{Type: rt, Name: name, Fields: fields})
	if err != nil {
		return err
	}
	a.touch(ctx)
	a.printf("Added %s.\n", id)
	return nil
}

// ListSecrets prints the secrets of the current account without
// decrypting them.
func (a *App) ListSecrets(ctx context.Context) error {
	if err := a.awaitDatabase(ctx); err != nil {
		return err
	}
	list, err := a.vault.List(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		a.printf("No secrets.\n")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tNAME\tUPDATED\tSYNCED")
	for _, r := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n",
			r.ID, r.Type, r.Name, r.UpdatedAt.Local().Format(time.DateTime), !r.Pending)
	}
	return w.Flush()
}

// ShowSecret decrypts and prints one secret.
func (a *App) ShowSecret(ctx context.Context, id string) error {
	if err := a.awaitDatabase(ctx); err != nil {
		return err
	}
	s, err := a.vault.Get(ctx, id)
	if err != nil {
		return err
	}

	a.printf("Name: %s\nType: %s\n", s.Name, s.Type)
	names := make([]string, 0, len(s.Fields))
	for n := range s.Fields {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		a.printf("  %s: %s\n", n, s.Fields[n])
	}
	return nil
}

// DeleteSecret removes one secret.
func (a *App) DeleteSecret(ctx context.Context, id string) error {
	if err := a.awaitDatabase(ctx); err != nil {
		return err
	}
	if err := a.vault.Delete(ctx, id); err != nil {
		return err
	}
	a.touch(ctx)
	a.printf("Deleted %s.\n", id)
	return nil
}

// Status prints the session state and whether the account database is open.
func (a *App) Status(ctx context.Context) error {
	st := a.session.State()
	a.printf("Session: %s\n", st.Status)
	if st.Status != models.SessionNone {
		a.printf("Account: %s\n", st.Account.ID)
	}

	open, id := a.manager.State()
	switch {
	case open:
		a.printf("Database: open (%s)\n", id)
		if v, err := a.meta.Get(ctx, metadata.KeyLastModified); err == nil && v != nil {
			a.printf("Last modified: %s\n", v)
		}
	case a.manager.Err() != nil:
		a.printf("Database: unavailable (%v)\n", a.manager.Err())
	default:
		a.printf("Database: closed\n")
	}
	return nil
}

// touch records the time of the last local change.
func (a *App) touch(ctx context.Context) {
	now := time.Now().UTC().Format(time.RFC3339)
	if err := a.meta.Set(ctx, metadata.KeyLastModified, []byte(now)); err != nil {
		a.log.Warn(ctx, "failed to record modification time", "error", err)
	}
}
