package handlers

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/energizer-project/blazer/internal/router"
	"github.com/energizer-project/blazer/internal/session"
	"github.com/energizer-project/blazer/internal/tdf"
)

func (d *Deps) login(ctx context.Context, req *router.Request) (*tdf.Struct, error) {
	var cred session.Credential
	var err error
	if cred.Token, err = req.Body.StringOr("AUTH", ""); err != nil {
		return nil, err
	}
	if !cred.IsToken() {
		if cred.Email, err = req.Body.GetString("MAIL"); err != nil {
			return nil, err
		}
		if cred.Password, err = req.Body.GetString("PASS"); err != nil {
			return nil, err
		}
	}

	account, err := d.Sessions.Authenticate(ctx, req.Session, cred)
	if err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) || errors.Is(err, session.ErrAuthRateLimited) {
			d.Metrics.AuthFailed()
		}
		return nil, err
	}

	b := tdf.NewBuilder().
		Uint("UID", uint64(account.ID)).
		Str("DSNM", account.Persona).
		Str("MAIL", account.Email).
		Uint("SESS", uint64(req.Session.ID()))
	if !account.LastLogin.IsZero() {
		b.Int("LLOG", account.LastLogin.Unix())
	}
	// The session is already authenticated; a signing failure only omits AUTH.
	if d.Tokens != nil {
		token, err := d.Tokens.IssueToken(ctx, account.ID)
		if err != nil {
			req.Session.Logger().Error().Err(err).Msg("failed to issue login token")
		} else {
			b.Str("AUTH", token)
		}
	}
	return b.Build(), nil
}

// encodeInventory renders entitlements as a list of structs plus a currency
// map.
func encodeInventory(inv session.Inventory) *tdf.Struct {
	items := make([]tdf.Value, 0, len(inv.Items))
	for _, it := range inv.Items {
		items = append(items, tdf.NewBuilder().
			Str("KEY", it.Key).
			Str("CAT", it.Category).
			Int("QTY", it.Quantity).
			Int("GDAY", it.GrantedAt.Unix()).
			Build())
	}

	codes := make([]string, 0, len(inv.Currency))
	for code := range inv.Currency {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	currency := &tdf.Map{Key: tdf.TypeString, Elem: tdf.TypeInteger}
	for _, code := range codes {
		currency.Entries = append(currency.Entries, tdf.Entry{Key: tdf.String(code), Value: tdf.Int(inv.Currency[code])})
	}

	return tdf.NewBuilder().
		List("ENTS", tdf.TypeStruct, items...).
		Value("CURR", currency).
		Build()
}

func (d *Deps) listEntitlements(ctx context.Context, req *router.Request) (*tdf.Struct, error) {
	account, _ := req.Session.Account()
	if d.Inventory == nil {
		return encodeInventory(session.Inventory{}), nil
	}
	inv, err := d.Inventory.FetchInventory(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch inventory for account %d: %w", account.ID, err)
	}
	return encodeInventory(inv), nil
}

func (d *Deps) logout(_ context.Context, req *router.Request) (*tdf.Struct, error) {
	d.Sessions.Logout(req.Session)
	return nil, nil
}
