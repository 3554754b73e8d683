package handlers

import (
	"context"

	"github.com/energizer-project/blazer/internal/router"
	"github.com/energizer-project/blazer/internal/session"
	"github.com/energizer-project/blazer/internal/tdf"
)

func (d *Deps) fetchProfile(_ context.Context, req *router.Request) (*tdf.Struct, error) {
	account, _ := req.Session.Account()
	b := tdf.NewBuilder().
		Uint("UID", uint64(account.ID)).
		Str("DSNM", account.Persona).
		Str("MAIL", account.Email).
		Uint("SESS", uint64(req.Session.ID()))
	if !account.CreatedAt.IsZero() {
		b.Int("CDAT", account.CreatedAt.Unix())
	}
	if m, ok := req.Session.Membership(); ok {
		b.Uint("GID", uint64(m.GameID))
	}
	return b.Build(), nil
}

func (d *Deps) updateHardwareFlags(_ context.Context, req *router.Request) (*tdf.Struct, error) {
	flags, err := uint32Field(req.Body, "HWFG")
	if err != nil {
		return nil, err
	}
	req.Session.SetHardwareFlags(flags)
	return nil, nil
}

func (d *Deps) updateNetworkInfo(_ context.Context, req *router.Request) (*tdf.Struct, error) {
	var info session.NetworkInfo
	var err error
	if info.InternalAddr, err = req.Body.StringOr("INIP", ""); err != nil {
		return nil, err
	}
	if info.ExternalAddr, err = req.Body.StringOr("EXIP", ""); err != nil {
		return nil, err
	}
	if info.Locale, err = req.Body.StringOr("LOC", ""); err != nil {
		return nil, err
	}
	nat, err := req.Body.UintOr("NATT", 0)
	if err != nil {
		return nil, err
	}
	info.NATType = uint32(nat)

	req.Session.SetNetworkInfo(info)
	req.Session.Logger().Debug().
		Str("internal", info.InternalAddr).
		Str("external", info.ExternalAddr).
		Uint32("nat", info.NATType).
		Msg("network info updated")
	return nil, nil
}
