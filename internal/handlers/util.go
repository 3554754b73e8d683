package handlers

import (
	"context"

	"github.com/energizer-project/blazer/internal/protocol"
	"github.com/energizer-project/blazer/internal/router"
	"github.com/energizer-project/blazer/internal/tdf"
)

var advertisedComponents = []uint16{
	protocol.ComponentAuthentication,
	protocol.ComponentGameManager,
	protocol.ComponentUtil,
	protocol.ComponentUserSessions,
}

func (d *Deps) fetchClientConfig(_ context.Context, req *router.Request) (*tdf.Struct, error) {
	id, err := req.Body.StringOr("CFID", "")
	if err != nil {
		return nil, err
	}
	return tdf.NewBuilder().StringMap("CONF", d.ClientConfig[id]).Build(), nil
}

func (d *Deps) ping(context.Context, *router.Request) (*tdf.Struct, error) {
	return tdf.NewBuilder().Uint("STIM", uint64(d.clock().Unix())).Build(), nil
}

func (d *Deps) preAuth(context.Context, *router.Request) (*tdf.Struct, error) {
	ids := make([]tdf.Value, 0, len(advertisedComponents))
	for _, c := range advertisedComponents {
		ids = append(ids, tdf.Uint(uint64(c)))
	}
	period := d.PingPeriod.Milliseconds()
	if period <= 0 {
		period = 15000
	}
	return tdf.NewBuilder().
		Str("ASRC", d.Version).
		Str("INST", d.ServerName).
		List("CIDS", tdf.TypeInteger, ids...).
		Struct("CONF", func(b *tdf.Builder) {
			b.Uint("PPER", uint64(period))
		}).
		Uint("STIM", uint64(d.clock().Unix())).
		Build(), nil
}

func (d *Deps) postAuth(_ context.Context, req *router.Request) (*tdf.Struct, error) {
	account, _ := req.Session.Account()
	return tdf.NewBuilder().
		Uint("UID", uint64(account.ID)).
		Uint("SESS", uint64(req.Session.ID())).
		Uint("STIM", uint64(d.clock().Unix())).
		Build(), nil
}
