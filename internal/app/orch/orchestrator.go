// Package orch routes decoded signaling envelopes to the registries and the
// relay. It is the only writer of registry state.
package orch

import (
	"errors"

	"github.com/dkeye/RandomVoice/internal/app"
	"github.com/dkeye/RandomVoice/internal/core"
	"github.com/dkeye/RandomVoice/internal/domain"
	"github.com/dkeye/RandomVoice/internal/protocol"
	"github.com/rs/zerolog/log"
)

type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.RoomManager
	Relay    *app.Relay
}

func New(registry *app.Registry, rooms *app.RoomManager, relay *app.Relay) *Orchestrator {
	return &Orchestrator{Registry: registry, Rooms: rooms, Relay: relay}
}

// OnConnect is called by the transport once a connection is open. A non-empty
// id (connect identity mode) is registered immediately.
func (o *Orchestrator) OnConnect(conn core.SignalConnection, id domain.UserID) {
	log.Info().Str("module", "orch").Str("conn", string(conn.ID())).Str("user", string(id)).Msg("connection opened")
	if id == "" {
		return
	}
	o.register(id, conn)
}

// OnDisconnect runs Leave then Logout for every identity bound to conn.
// Racing an explicit Logout, each identity is cleaned up exactly once.
func (o *Orchestrator) OnDisconnect(conn core.SignalConnection) {
	bound := o.Registry.BoundTo(conn)
	for _, u := range bound {
		o.evict(u)
	}
	log.Info().Str("module", "orch").Str("conn", string(conn.ID())).Int("users", len(bound)).Msg("connection closed")
}

// Dispatch handles one inbound text frame from conn.
func (o *Orchestrator) Dispatch(conn core.SignalConnection, data []byte) {
	env, err := protocol.Decode(data)
	if err != nil {
		if errors.Is(err, protocol.ErrUnrecognizedType) {
			log.Warn().Err(err).Str("module", "orch").Str("conn", string(conn.ID())).Msg("unrecognized message type dropped")
		} else {
			log.Warn().Err(err).Str("module", "orch").Str("conn", string(conn.ID())).Msg("malformed message dropped")
		}
		return
	}

	ev := log.Info()
	if env.Type == protocol.TypeIce {
		ev = log.Debug()
	}
	ev.Str("module", "orch").Str("conn", string(conn.ID())).Str("type", env.Type.String()).Str("from", env.From).Str("to", env.To).Str("tx", env.Tx).Msg("received")

	switch env.Type {
	case protocol.TypeLogin:
		o.handleLogin(conn, env)
	case protocol.TypeEnter:
		o.handleEnter(conn, env)
	case protocol.TypeOffer, protocol.TypeAnswer, protocol.TypeIce:
		o.handleRelay(conn, env)
	case protocol.TypeLeave:
		o.handleLeave(conn, env)
	case protocol.TypeLogout:
		o.handleLogout(conn, env)
	case protocol.TypeKeepAlive:
		o.handleKeepAlive(conn, env)
	default:
		log.Warn().Str("module", "orch").Str("conn", string(conn.ID())).Str("type", env.Type.String()).Msg("not a request type, dropped")
	}
}

func (o *Orchestrator) register(id domain.UserID, conn core.SignalConnection) *app.User {
	u, displaced := o.Registry.Register(id, conn)
	if displaced != nil {
		o.Rooms.Evict(displaced)
	}
	return u
}

func (o *Orchestrator) evict(u *app.User) bool {
	if !o.Registry.RemoveUser(u) {
		return false
	}
	o.Rooms.Evict(u)
	return true
}

func (o *Orchestrator) ack(conn core.SignalConnection, req protocol.Envelope, err *protocol.Error) {
	o.Relay.Reply(conn, protocol.NewAck(req.From, req.Tx, err))
}

// lookupSender resolves req.From or answers with a user-not-found Ack.
func (o *Orchestrator) lookupSender(conn core.SignalConnection, req protocol.Envelope) (*app.User, bool) {
	u, ok := o.Registry.Lookup(domain.UserID(req.From))
	if !ok {
		o.ack(conn, req, protocol.UserNotFound())
	}
	return u, ok
}
