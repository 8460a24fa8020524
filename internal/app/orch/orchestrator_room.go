package orch

import (
	"github.com/dkeye/RandomVoice/internal/core"
	"github.com/dkeye/RandomVoice/internal/domain"
	"github.com/dkeye/RandomVoice/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) handleLogin(conn core.SignalConnection, req protocol.Envelope) {
	hint, _ := req.Data()
	id := domain.NewUserID()
	o.register(id, conn)
	log.Info().Str("module", "orch").Str("user", string(id)).Str("hint", hint.Data).Msg("login")
	o.Relay.Reply(conn, protocol.NewLoginResponse(string(id), req.Tx))
}

func (o *Orchestrator) handleEnter(conn core.SignalConnection, req protocol.Envelope) {
	u, ok := o.lookupSender(conn, req)
	if !ok {
		return
	}
	roomID, others, err := o.Rooms.Join(u)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("user", string(u.ID)).Msg("enter rejected")
		o.ack(conn, req, protocol.UserNotFound())
		return
	}
	for _, other := range others {
		if !o.Relay.SendTo(other, protocol.NewMember(string(u.ID), string(other.ID))) {
			log.Warn().Str("module", "orch").Str("room", string(roomID)).Str("user", string(other.ID)).Msg("new member push not delivered")
		}
	}
	o.ack(conn, req, nil)
}

// handleLeave leaves the room but keeps the user registered.
func (o *Orchestrator) handleLeave(conn core.SignalConnection, req protocol.Envelope) {
	u, ok := o.lookupSender(conn, req)
	if !ok {
		return
	}
	o.Rooms.Leave(u)
	o.ack(conn, req, nil)
}

func (o *Orchestrator) handleLogout(conn core.SignalConnection, req protocol.Envelope) {
	u, ok := o.lookupSender(conn, req)
	if !ok {
		return
	}
	if !o.evict(u) {
		o.ack(conn, req, protocol.UserNotFound())
		return
	}
	o.ack(conn, req, nil)
}

func (o *Orchestrator) handleKeepAlive(conn core.SignalConnection, req protocol.Envelope) {
	if _, ok := o.lookupSender(conn, req); !ok {
		return
	}
	o.ack(conn, req, nil)
}
