package orch

import (
	"github.com/dkeye/RandomVoice/internal/core"
	"github.com/dkeye/RandomVoice/internal/domain"
	"github.com/dkeye/RandomVoice/internal/protocol"
)

// handleRelay forwards Offer, Answer and Ice payloads verbatim to req.To.
func (o *Orchestrator) handleRelay(conn core.SignalConnection, req protocol.Envelope) {
	if _, ok := o.lookupSender(conn, req); !ok {
		return
	}
	if !o.Relay.Relay(domain.UserID(req.To), protocol.Forward(req)) {
		o.ack(conn, req, protocol.UserNotFound())
		return
	}
	o.ack(conn, req, nil)
}
