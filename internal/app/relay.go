package app

import (
	"errors"

	"github.com/dkeye/RandomVoice/internal/core"
	"github.com/dkeye/RandomVoice/internal/domain"
	"github.com/dkeye/RandomVoice/internal/protocol"
	"github.com/rs/zerolog/log"
)

var ErrDeliveryFailed = errors.New("delivery failed")

// Relay forwards encoded envelopes to registered users. Delivery is
// fire-and-forget: a false result is never retried.
type Relay struct {
	registry *Registry
	policy   Policy
}

func NewRelay(registry *Registry, policy Policy) *Relay {
	if policy == nil {
		policy = DropPolicy{}
	}
	return &Relay{registry: registry, policy: policy}
}

// Relay looks up target and forwards env to it.
func (r *Relay) Relay(target domain.UserID, env protocol.Envelope) bool {
	u, ok := r.registry.Lookup(target)
	if !ok {
		log.Debug().Str("module", "app.relay").Str("user", string(target)).Str("type", env.Type.String()).Msg("relay target not registered")
		return false
	}
	return r.SendTo(u, env)
}

// SendTo delivers env to an already resolved user.
func (r *Relay) SendTo(u *User, env protocol.Envelope) bool {
	err := r.deliver(u.Conn, env)
	if err == nil {
		return true
	}
	if errors.Is(err, core.ErrBackpressure) && r.policy.OnBackPressure(u) == KickMember {
		log.Warn().Str("module", "app.relay").Str("user", string(u.ID)).Msg("slow consumer kicked")
		u.Conn.Close()
	}
	return false
}

// Reply answers the connection a request arrived on, registered or not.
func (r *Relay) Reply(conn core.SignalConnection, env protocol.Envelope) {
	if err := r.deliver(conn, env); err != nil {
		log.Warn().Err(err).Str("module", "app.relay").Str("conn", string(conn.ID())).Str("type", env.Type.String()).Msg("reply dropped")
	}
}

func (r *Relay) deliver(conn core.SignalConnection, env protocol.Envelope) error {
	if !conn.IsOpen() {
		return ErrDeliveryFailed
	}
	frame, err := protocol.Encode(env)
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Msg("encode envelope")
		return err
	}
	if err := conn.TrySend(frame); err != nil {
		return errors.Join(ErrDeliveryFailed, err)
	}
	log.Debug().Str("module", "app.relay").Str("conn", string(conn.ID())).Str("type", env.Type.String()).Str("to", env.To).Msg("sent")
	return nil
}
