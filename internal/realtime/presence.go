package realtime

import "github.com/rs/zerolog"

// Broadcaster fans an event out to every live session.
type Broadcaster interface {
	BroadcastAll(event Event)
}

// Presence derives online/offline transitions from registry mutations and
// pushes them to all subscribers. State is best-effort and never persisted;
// a process restart simply starts from an empty table.
type Presence struct {
	broadcaster Broadcaster
	logger      zerolog.Logger
}

// NewPresence creates a presence tracker bound to a broadcaster.
func NewPresence(broadcaster Broadcaster, logger zerolog.Logger) *Presence {
	return &Presence{
		broadcaster: broadcaster,
		logger:      logger.With().Str("component", "presence").Logger(),
	}
}

// SessionOpened is called after a registry Add; cameOnline marks the
// offline→online edge.
func (p *Presence) SessionOpened(userID uint, cameOnline bool) {
	if !cameOnline {
		return
	}
	p.logger.Debug().Uint("user_id", userID).Msg("user came online")
	p.broadcaster.BroadcastAll(Event{Type: EventUserOnlineStatus, Data: PresencePayload{UserID: userID, IsOnline: true}})
}

// SessionClosed is called after a registry Remove; wentOffline marks the
// online→offline edge.
func (p *Presence) SessionClosed(userID uint, wentOffline bool) {
	if !wentOffline {
		return
	}
	p.logger.Debug().Uint("user_id", userID).Msg("user went offline")
	p.broadcaster.BroadcastAll(Event{Type: EventUserOnlineStatus, Data: PresencePayload{UserID: userID, IsOnline: false}})
}

// Announce relays an explicit online/offline report from a client (tab
// activated or deactivated) without touching the registry.
func (p *Presence) Announce(userID uint, online bool) {
	p.broadcaster.BroadcastAll(Event{Type: EventUserOnlineStatus, Data: PresencePayload{UserID: userID, IsOnline: online}})
}
