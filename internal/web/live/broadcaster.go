package live

import (
	"encoding/json"
	"log/slog"

	"github.com/mcoot/pingpong/internal/model"
	"github.com/mcoot/pingpong/internal/services/cache"
)

// Event names
const (
	EventConnected = "connected"
	EventChange    = "change"
)

// Update is the payload of a change frame
type Update struct {
	Collection model.Collection `json:"collection"`
	Kind       model.ChangeKind `json:"kind"`
	ID         string           `json:"id,omitempty"`
	Seq        int64            `json:"seq,omitempty"`
	Stats      cache.Stats      `json:"stats"`
}

// Broadcaster turns cache changes into hub frames
type Broadcaster struct {
	hub    *Hub
	cache  *cache.Cache
	logger *slog.Logger
}

// NewBroadcaster creates a Broadcaster; call Attach to start it
func NewBroadcaster(hub *Hub, c *cache.Cache, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		hub:    hub,
		cache:  c,
		logger: logger.With(slog.String("component", "live-broadcaster")),
	}
}

// Attach starts forwarding cache changes and returns a func that stops it
func (b *Broadcaster) Attach() (detach func()) {
	return b.cache.Listen(b.Publish)
}

// NewUpdate describes one change event together with the current stats
func NewUpdate(ev model.ChangeEvent, stats cache.Stats) Update {
	update := Update{
		Collection: ev.Collection,
		Kind:       ev.Kind,
		Seq:        ev.Seq,
		Stats:      stats,
	}
	if ev.Kind != model.ChangeReload {
		if id, err := ev.RecordID(); err == nil {
			update.ID = id
		}
	}
	return update
}

// Publish sends one change to every client
func (b *Broadcaster) Publish(ev model.ChangeEvent) {
	data, err := json.Marshal(NewUpdate(ev, b.cache.Stats()))
	if err != nil {
		b.logger.Error("failed to encode update", slog.String("error", err.Error()))
		return
	}
	b.hub.Broadcast(Frame{Event: EventChange, Data: data})
}
