package chathub

import (
	"accord/backend/internal/models"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/rs/zerolog"
)

// excludesSender lists the events that are not echoed to the connection that
// caused them. Chat messages and aiThinking always go to everyone so the
// sender can reconcile against the authoritative copy.
var excludesSender = map[string]bool{
	models.EventUserTyping:        true,
	models.EventMessageReadUpdate: true,
}

// Dispatcher fans events out to the members of a room.
type Dispatcher struct {
	registry *Registry
	log      zerolog.Logger

	// OnDispatchFailure, when set, is called for every member that could not
	// take an event. The hub uses it to evict slow or dead connections.
	OnDispatchFailure func(c Client, err error)
}

// NewDispatcher Constructor
func NewDispatcher(registry *Registry, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, log: log}
}

// Broadcast delivers evt to every member of roomID at call time, leaving out
// sender for event types that exclude it. It returns how many members took
// the event. Failed members never fail the broadcast.
func (d *Dispatcher) Broadcast(roomID string, evt models.OutboundEvent, sender Client) int {
	skip := ""
	if sender != nil && excludesSender[evt.Event] {
		skip = sender.GetID()
	}

	delivered := 0
	for _, member := range d.registry.MembersOf(roomID) {
		if member.GetID() == skip {
			continue
		}
		if err := d.SendTo(member, evt); err != nil {
			continue
		}
		delivered++
	}
	return delivered
}

// SendTo delivers evt to a single connection.
func (d *Dispatcher) SendTo(c Client, evt models.OutboundEvent) error {
	if err := c.Send(evt); err != nil {
		d.log.Warn().Err(err).
			Str("conn_id", c.GetID()).
			Str("event", evt.Event).
			Msg("dispatch failure")
		if d.OnDispatchFailure != nil {
			d.OnDispatchFailure(c, err)
		}
		return fmt.Errorf("%w: %w", ErrDispatchFailure, err)
	}
	return nil
}

// sequencer serializes commit-and-broadcast per room. Rooms are hashed onto a
// fixed set of mutexes so unrelated rooms rarely contend.
type sequencer struct {
	stripes []sync.Mutex
}

func newSequencer(n int) *sequencer {
	if n <= 0 {
		n = 1
	}
	return &sequencer{stripes: make([]sync.Mutex, n)}
}

func (s *sequencer) lock(roomID string) func() {
	h := fnv.New32a()
	h.Write([]byte(roomID))
	mu := &s.stripes[h.Sum32()%uint32(len(s.stripes))]
	mu.Lock()
	return mu.Unlock
}
