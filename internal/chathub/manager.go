package chathub

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// ManagerService owns the set of live connections. Registration and
// teardown go through its run loop; inbound events are handled by the
// Pipeline on each connection's own goroutine.
type ManagerService struct {
	mu      sync.RWMutex
	Clients map[string]Client

	RegisterCh   chan Client
	UnregisterCh chan Client

	Pipeline *Pipeline
	log      zerolog.Logger

	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewManagerService Constructor
func NewManagerService(p *Pipeline, log zerolog.Logger) *ManagerService {
	return &ManagerService{
		Clients:      make(map[string]Client),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		Pipeline:     p,
		log:          log,
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Run processes registrations until Stop is called.
func (m *ManagerService) Run() {
	defer close(m.done)

	for {
		select {
		case client := <-m.RegisterCh:
			m.mu.Lock()
			m.Clients[client.GetID()] = client
			m.mu.Unlock()
			m.log.Info().
				Str("conn_id", client.GetID()).
				Str("user_id", client.GetIdentity().UserID).
				Msg("client registered")

		case client := <-m.UnregisterCh:
			m.mu.Lock()
			_, ok := m.Clients[client.GetID()]
			delete(m.Clients, client.GetID())
			m.mu.Unlock()
			if !ok {
				continue
			}
			rooms := m.Pipeline.Disconnect(client)
			client.Close()
			m.log.Info().
				Str("conn_id", client.GetID()).
				Strs("rooms", rooms).
				Msg("client unregistered")

		case <-m.quit:
			m.mu.Lock()
			clients := m.Clients
			m.Clients = make(map[string]Client)
			m.mu.Unlock()
			for _, client := range clients {
				m.Pipeline.Disconnect(client)
				client.Close()
			}
			m.log.Info().Int("clients", len(clients)).Msg("hub stopped")
			return
		}
	}
}

// Register hands c to the run loop. It returns false once the hub stopped.
func (m *ManagerService) Register(c Client) bool {
	select {
	case m.RegisterCh <- c:
		return true
	case <-m.done:
		return false
	}
}

// Unregister tears c down. It never blocks after the hub stopped.
func (m *ManagerService) Unregister(c Client) {
	select {
	case m.UnregisterCh <- c:
	case <-m.done:
	}
}

// Evict closes a connection that could not take a broadcast. Its read pump
// then unregisters it. Wired as the dispatcher's failure hook.
func (m *ManagerService) Evict(c Client, err error) {
	m.log.Warn().Err(err).Str("conn_id", c.GetID()).Msg("evicting client")
	c.Close()
}

// ClientCount returns the number of registered connections.
func (m *ManagerService) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.Clients)
}

// Stop ends the run loop and closes every connection. It waits for Run to
// return, so Run must have been started.
func (m *ManagerService) Stop() {
	m.stopOnce.Do(func() { close(m.quit) })
	<-m.done
}

// Shutdown lets running AI tasks deliver their results, then stops the hub.
func (m *ManagerService) Shutdown(ctx context.Context) error {
	err := m.Pipeline.Shutdown(ctx)
	m.Stop()
	return err
}
