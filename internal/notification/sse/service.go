// Package sse streams committed board events to connected clients.
package sse

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/events"
	"github.com/evaldomacielf-sketch/jurisnexo-sub002/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const clientBuffer = 32

// Event is the payload written to the stream.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// client represents a connected SSE client
type client struct {
	userID   uuid.UUID
	tenantID uuid.UUID
	events   chan Event
}

// Service fans pipeline events out to the clients of the owning tenant.
type Service struct {
	mu      sync.RWMutex
	clients map[uuid.UUID][]*client // tenantID -> clients
	log     *logger.Logger
}

func New(log *logger.Logger) *Service {
	return &Service{
		clients: make(map[uuid.UUID][]*client),
		log:     log,
	}
}

// Subscribe registers the service for every pipeline event on the bus.
func (s *Service) Subscribe(bus events.Bus) {
	for _, name := range events.AllNames {
		bus.Subscribe(name, events.HandlerFunc(s.handle))
	}
}

func (s *Service) handle(_ context.Context, e events.Event) error {
	scoped, ok := e.(events.TenantScoped)
	if !ok {
		return nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	s.Publish(scoped.Tenant(), Event{Type: e.EventName(), Data: data})
	return nil
}

func (s *Service) addClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.tenantID] = append(s.clients[c.tenantID], c)
}

func (s *Service) removeClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clients := s.clients[c.tenantID]
	for i, cl := range clients {
		if cl == c {
			s.clients[c.tenantID] = append(clients[:i:i], clients[i+1:]...)
			close(c.events)
			break
		}
	}
	if len(s.clients[c.tenantID]) == 0 {
		delete(s.clients, c.tenantID)
	}
}

// Publish sends an event to every client of a tenant. Slow clients drop events.
func (s *Service) Publish(tenantID uuid.UUID, event Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.clients[tenantID] {
		select {
		case c.events <- event:
		default:
			s.log.Warn("sse buffer full, event dropped", "userId", c.userID, "tenantId", tenantID, "event", event.Type)
		}
	}
}

// Clients returns the number of open streams for a tenant.
func (s *Service) Clients(tenantID uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients[tenantID])
}

// Handler returns a Gin handler for SSE connections
func (s *Service) Handler(getUserID func(*gin.Context) (uuid.UUID, bool), getTenantID func(*gin.Context) (uuid.UUID, bool)) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := getUserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		tenantID, ok := getTenantID(c)
		if !ok {
			c.JSON(http.StatusForbidden, gin.H{"error": "tenant required"})
			return
		}

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")

		cl := &client{
			userID:   userID,
			tenantID: tenantID,
			events:   make(chan Event, clientBuffer),
		}
		s.addClient(cl)
		defer s.removeClient(cl)

		c.SSEvent("connected", gin.H{"userId": userID, "tenantId": tenantID})
		c.Writer.Flush()
		s.log.Debug("sse client connected", "userId", userID, "tenantId", tenantID)

		clientGone := c.Request.Context().Done()
		for {
			select {
			case <-clientGone:
				s.log.Debug("sse client disconnected", "userId", userID)
				return
			case event, ok := <-cl.events:
				if !ok {
					return
				}
				c.SSEvent(event.Type, event.Data)
				c.Writer.Flush()
			}
		}
	}
}

// Close ends every open stream.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, clients := range s.clients {
		for _, c := range clients {
			close(c.events)
		}
	}
	s.clients = make(map[uuid.UUID][]*client)
}
