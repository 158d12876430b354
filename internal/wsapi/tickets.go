package wsapi

import (
	"time"

	uuid "github.com/satori/go.uuid"

	"github.com/wirow-io/mediaserver/internal/room"
)

// ticketTTL bounds how long a `/ws/ticket` response is redeemable for
// (§4.8, §6.3 "tickets (name unique) — WS tickets, TTL via sweeper").
const ticketTTL = 30 * time.Second

const ticketSweepInterval = 10 * time.Second

func (s *Server) issueTicket(sessionID string) (room.Ticket, error) {
	t := room.Ticket{
		Value:     uuid.NewV4().String(),
		SessionID: sessionID,
		ExpiresAt: time.Now().Add(ticketTTL).Unix(),
	}
	if err := s.store.SaveTicket(t); err != nil {
		return room.Ticket{}, err
	}
	return t, nil
}

// resolveTicket redeems a ticket exactly once, per §4.8: "the server
// resolves it back to the session id, drops the tickets row, and
// accepts the connection."
func (s *Server) resolveTicket(value string) (string, bool) {
	t, ok, err := s.store.TakeTicket(value)
	if err != nil || !ok {
		return "", false
	}
	if t.ExpiresAt < time.Now().Unix() {
		return "", false
	}
	return t.SessionID, true
}

func (s *Server) runTicketSweeper(done <-chan struct{}) {
	ticker := time.NewTicker(ticketSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.store.SweepExpiredTickets(time.Now().Unix()); err != nil {
				s.logger.Warn("ticket sweep failed: %v", err)
			}
		case <-done:
			return
		}
	}
}
