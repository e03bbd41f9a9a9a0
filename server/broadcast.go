package server

import (
	"github.com/aecoa/aecoa/gate"
	"github.com/aecoa/aecoa/logger"
)

// broadcastMessage offers msg to every client interested in runID.
// Returns the number of clients that accepted it; full clients are skipped.
func (s *Server) broadcastMessage(runID string, msg interface{}) int {
	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for client := range s.clients {
		clients = append(clients, client)
	}
	s.mu.RUnlock()

	sent := 0
	for _, client := range clients {
		if !client.wants(runID) {
			continue
		}
		select {
		case client.sendMsg <- msg:
			sent++
		default:
			s.broadcastDrops.Add(1)
		}
	}
	return sent
}

func (s *Server) broadcastEvent(ev gate.Event) {
	sent := s.broadcastMessage(ev.RunID, EventMessage{Type: "gate_event", Event: ev})
	s.logger.Debugw("Gate event broadcast",
		logger.FieldRunID, ev.RunID,
		logger.FieldStage, ev.Stage,
		logger.FieldAction, ev.Action,
		"clients", sent,
	)
}
