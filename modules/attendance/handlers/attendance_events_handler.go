package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/autopeca/marketplace/modules/attendance/domain/events"
	"github.com/autopeca/marketplace/pkg/application"
	"github.com/autopeca/marketplace/pkg/outbox"
)

// Notifier is the outbound messaging collaborator. Templates and channels live behind it.
type Notifier interface {
	ClaimContact(ctx context.Context, ev *events.ClaimedV1) error
	Reopened(ctx context.Context, ev *events.ReopenedV1) error
	ClaimConflict(ctx context.Context, ev *events.ClaimConflictEvent) error
}

type AttendanceEventsHandler struct {
	notifier Notifier
	logger   *logrus.Logger
}

func NewAttendanceEventsHandler(notifier Notifier, logger *logrus.Logger) *AttendanceEventsHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	return &AttendanceEventsHandler{notifier: notifier, logger: logger}
}

func RegisterAttendanceEventHandlers(app application.Application, notifier Notifier, logger *logrus.Logger) *AttendanceEventsHandler {
	handler := NewAttendanceEventsHandler(notifier, logger)
	app.EventPublisher().Subscribe(handler.onOutboxMessage)
	app.EventPublisher().Subscribe(handler.onClaimConflict)
	return handler
}

// onOutboxMessage receives relayed outbox rows. Returning an error makes the relay retry;
// an undecodable payload is retried until it goes dead.
func (h *AttendanceEventsHandler) onOutboxMessage(ctx context.Context, msg *outbox.DispatchedMessage) error {
	if h == nil || msg == nil {
		return nil
	}
	switch msg.Meta.Topic {
	case events.TopicClaimedV1:
		var ev events.ClaimedV1
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return fmt.Errorf("decode %s event %s: %w", msg.Meta.Topic, msg.Meta.EventID, err)
		}
		return h.notifier.ClaimContact(ctx, &ev)
	case events.TopicReopenedV1:
		var ev events.ReopenedV1
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return fmt.Errorf("decode %s event %s: %w", msg.Meta.Topic, msg.Meta.EventID, err)
		}
		return h.notifier.Reopened(ctx, &ev)
	default:
		return nil
	}
}

func (h *AttendanceEventsHandler) onClaimConflict(ev *events.ClaimConflictEvent) {
	if h == nil || ev == nil {
		return
	}
	if err := h.notifier.ClaimConflict(context.Background(), ev); err != nil {
		h.logger.WithError(err).
			WithField("solicitation_id", ev.SolicitationID).
			Warn("failed to notify claim conflict")
	}
}

// LogNotifier writes every notification to the log. It is the default until a messaging
// integration is configured.
type LogNotifier struct {
	logger *logrus.Logger
}

func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) ClaimContact(_ context.Context, ev *events.ClaimedV1) error {
	fields := logrus.Fields{
		"claim_id":        ev.ClaimID,
		"solicitation_id": ev.Solicitation.ID,
		"store_id":        ev.Store.ID,
		"agent_id":        ev.Agent.ID,
	}
	if ev.Customer != nil {
		fields["customer_id"] = ev.Customer.ID
	}
	n.logger.WithFields(fields).Info("attendance: contact bundle ready")
	return nil
}

func (n *LogNotifier) Reopened(_ context.Context, ev *events.ReopenedV1) error {
	n.logger.WithFields(logrus.Fields{
		"solicitation_id": ev.SolicitationID,
		"store_id":        ev.StoreID,
		"agent_id":        ev.AgentID,
	}).Info("attendance: solicitation reopened for store")
	return nil
}

func (n *LogNotifier) ClaimConflict(_ context.Context, ev *events.ClaimConflictEvent) error {
	entry := n.logger.WithFields(logrus.Fields{
		"solicitation_id": ev.SolicitationID,
		"store_id":        ev.StoreID,
		"loser_agent_id":  ev.LoserAgentID,
	})
	if ev.WinnerAgentID != nil {
		entry = entry.WithField("winner_agent_id", ev.WinnerAgentID.String())
	}
	entry.Info("attendance: claim conflict")
	return nil
}
