// Package shared contains common domain types, errors and events that are
// used across all domain packages.
package shared

import (
	"time"
)

// EventType names a lifecycle event.
type EventType string

// Achievement lifecycle events. One is published after every committed transition.
const (
	EventAchievementCreated   EventType = "achievement.created"
	EventAchievementUpdated   EventType = "achievement.updated"
	EventAchievementSubmitted EventType = "achievement.submitted"
	EventAchievementWithdrawn EventType = "achievement.withdrawn"
	EventAchievementReviewed  EventType = "achievement.reviewed"
	EventAchievementPublished EventType = "achievement.published"
	EventAchievementDeleted   EventType = "achievement.deleted"
)

// Event is what the bus routes.
type Event interface {
	EventType() EventType
	OccurredAt() time.Time
	AggregateID() string
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievement Events
// ═══════════════════════════════════════════════════════════════════════════

// AchievementTransitionedEvent is emitted after a lifecycle command commits.
// FromStatus is empty for creations, ToStatus is empty for deletions.
type AchievementTransitionedEvent struct {
	Type          EventType `json:"type"`
	AchievementID string    `json:"achievement_id"`
	OwnerID       string    `json:"owner_id"`
	ActorID       string    `json:"actor_id"`
	FromStatus    string    `json:"from_status,omitempty"`
	ToStatus      string    `json:"to_status,omitempty"`
	DecisionID    string    `json:"decision_id,omitempty"`
	Outcome       string    `json:"outcome,omitempty"`
	At            time.Time `json:"at"`
}

func (e AchievementTransitionedEvent) EventType() EventType  { return e.Type }
func (e AchievementTransitionedEvent) OccurredAt() time.Time { return e.At }
func (e AchievementTransitionedEvent) AggregateID() string   { return e.AchievementID }

// NewAchievementTransitionedEvent creates a new AchievementTransitionedEvent.
func NewAchievementTransitionedEvent(
	eventType EventType,
	achievementID, ownerID, actorID, from, to string,
	at time.Time,
) AchievementTransitionedEvent {
	return AchievementTransitionedEvent{
		Type:          eventType,
		AchievementID: achievementID,
		OwnerID:       ownerID,
		ActorID:       actorID,
		FromStatus:    from,
		ToStatus:      to,
		At:            at,
	}
}

// WithDecision attaches the ledger entry written by the transition.
func (e AchievementTransitionedEvent) WithDecision(decisionID, outcome string) AchievementTransitionedEvent {
	e.DecisionID = decisionID
	e.Outcome = outcome
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Bus contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler handles one event.
type EventHandler func(event Event) error

// EventPublisher is the side the engine sees.
type EventPublisher interface {
	Publish(event Event) error
}

// EventSubscriber is the side the handlers register against.
type EventSubscriber interface {
	Subscribe(eventType EventType, handler EventHandler) error
	SubscribeAll(handler EventHandler) error
}
