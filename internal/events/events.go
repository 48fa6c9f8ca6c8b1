// Package events carries progress and notification events from the wizard to
// whoever renders it: SSE clients, the CLI, or a Supabase table.
package events

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeStepChanged     Type = "step_changed"
	TypeUploadProgress  Type = "upload_progress"
	TypeSceneUpdated    Type = "scene_updated"
	TypeBatchProgress   Type = "batch_progress"
	TypeBatchCompleted  Type = "batch_completed"
	TypeLogoChanged     Type = "logo_changed"
	TypeVideoProgress   Type = "video_progress"
	TypeVideoCompleted  Type = "video_completed"
	TypeVideoFailed     Type = "video_failed"
	TypeNotification    Type = "notification"
	TypeCatalogLoaded   Type = "catalog_loaded"
	TypeWizardReset     Type = "wizard_reset"
	TypeSettingsChanged Type = "settings_changed"
)

// Notification levels.
const (
	LevelSuccess = "success"
	LevelError   = "error"
	LevelInfo    = "info"
)

type Event struct {
	ID        uuid.UUID              `json:"id"`
	Type      Type                   `json:"type"`
	Payload   map[string]interface{} `json:"payload"`
	CreatedAt time.Time              `json:"created_at"`
}

func New(typ Type, payload map[string]interface{}) Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return Event{
		ID:        uuid.New(),
		Type:      typ,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}

// Publisher receives events. Publish must not block the caller for long; the
// wizard calls it from its own goroutines.
type Publisher interface {
	Publish(e Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(e Event)

func (f PublisherFunc) Publish(e Event) { f(e) }

// Multi fans an event out to several publishers in order.
type Multi []Publisher

func (m Multi) Publish(e Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(e)
		}
	}
}

// Discard drops every event.
var Discard Publisher = PublisherFunc(func(Event) {})
