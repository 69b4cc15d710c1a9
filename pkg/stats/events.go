package stats

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// BaseTopic is the default MQTT topic prefix for published events.
const BaseTopic = "mpdstats/v1"

// Event types.
const (
	TypeNowPlaying = "now_playing"
	TypeVerdict    = "verdict"
	TypeState      = "state"
)

// Verdict values carried in VerdictBody.
const (
	VerdictPlayed  = "played"
	VerdictSkipped = "skipped"
)

// Envelope wraps every published event.
type Envelope struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	TS   int64           `json:"ts"`
	Body json.RawMessage `json:"body"`
}

// NowPlayingBody describes a freshly started playback session.
type NowPlayingBody struct {
	Path              string  `json:"path"`
	StartedAt         int64   `json:"startedAt"`
	ExpectedRemaining float64 `json:"expectedRemainingS"`
	ItemID            int64   `json:"itemId,omitempty"`
	InCatalog         bool    `json:"inCatalog"`
}

// VerdictBody describes the judgement applied to a retired session.
type VerdictBody struct {
	Path      string   `json:"path"`
	Verdict   string   `json:"verdict"`
	DiffS     float64  `json:"diffS"`
	ItemID    int64    `json:"itemId,omitempty"`
	PlayCount *int64   `json:"playCount,omitempty"`
	SkipCount *int64   `json:"skipCount,omitempty"`
	Rating    *float64 `json:"rating,omitempty"`
}

// StateBody carries the player state reported by the daemon.
type StateBody struct {
	State string `json:"state"`
}

// NewEnvelope builds an envelope with a JSON body.
func NewEnvelope(eventType string, body any) (Envelope, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal body: %w", err)
	}
	return Envelope{Type: eventType, Body: payload}, nil
}

// ValidateEnvelope checks required envelope fields.
func ValidateEnvelope(env Envelope) error {
	if strings.TrimSpace(env.ID) == "" {
		return errors.New("id is required")
	}
	switch env.Type {
	case TypeNowPlaying, TypeVerdict, TypeState:
	default:
		return fmt.Errorf("unknown event type %q", env.Type)
	}
	if env.TS <= 0 {
		return errors.New("ts must be a positive unix timestamp")
	}
	if len(env.Body) == 0 {
		return errors.New("body is required")
	}
	return nil
}

// Retained reports whether events of this type are published retained.
func Retained(eventType string) bool {
	return eventType == TypeNowPlaying || eventType == TypeState
}

// TopicFor builds the topic an event type is published on.
func TopicFor(topicBase, identity, eventType string) string {
	if topicBase == "" {
		topicBase = BaseTopic
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(topicBase, "/"), identity, eventType)
}
