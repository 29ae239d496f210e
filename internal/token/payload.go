package token

import (
	"encoding/json"
	"fmt"
)

// Payload is a typed token capability. The set is closed: every variant
// lives in this package and every switch over tags must handle each one
// explicitly. New variants get a new tag string, so tokens issued before
// a variant existed keep decoding.
type Payload interface {
	Tag() string
}

// Tag values are part of the wire format and must never be reused.
const (
	TagProfile    = "profile"
	TagRoomJoin   = "room_join"
	TagWidgetJoin = "widget_join"
	TagAuthGrant  = "auth_grant"
)

// Profile links a scan to a member profile page.
type Profile struct {
	SubjectID string `json:"subject_id"`
}

func (Profile) Tag() string { return TagProfile }

// RoomJoin admits the scanner to a practice room.
type RoomJoin struct {
	RoomID string `json:"room_id"`
}

func (RoomJoin) Tag() string { return TagRoomJoin }

// WidgetJoin attaches the scanner to an embeddable widget target.
type WidgetJoin struct {
	TargetRef string `json:"target_ref"`
}

func (WidgetJoin) Tag() string { return TagWidgetJoin }

// AuthGrant authorizes a device for a principal.
type AuthGrant struct {
	PrincipalID string `json:"principal_id"`
	DeviceRef   string `json:"device_ref"`
}

func (AuthGrant) Tag() string { return TagAuthGrant }

// ParsePayload maps a tag plus raw body back to its concrete variant.
func ParsePayload(tag string, body json.RawMessage) (Payload, error) {
	switch tag {
	case TagProfile:
		var p Profile
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("profile body: %w", ErrMalformed)
		}
		return p, nil
	case TagRoomJoin:
		var p RoomJoin
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("room join body: %w", ErrMalformed)
		}
		return p, nil
	case TagWidgetJoin:
		var p WidgetJoin
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("widget join body: %w", ErrMalformed)
		}
		return p, nil
	case TagAuthGrant:
		var p AuthGrant
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("auth grant body: %w", ErrMalformed)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown payload tag %q: %w", tag, ErrMalformed)
	}
}
