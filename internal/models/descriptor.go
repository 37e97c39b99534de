// Package models contains data structures for the application's domain models.
package models

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// DescriptorKind tags the shape of a StreamDescriptor.
type DescriptorKind string

const (
	KindSingle DescriptorKind = "single"
	KindMulti  DescriptorKind = "multi"
)

// Platform identifies the third-party streaming platform a stream lives on.
type Platform string

const (
	PlatformYouTube  Platform = "youtube"
	PlatformIDN      Platform = "idn"
	PlatformShowroom Platform = "showroom"
)

// Platforms lists every supported platform.
var Platforms = []Platform{PlatformYouTube, PlatformIDN, PlatformShowroom}

// Valid reports whether p is a supported platform.
func (p Platform) Valid() bool {
	for _, known := range Platforms {
		if p == known {
			return true
		}
	}
	return false
}

// SingleStream describes one stream on one platform.
type SingleStream struct {
	Platform     Platform       `json:"platform"`
	PlaybackRef  string         `json:"playback_ref,omitempty"`
	RoomID       int64          `json:"room_id,omitempty"`
	DisplayName  string         `json:"display_name"`
	Title        string         `json:"title,omitempty"`
	Thumbnail    string         `json:"thumbnail,omitempty"`
	StreamingURL string         `json:"streaming_url,omitempty"`
	StartedAt    string         `json:"started_at,omitempty"`
	Meta         map[string]any `json:"meta,omitempty"`
	// Extra keeps every field the registry does not read, byte for byte.
	Extra Extra `json:"-"`
}

// StreamMember is one entry of a synchronized multi-view set.
type StreamMember struct {
	Platform    Platform `json:"platform"`
	PlaybackRef string   `json:"playback_ref,omitempty"`
	RoomID      int64    `json:"room_id,omitempty"`
	DisplayName string   `json:"display_name,omitempty"`
	Extra       Extra    `json:"-"`
}

// MultiStream describes a synchronized-viewing set of two or more streams.
type MultiStream struct {
	Members []StreamMember `json:"members"`
	Title   string         `json:"title,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
	Extra   Extra          `json:"-"`
}

// StreamDescriptor is the payload a stream code resolves to. Exactly one of
// Single or Multi is set, matching Kind.
type StreamDescriptor struct {
	Kind   DescriptorKind
	Single *SingleStream
	Multi  *MultiStream
}

// NewSingleDescriptor wraps s as a single-stream descriptor.
func NewSingleDescriptor(s SingleStream) StreamDescriptor {
	return StreamDescriptor{Kind: KindSingle, Single: &s}
}

// NewMultiDescriptor wraps m as a multi-stream descriptor.
func NewMultiDescriptor(m MultiStream) StreamDescriptor {
	return StreamDescriptor{Kind: KindMulti, Multi: &m}
}

// ErrInvalidDescriptor is returned for descriptors that cannot be fingerprinted.
var ErrInvalidDescriptor = errors.New("invalid stream descriptor")

// streamIdentity returns the stream's own primary key: room_id when set, else playback_ref.
func streamIdentity(roomID int64, playbackRef string) string {
	if roomID != 0 {
		return strconv.FormatInt(roomID, 10)
	}
	return strings.TrimSpace(playbackRef)
}

// FingerprintSingle returns the identity of a single stream.
func FingerprintSingle(s SingleStream) string {
	return streamIdentity(s.RoomID, s.PlaybackRef)
}

// FingerprintMulti returns the sorted member identities as a JSON array, so
// member order never changes the result.
func FingerprintMulti(m MultiStream) string {
	ids := make([]string, 0, len(m.Members))
	for _, member := range m.Members {
		ids = append(ids, streamIdentity(member.RoomID, member.PlaybackRef))
	}
	sort.Strings(ids)
	b, _ := json.Marshal(ids)
	return string(b)
}

// Fingerprint returns the canonical identity of the logical stream d describes.
func (d StreamDescriptor) Fingerprint() (string, error) {
	switch {
	case d.Kind == KindSingle && d.Single != nil:
		return string(KindSingle) + ":" + FingerprintSingle(*d.Single), nil
	case d.Kind == KindMulti && d.Multi != nil:
		return string(KindMulti) + ":" + FingerprintMulti(*d.Multi), nil
	default:
		return "", fmt.Errorf("%w: kind %q", ErrInvalidDescriptor, d.Kind)
	}
}

// DisplayTitle is a short human label used in link previews.
func (d StreamDescriptor) DisplayTitle() string {
	switch d.Kind {
	case KindSingle:
		if d.Single != nil {
			return d.Single.DisplayName
		}
	case KindMulti:
		if d.Multi != nil && d.Multi.Title != "" {
			return d.Multi.Title
		}
		return "Multi Viewer"
	}
	return ""
}

// MarshalJSON flattens the active variant next to its kind tag.
func (d StreamDescriptor) MarshalJSON() ([]byte, error) {
	kind := map[string]any{"kind": d.Kind}
	switch d.Kind {
	case KindSingle:
		if d.Single == nil {
			return nil, fmt.Errorf("%w: single descriptor without payload", ErrInvalidDescriptor)
		}
		return encodeWithExtra(d.Single, nil, kind)
	case KindMulti:
		if d.Multi == nil {
			return nil, fmt.Errorf("%w: multi descriptor without payload", ErrInvalidDescriptor)
		}
		return encodeWithExtra(d.Multi, nil, kind)
	default:
		return nil, fmt.Errorf("%w: kind %q", ErrInvalidDescriptor, d.Kind)
	}
}

// UnmarshalJSON decodes the variant selected by the "kind" tag.
func (d *StreamDescriptor) UnmarshalJSON(data []byte) error {
	var tag struct {
		Kind DescriptorKind `json:"kind"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}

	switch tag.Kind {
	case KindSingle:
		var s SingleStream
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = StreamDescriptor{Kind: KindSingle, Single: &s}
	case KindMulti:
		var m MultiStream
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		*d = StreamDescriptor{Kind: KindMulti, Multi: &m}
	default:
		return fmt.Errorf("%w: kind %q", ErrInvalidDescriptor, tag.Kind)
	}
	return nil
}

// GormDBDataType stores descriptors as jsonb on Postgres and text elsewhere.
func (StreamDescriptor) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "jsonb"
	}
	return "text"
}

// Value stores the descriptor as JSON text.
func (d StreamDescriptor) Value() (driver.Value, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan reads a descriptor stored as JSON text or bytes.
func (d *StreamDescriptor) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return d.UnmarshalJSON(bytes.Clone(v))
	case string:
		return d.UnmarshalJSON([]byte(v))
	case nil:
		*d = StreamDescriptor{}
		return nil
	default:
		return fmt.Errorf("unsupported descriptor column type %T", src)
	}
}
