// Package validation checks user-supplied payloads before they reach the registry.
package validation

import (
	"fmt"
	"strings"

	"streamcode/internal/models"
)

const (
	maxIdentityLen    = 512
	maxDisplayNameLen = 200
	maxMultiMembers   = 8
	maxMetaEntries    = 16
)

// ValidateDescriptor rejects descriptors that cannot be fingerprinted or
// that would store unbounded payloads.
func ValidateDescriptor(d models.StreamDescriptor) error {
	switch d.Kind {
	case models.KindSingle:
		if d.Single == nil {
			return fmt.Errorf("single descriptor is missing its stream")
		}
		return validateSingle(*d.Single)
	case models.KindMulti:
		if d.Multi == nil {
			return fmt.Errorf("multi descriptor is missing its members")
		}
		return validateMulti(*d.Multi)
	default:
		return fmt.Errorf("kind must be %q or %q", models.KindSingle, models.KindMulti)
	}
}

func validateSingle(s models.SingleStream) error {
	if err := validateIdentity(s.Platform, s.RoomID, s.PlaybackRef); err != nil {
		return err
	}
	if len(s.DisplayName) > maxDisplayNameLen {
		return fmt.Errorf("display_name must be at most %d characters", maxDisplayNameLen)
	}
	return validateMeta(s.Meta)
}

func validateMulti(m models.MultiStream) error {
	if len(m.Members) < 2 {
		return fmt.Errorf("multi descriptor needs at least 2 members")
	}
	if len(m.Members) > maxMultiMembers {
		return fmt.Errorf("multi descriptor allows at most %d members", maxMultiMembers)
	}
	for i, member := range m.Members {
		if err := validateIdentity(member.Platform, member.RoomID, member.PlaybackRef); err != nil {
			return fmt.Errorf("member %d: %w", i, err)
		}
	}
	return validateMeta(m.Meta)
}

func validateIdentity(p models.Platform, roomID int64, playbackRef string) error {
	if !p.Valid() {
		return fmt.Errorf("platform must be one of youtube, idn, showroom")
	}
	if roomID < 0 {
		return fmt.Errorf("room_id cannot be negative")
	}
	ref := strings.TrimSpace(playbackRef)
	if roomID == 0 && ref == "" {
		return fmt.Errorf("playback_ref or room_id is required")
	}
	if len(ref) > maxIdentityLen {
		return fmt.Errorf("playback_ref must be at most %d characters", maxIdentityLen)
	}
	return nil
}

func validateMeta(meta map[string]any) error {
	if len(meta) > maxMetaEntries {
		return fmt.Errorf("meta allows at most %d entries", maxMetaEntries)
	}
	return nil
}
