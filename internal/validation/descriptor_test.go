package validation

import (
	"strings"
	"testing"

	"streamcode/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestValidateDescriptor(t *testing.T) {
	t.Parallel()

	member := func(ref string) models.StreamMember {
		return models.StreamMember{Platform: models.PlatformIDN, PlaybackRef: ref}
	}
	tests := []struct {
		name       string
		descriptor models.StreamDescriptor
		wantErr    bool
	}{
		{"Valid single", models.NewSingleDescriptor(models.SingleStream{Platform: models.PlatformYouTube, PlaybackRef: "XYZ123", DisplayName: "Member A"}), false},
		{"Valid single by room id", models.NewSingleDescriptor(models.SingleStream{Platform: models.PlatformShowroom, RoomID: 317}), false},
		{"Valid multi", models.NewMultiDescriptor(models.MultiStream{Members: []models.StreamMember{member("r1"), member("r2")}}), false},
		{"Unknown kind", models.StreamDescriptor{Kind: "other"}, true},
		{"Single without payload", models.StreamDescriptor{Kind: models.KindSingle}, true},
		{"Unknown platform", models.NewSingleDescriptor(models.SingleStream{Platform: "twitch", PlaybackRef: "x"}), true},
		{"Missing identity", models.NewSingleDescriptor(models.SingleStream{Platform: models.PlatformIDN, PlaybackRef: "   "}), true},
		{"Negative room id", models.NewSingleDescriptor(models.SingleStream{Platform: models.PlatformIDN, RoomID: -1, PlaybackRef: "x"}), true},
		{"Identity too long", models.NewSingleDescriptor(models.SingleStream{Platform: models.PlatformIDN, PlaybackRef: strings.Repeat("x", 513)}), true},
		{"Display name too long", models.NewSingleDescriptor(models.SingleStream{Platform: models.PlatformIDN, PlaybackRef: "x", DisplayName: strings.Repeat("n", 201)}), true},
		{"Multi with one member", models.NewMultiDescriptor(models.MultiStream{Members: []models.StreamMember{member("r1")}}), true},
		{"Multi with bad member", models.NewMultiDescriptor(models.MultiStream{Members: []models.StreamMember{member("r1"), {Platform: "x", PlaybackRef: "r2"}}}), true},
		{"Multi too large", models.NewMultiDescriptor(models.MultiStream{Members: []models.StreamMember{
			member("1"), member("2"), member("3"), member("4"), member("5"), member("6"), member("7"), member("8"), member("9"),
		}}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDescriptor(tt.descriptor)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
