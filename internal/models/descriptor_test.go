package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint_Single(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		stream   SingleStream
		expected string
	}{
		{"playback ref", SingleStream{Platform: PlatformYouTube, PlaybackRef: "XYZ123"}, "single:XYZ123"},
		{"room id wins over playback ref", SingleStream{Platform: PlatformShowroom, RoomID: 317, PlaybackRef: "https://x"}, "single:317"},
		{"trims whitespace", SingleStream{Platform: PlatformIDN, PlaybackRef: "  r1 "}, "single:r1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp, err := NewSingleDescriptor(tt.stream).Fingerprint()
			require.NoError(t, err)
			assert.Equal(t, tt.expected, fp)
		})
	}
}

func TestFingerprint_SingleIgnoresPresentationFields(t *testing.T) {
	t.Parallel()

	a := NewSingleDescriptor(SingleStream{Platform: PlatformYouTube, PlaybackRef: "XYZ123", DisplayName: "Member A"})
	b := NewSingleDescriptor(SingleStream{Platform: PlatformYouTube, PlaybackRef: "XYZ123", DisplayName: "Renamed", Title: "new title"})

	fa, err := a.Fingerprint()
	require.NoError(t, err)
	fb, err := b.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
}

func TestFingerprint_MultiIsOrderIndependent(t *testing.T) {
	t.Parallel()

	forward := NewMultiDescriptor(MultiStream{Members: []StreamMember{
		{Platform: PlatformIDN, PlaybackRef: "r1"},
		{Platform: PlatformIDN, PlaybackRef: "r2"},
	}})
	reversed := NewMultiDescriptor(MultiStream{Members: []StreamMember{
		{Platform: PlatformIDN, PlaybackRef: "r2"},
		{Platform: PlatformIDN, PlaybackRef: "r1"},
	}})

	f1, err := forward.Fingerprint()
	require.NoError(t, err)
	f2, err := reversed.Fingerprint()
	require.NoError(t, err)

	assert.Equal(t, f1, f2)
	assert.Equal(t, `multi:["r1","r2"]`, f1)
}

func TestFingerprint_SingleAndMultiNeverCollide(t *testing.T) {
	t.Parallel()

	single, err := NewSingleDescriptor(SingleStream{Platform: PlatformIDN, PlaybackRef: "r1"}).Fingerprint()
	require.NoError(t, err)
	multi, err := NewMultiDescriptor(MultiStream{Members: []StreamMember{{PlaybackRef: "r1"}}}).Fingerprint()
	require.NoError(t, err)

	assert.NotEqual(t, single, multi)
}

func TestFingerprint_InvalidKind(t *testing.T) {
	t.Parallel()

	_, err := StreamDescriptor{Kind: "triple"}.Fingerprint()
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	_, err = StreamDescriptor{Kind: KindSingle}.Fingerprint()
	assert.ErrorIs(t, err, ErrInvalidDescriptor)
}

func TestStreamDescriptor_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	descriptors := []StreamDescriptor{
		NewSingleDescriptor(SingleStream{
			Platform:    PlatformYouTube,
			PlaybackRef: "XYZ123",
			DisplayName: "Member A",
			Title:       "Evening stream",
			Meta:        map[string]any{"group": "jkt48"},
		}),
		NewMultiDescriptor(MultiStream{
			Title: "Double feature",
			Members: []StreamMember{
				{Platform: PlatformIDN, PlaybackRef: "r1", DisplayName: "A"},
				{Platform: PlatformShowroom, RoomID: 42},
			},
		}),
	}

	for _, d := range descriptors {
		b, err := json.Marshal(d)
		require.NoError(t, err)

		var got StreamDescriptor
		require.NoError(t, json.Unmarshal(b, &got))
		if diff := cmp.Diff(d, got); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestStreamDescriptor_JSONShape(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(NewSingleDescriptor(SingleStream{Platform: PlatformIDN, PlaybackRef: "r1", DisplayName: "A"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"single","platform":"idn","playback_ref":"r1","display_name":"A"}`, string(b))
}

func TestStreamDescriptor_UnmarshalRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	var d StreamDescriptor
	err := json.Unmarshal([]byte(`{"kind":"playlist"}`), &d)
	assert.ErrorIs(t, err, ErrInvalidDescriptor)

	_, err = json.Marshal(StreamDescriptor{})
	assert.Error(t, err)
}

func TestStreamDescriptor_ValueScan(t *testing.T) {
	t.Parallel()

	d := NewSingleDescriptor(SingleStream{Platform: PlatformShowroom, RoomID: 99, DisplayName: "B"})
	v, err := d.Value()
	require.NoError(t, err)

	var fromString, fromBytes StreamDescriptor
	require.NoError(t, fromString.Scan(v))
	require.NoError(t, fromBytes.Scan([]byte(v.(string))))
	assert.Equal(t, d, fromString)
	assert.Equal(t, d, fromBytes)

	assert.Error(t, fromString.Scan(42))
}

func TestStreamCode_IsLive(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		code StreamCode
		live bool
	}{
		{"active and unexpired", StreamCode{IsActive: true, ExpiresAt: now.Add(time.Minute)}, true},
		{"expires exactly now", StreamCode{IsActive: true, ExpiresAt: now}, false},
		{"expired", StreamCode{IsActive: true, ExpiresAt: now.Add(-time.Minute)}, false},
		{"deactivated", StreamCode{IsActive: false, ExpiresAt: now.Add(time.Hour)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.live, tt.code.IsLive(now))
		})
	}
}

func TestDisplayTitle(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Member A", NewSingleDescriptor(SingleStream{DisplayName: "Member A"}).DisplayTitle())
	assert.Equal(t, "Multi Viewer", NewMultiDescriptor(MultiStream{}).DisplayTitle())
	assert.Equal(t, "Duo", NewMultiDescriptor(MultiStream{Title: "Duo"}).DisplayTitle())
}

func TestStreamDescriptor_KeepsUnknownFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
	}{
		{
			name: "single with client fields and numeric meta",
			in: `{"kind":"single","platform":"showroom","playback_ref":"https://x/z.m3u8","display_name":"Member B",
				"image":"https://img/b.jpg","viewers":42,"name":"B","meta":{"rank":1,"tags":["a","b"]}}`,
		},
		{
			name: "multi with extras on the set and on members",
			in: `{"kind":"multi","title":"Pair","layout":{"cols":2},
				"members":[{"platform":"idn","playback_ref":"r1","avatar":"https://img/1.jpg"},{"platform":"idn","playback_ref":"r2"}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d StreamDescriptor
			require.NoError(t, json.Unmarshal([]byte(tt.in), &d))

			out, err := json.Marshal(d)
			require.NoError(t, err)
			assert.JSONEq(t, tt.in, string(out))
		})
	}
}

func TestStreamDescriptor_ExtraCannotShadowKnownFields(t *testing.T) {
	t.Parallel()

	d := NewSingleDescriptor(SingleStream{
		Platform:    PlatformIDN,
		PlaybackRef: "r1",
		DisplayName: "A",
		Extra:       Extra{"display_name": json.RawMessage(`"spoofed"`), "kind": json.RawMessage(`"multi"`)},
	})

	b, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"single","platform":"idn","playback_ref":"r1","display_name":"A"}`, string(b))
}

func TestExtra_String(t *testing.T) {
	t.Parallel()

	e := Extra{"image": json.RawMessage(`" https://img/a.jpg "`), "viewers": json.RawMessage(`42`)}
	assert.Equal(t, "https://img/a.jpg", e.String("image"))
	assert.Empty(t, e.String("viewers"))
	assert.Empty(t, e.String("missing"))
}

func TestStreamDescriptor_CloneSharesNothing(t *testing.T) {
	t.Parallel()

	single := NewSingleDescriptor(SingleStream{
		Platform:    PlatformShowroom,
		RoomID:      317,
		DisplayName: "Member B",
		Meta:        map[string]any{"tags": []any{"a"}, "nested": map[string]any{"k": "v"}},
		Extra:       Extra{"image": json.RawMessage(`"https://img/b.jpg"`)},
	})
	clone := single.Clone()
	if diff := cmp.Diff(single, clone); diff != "" {
		t.Fatalf("clone mismatch (-want +got):\n%s", diff)
	}

	clone.Single.DisplayName = "changed"
	clone.Single.Meta["tags"].([]any)[0] = "z"
	clone.Single.Meta["nested"].(map[string]any)["k"] = "changed"
	clone.Single.Extra["image"][1] = 'X'

	assert.Equal(t, "Member B", single.Single.DisplayName)
	assert.Equal(t, "a", single.Single.Meta["tags"].([]any)[0])
	assert.Equal(t, "v", single.Single.Meta["nested"].(map[string]any)["k"])
	assert.Equal(t, "https://img/b.jpg", single.Single.Extra.String("image"))

	multi := NewMultiDescriptor(MultiStream{Members: []StreamMember{
		{Platform: PlatformIDN, PlaybackRef: "r1"},
		{Platform: PlatformIDN, PlaybackRef: "r2"},
	}})
	mc := multi.Clone()
	mc.Multi.Members[0].PlaybackRef = "changed"
	mc.Multi.Members = append(mc.Multi.Members, StreamMember{Platform: PlatformIDN, PlaybackRef: "r3"})
	assert.Equal(t, "r1", multi.Multi.Members[0].PlaybackRef)
	assert.Len(t, multi.Multi.Members, 2)
}
