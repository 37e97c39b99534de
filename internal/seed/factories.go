// Package seed provides helpers to create test and demo data for the
// application database. These helpers are intended for development and
// testing only.
package seed

import (
	"fmt"
	"time"

	"streamcode/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// Factory builds stream descriptors and, for records the registry never
// produces itself (expired, deactivated), persists them directly.
type Factory struct {
	db  *gorm.DB
	now func() time.Time
}

// NewFactory creates a new Factory bound to the provided Gorm DB. A zero seed
// uses the current time.
func NewFactory(db *gorm.DB, seed int64) *Factory {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	gofakeit.Seed(seed)
	return &Factory{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (f *Factory) member(platform models.Platform) models.StreamMember {
	m := models.StreamMember{
		Platform:    platform,
		DisplayName: gofakeit.FirstName() + " " + gofakeit.LastName(),
	}
	if platform == models.PlatformShowroom {
		m.RoomID = int64(gofakeit.Number(100000, 999999))
	} else {
		m.PlaybackRef = gofakeit.Lexify("???????????")
	}
	return m
}

// BuildSingle returns a random single-stream descriptor.
func (f *Factory) BuildSingle(overrides ...func(*models.SingleStream)) models.StreamDescriptor {
	platform := models.Platform(gofakeit.RandomString([]string{
		string(models.PlatformYouTube), string(models.PlatformIDN), string(models.PlatformShowroom),
	}))
	m := f.member(platform)
	s := models.SingleStream{
		Platform:     platform,
		PlaybackRef:  m.PlaybackRef,
		RoomID:       m.RoomID,
		DisplayName:  m.DisplayName,
		Title:        gofakeit.Sentence(4),
		Thumbnail:    fmt.Sprintf("https://picsum.photos/seed/%s/1280/720", gofakeit.UUID()),
		StreamingURL: fmt.Sprintf("https://stream.example.com/%s/index.m3u8", gofakeit.UUID()),
		StartedAt:    f.now().Add(-time.Duration(gofakeit.Number(1, 180)) * time.Minute).Format(time.RFC3339),
	}
	for _, o := range overrides {
		o(&s)
	}
	return models.NewSingleDescriptor(s)
}

// BuildMulti returns a random multi-stream descriptor with n members (at least 2).
func (f *Factory) BuildMulti(n int, overrides ...func(*models.MultiStream)) models.StreamDescriptor {
	if n < 2 {
		n = 2
	}
	m := models.MultiStream{Title: gofakeit.Sentence(3)}
	for i := 0; i < n; i++ {
		m.Members = append(m.Members, f.member(models.Platforms[i%len(models.Platforms)]))
	}
	for _, o := range overrides {
		o(&m)
	}
	return models.NewMultiDescriptor(m)
}

// CreateDeadRecord stores a record that no longer resolves: expired when
// expired is true, otherwise deactivated. code must be unused.
func (f *Factory) CreateDeadRecord(code string, d models.StreamDescriptor, expired bool) (*models.StreamCode, error) {
	now := f.now()
	record := &models.StreamCode{
		Code:       code,
		Descriptor: d,
		IsActive:   true,
		CreatedAt:  now.Add(-48 * time.Hour),
		ExpiresAt:  now.Add(-24 * time.Hour),
	}
	if !expired {
		record.CreatedAt = now.Add(-time.Hour)
		record.ExpiresAt = now.Add(23 * time.Hour)
	}
	if err := f.db.Create(record).Error; err != nil {
		return nil, err
	}
	if !expired {
		if err := f.db.Model(record).Update("is_active", false).Error; err != nil {
			return nil, err
		}
		record.IsActive = false
	}
	return record, nil
}
