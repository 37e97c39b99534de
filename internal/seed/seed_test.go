package seed

import (
	"context"
	"testing"
	"time"

	"streamcode/internal/config"
	"streamcode/internal/database"
	"streamcode/internal/models"
	"streamcode/internal/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.ConnectWithOptions(&config.Config{Env: "test", DBDriver: "sqlite", DBPath: ":memory:"}, database.ConnectOptions{ApplySchema: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestFactory_BuildsValidDescriptors(t *testing.T) {
	f := NewFactory(nil, 42)

	for i := 0; i < 50; i++ {
		require.NoError(t, validation.ValidateDescriptor(f.BuildSingle()))
		require.NoError(t, validation.ValidateDescriptor(f.BuildMulti(2+i%4)))
	}

	m := f.BuildMulti(1)
	assert.Len(t, m.Multi.Members, 2, "multi descriptors always have at least two members")

	s := f.BuildSingle(func(s *models.SingleStream) { s.DisplayName = "Pinned" })
	assert.Equal(t, "Pinned", s.Single.DisplayName)
}

func TestBuiltInFixtures(t *testing.T) {
	fixtures, err := BuiltInFixtures()
	require.NoError(t, err)
	require.Len(t, fixtures, 4)

	for _, d := range fixtures {
		assert.NoError(t, validation.ValidateDescriptor(d))
	}
	assert.Equal(t, models.KindSingle, fixtures[0].Kind)
	assert.Equal(t, int64(317727), fixtures[0].Single.RoomID)
	assert.Equal(t, "fixture", fixtures[2].Single.Meta["source"])
	assert.Equal(t, models.KindMulti, fixtures[3].Kind)
	assert.Len(t, fixtures[3].Multi.Members, 2)
}

func TestParseFixtures_Errors(t *testing.T) {
	_, err := ParseFixtures([]byte("streams: [\n"))
	assert.Error(t, err)

	_, err = ParseFixtures([]byte("streams:\n  - kind: playlist\n"))
	assert.ErrorIs(t, err, models.ErrInvalidDescriptor)
}

func TestSeed(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	summary, err := Seed(ctx, db, Options{NumSingles: 5, NumMulti: 3, NumDead: 4, WithFixtures: true, Seed: 7})
	require.NoError(t, err)
	assert.Len(t, summary.FixtureCodes, 4)
	assert.Len(t, summary.LiveCodes, 8)
	assert.Len(t, summary.DeadCodes, 4)

	var live int64
	require.NoError(t, db.Model(&models.StreamCode{}).
		Where("is_active = ? AND expires_at > ?", true, time.Now().UTC()).
		Count(&live).Error)
	assert.Equal(t, int64(12), live)

	// Fixtures are idempotent while their codes are live.
	again, err := Seed(ctx, db, Options{WithFixtures: true})
	require.NoError(t, err)
	assert.Equal(t, summary.FixtureCodes, again.FixtureCodes)

	// Clean wipes everything before reseeding.
	_, err = Seed(ctx, db, Options{ShouldClean: true})
	require.NoError(t, err)
	var total int64
	require.NoError(t, db.Model(&models.StreamCode{}).Count(&total).Error)
	assert.Zero(t, total)
}
