package seed

import (
	"context"
	"fmt"
	"log/slog"

	"streamcode/internal/middleware"
	"streamcode/internal/models"
	"streamcode/internal/repository"
	"streamcode/internal/service"

	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumSingles   int
	NumMulti     int
	NumDead      int
	WithFixtures bool
	ShouldClean  bool
	Seed         int64
}

// Summary reports what a Seed run produced.
type Summary struct {
	FixtureCodes []string
	LiveCodes    []string
	DeadCodes    []string
}

// Seed populates stream_codes with demo data. Live records go through the
// registry so they obey the same rules as API-issued codes.
func Seed(ctx context.Context, db *gorm.DB, opts Options) (*Summary, error) {
	if opts.ShouldClean {
		if err := clearData(db); err != nil {
			return nil, fmt.Errorf("clear stream codes: %w", err)
		}
	}

	registry := service.NewStreamCodeService(repository.NewStreamCodeRepository(db), nil, service.DefaultCodeTTL, service.DefaultMaxAttempts)
	factory := NewFactory(db, opts.Seed)
	summary := &Summary{}

	if opts.WithFixtures {
		fixtures, err := BuiltInFixtures()
		if err != nil {
			return nil, err
		}
		codes, err := IssueFixtures(ctx, registry, fixtures)
		if err != nil {
			return nil, err
		}
		summary.FixtureCodes = codes
	}

	descriptors := make([]models.StreamDescriptor, 0, opts.NumSingles+opts.NumMulti)
	for i := 0; i < opts.NumSingles; i++ {
		descriptors = append(descriptors, factory.BuildSingle())
	}
	for i := 0; i < opts.NumMulti; i++ {
		descriptors = append(descriptors, factory.BuildMulti(2+i%3))
	}
	for _, d := range descriptors {
		res, err := registry.Issue(ctx, d)
		if err != nil {
			return nil, fmt.Errorf("issue seeded stream: %w", err)
		}
		summary.LiveCodes = append(summary.LiveCodes, res.Code)
	}

	gen := service.RandomCodeGenerator{}
	for i := 0; i < opts.NumDead; i++ {
		code, err := freeCode(ctx, db, gen)
		if err != nil {
			return nil, err
		}
		record, err := factory.CreateDeadRecord(code, factory.BuildSingle(), i%2 == 0)
		if err != nil {
			return nil, fmt.Errorf("create dead record: %w", err)
		}
		summary.DeadCodes = append(summary.DeadCodes, record.Code)
	}

	middleware.Logger.Info("seeded stream codes",
		slog.Int("fixtures", len(summary.FixtureCodes)),
		slog.Int("live", len(summary.LiveCodes)),
		slog.Int("dead", len(summary.DeadCodes)),
	)
	return summary, nil
}

func freeCode(ctx context.Context, db *gorm.DB, gen service.CodeGenerator) (string, error) {
	repo := repository.NewStreamCodeRepository(db)
	for attempt := 0; attempt < service.DefaultMaxAttempts; attempt++ {
		code, err := gen.Generate()
		if err != nil {
			return "", err
		}
		taken, err := repo.CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", service.ErrCodeSpaceExhausted
}

func clearData(db *gorm.DB) error {
	return db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.StreamCode{}).Error
}
