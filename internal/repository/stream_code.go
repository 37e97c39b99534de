// Package repository implements the data access layer for the application.
package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"streamcode/internal/models"
	"streamcode/internal/observability"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const streamCodesTable = "stream_codes"

// ErrCodeConflict is returned by Create when another record already holds the code.
var ErrCodeConflict = errors.New("stream code already taken")

// StreamCodeRepository defines persistence operations for stream codes.
type StreamCodeRepository interface {
	// FindLive returns every record that is active and expires after now.
	FindLive(ctx context.Context, now time.Time) ([]models.StreamCode, error)
	// CodeExists reports whether any record, live or dead, holds code.
	CodeExists(ctx context.Context, code string) (bool, error)
	// FindByCode returns the record holding code, or (nil, nil) when there is none.
	FindByCode(ctx context.Context, code string) (*models.StreamCode, error)
	Create(ctx context.Context, record *models.StreamCode) error
	// Deactivate flips is_active to false. It reports whether a record was changed.
	Deactivate(ctx context.Context, code string) (bool, error)
}

type streamCodeRepository struct {
	db     *gorm.DB
	logger *observability.RepoLogger
}

// NewStreamCodeRepository returns a GORM-backed StreamCodeRepository.
func NewStreamCodeRepository(db *gorm.DB) StreamCodeRepository {
	return &streamCodeRepository{
		db:     db,
		logger: observability.NewRepoLogger(streamCodesTable),
	}
}

func (r *streamCodeRepository) dbSystem() string {
	return r.db.Dialector.Name()
}

func (r *streamCodeRepository) FindLive(ctx context.Context, now time.Time) ([]models.StreamCode, error) {
	ctx, span := observability.GetTraceLayer().TraceRepositoryMethod(ctx, r.dbSystem(), "FindLive", streamCodesTable)
	defer span.End()
	defer observability.TrackQuery("find_live", streamCodesTable)()

	var records []models.StreamCode
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND expires_at > ?", true, now).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		observability.RecordErrorInContext(ctx, err)
		r.logger.LogError(ctx, err, "find_live")
		return nil, err
	}
	return records, nil
}

func (r *streamCodeRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	ctx, span := observability.GetTraceLayer().TraceRepositoryMethod(ctx, r.dbSystem(), "CodeExists", streamCodesTable)
	defer span.End()
	defer observability.TrackQuery("code_exists", streamCodesTable)()

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.StreamCode{}).
		Where("code = ?", code).
		Count(&count).Error
	if err != nil {
		observability.RecordErrorInContext(ctx, err)
		r.logger.LogError(ctx, err, "code_exists")
		return false, err
	}
	return count > 0, nil
}

func (r *streamCodeRepository) FindByCode(ctx context.Context, code string) (*models.StreamCode, error) {
	ctx, span := observability.GetTraceLayer().TraceRepositoryMethod(ctx, r.dbSystem(), "FindByCode", streamCodesTable)
	defer span.End()
	defer observability.TrackQuery("find_by_code", streamCodesTable)()

	var record models.StreamCode
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		observability.RecordErrorInContext(ctx, err)
		r.logger.LogError(ctx, err, "find_by_code")
		return nil, err
	}
	r.logger.LogRead(ctx, map[string]any{"code": code})
	return &record, nil
}

func (r *streamCodeRepository) Create(ctx context.Context, record *models.StreamCode) error {
	ctx, span := observability.GetTraceLayer().TraceRepositoryMethod(ctx, r.dbSystem(), "Create", streamCodesTable)
	defer span.End()
	defer observability.TrackQuery("create", streamCodesTable)()

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		if isUniqueConstraintError(err) {
			return ErrCodeConflict
		}
		observability.RecordErrorInContext(ctx, err)
		r.logger.LogError(ctx, err, "create")
		return err
	}
	r.logger.LogCreate(ctx, map[string]any{
		"code":       record.Code,
		"kind":       string(record.Descriptor.Kind),
		"expires_at": record.ExpiresAt,
	})
	return nil
}

func (r *streamCodeRepository) Deactivate(ctx context.Context, code string) (bool, error) {
	ctx, span := observability.GetTraceLayer().TraceRepositoryMethod(ctx, r.dbSystem(), "Deactivate", streamCodesTable)
	defer span.End()
	defer observability.TrackQuery("deactivate", streamCodesTable)()

	result := r.db.WithContext(ctx).
		Model(&models.StreamCode{}).
		Where("code = ? AND is_active = ?", code, true).
		Update("is_active", false)
	if result.Error != nil {
		observability.RecordErrorInContext(ctx, result.Error)
		r.logger.LogError(ctx, result.Error, "deactivate")
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		r.logger.LogUpdate(ctx, map[string]any{"code": code, "is_active": false})
	}
	return result.RowsAffected > 0, nil
}

// isUniqueConstraintError checks if a DB error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// PostgreSQL unique violation SQLSTATE 23505
		return pgErr.Code == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
