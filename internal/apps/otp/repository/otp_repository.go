package repository

import (
	"context"
	"errors"
	"time"

	"bell-backend/internal/apps/otp/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// otpRepository implements Store on top of the otp_records table
type otpRepository struct {
	db *gorm.DB
}

// NewOTPRepository creates a postgres-backed Store
func NewOTPRepository(db *gorm.DB) Store {
	return &otpRepository{db: db}
}

// Put creates or replaces the OTP for a destination
func (r *otpRepository) Put(ctx context.Context, rec *models.OTPRecord) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "destination"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"id", "channel", "code_digest", "attempts", "max_attempts", "issued_at", "expires_at", "updated_at",
		}),
	}).Create(rec).Error
}

// Get retrieves the OTP for a destination
func (r *otpRepository) Get(ctx context.Context, destination string) (*models.OTPRecord, error) {
	var rec models.OTPRecord
	if err := r.db.WithContext(ctx).Where("destination = ?", destination).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// Remove deletes the OTP for a destination if it still carries id
func (r *otpRepository) Remove(ctx context.Context, destination string, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("destination = ? AND id = ?", destination, id).
		Delete(&models.OTPRecord{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// IncrementAttempts locks the row, bumps the counter and deletes the row at the limit
func (r *otpRepository) IncrementAttempts(ctx context.Context, destination string, id uuid.UUID) (int, error) {
	var attempts int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec models.OTPRecord
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("destination = ? AND id = ?", destination, id).
			First(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		attempts = rec.Attempts + 1
		if attempts >= rec.MaxAttempts {
			return tx.Where("destination = ?", destination).Delete(&models.OTPRecord{}).Error
		}
		return tx.Model(&models.OTPRecord{}).
			Where("destination = ?", destination).
			Update("attempts", attempts).Error
	})
	if err != nil {
		return 0, err
	}
	return attempts, nil
}

// DeleteExpired removes every OTP that expired before now
func (r *otpRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at < ?", now).Delete(&models.OTPRecord{})
	return res.RowsAffected, res.Error
}
