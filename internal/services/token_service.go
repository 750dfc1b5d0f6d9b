package services

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperrors "budgetbox/internal/errors"
	"budgetbox/internal/models"
)

// tokenService stores access-token JTIs revoked at logout.
type tokenService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewTokenService creates a new TokenServicer.
func NewTokenService(db *gorm.DB) TokenServicer {
	return &tokenService{db: db, now: time.Now}
}

// RevokeToken blocks jti until expiresAt. Revoking twice is a no-op.
func (s *tokenService) RevokeToken(ctx context.Context, jti, userID string, expiresAt time.Time) error {
	if jti == "" {
		return apperrors.ErrInvalidToken
	}
	entry := &models.RevokedToken{JTI: jti, UserID: userID, ExpiresAt: expiresAt}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(entry).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

// IsRevoked implements middleware.RevocationChecker.
func (s *tokenService) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.RevokedToken{}).Where("jti = ?", jti).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// PurgeExpired deletes revocations whose tokens have expired anyway.
func (s *tokenService) PurgeExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at < ?", s.now()).Delete(&models.RevokedToken{})
	if result.Error != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, result.Error)
	}
	return result.RowsAffected, nil
}
