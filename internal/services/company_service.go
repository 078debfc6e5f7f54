package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrUserCompanyNotFound means the authenticated user has no company mapping.
// Fatal to the operation; callers must not retry.
var ErrUserCompanyNotFound = errors.New("user company not found")

type CompanyService struct {
	db *sql.DB
}

func NewCompanyService(db *sql.DB) *CompanyService {
	return &CompanyService{db: db}
}

// GetCompanyID resolves the external (auth-provider) user id to the company
// scope every core query runs under.
func (s *CompanyService) GetCompanyID(ctx context.Context, externalUserID string) (int, error) {
	var companyID int
	err := s.db.QueryRowContext(ctx, `
		SELECT company_id FROM users
		WHERE external_id = $1
	`, externalUserID).Scan(&companyID)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("user %s: %w", externalUserID, ErrUserCompanyNotFound)
		}
		return 0, fmt.Errorf("resolving company for user %s: %w", externalUserID, err)
	}

	return companyID, nil
}
