package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
)

// OrganizationRepository is the tenant provider backed by the
// organizations and organization_members tables.
type OrganizationRepository struct {
	db *sqlx.DB
}

func NewOrganizationRepository(db *sql.DB) *OrganizationRepository {
	return &OrganizationRepository{db: sqlx.NewDb(db, "pgx")}
}

type organizationRow struct {
	ID                 string         `db:"id"`
	Name               string         `db:"name"`
	Tier               string         `db:"tier"`
	RolloutPercentages []byte         `db:"rollout_percentages"`
	CanaryUsers        pq.StringArray `db:"canary_users"`
	ABTests            []byte         `db:"ab_tests"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

func (r *OrganizationRepository) GetOrganization(ctx context.Context, organizationID string) (*domain.Organization, error) {
	var row organizationRow
	err := r.db.GetContext(ctx, &row, `
SELECT id, name, tier, rollout_percentages, canary_users, ab_tests, updated_at
FROM organizations
WHERE id = $1
`, organizationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrOrganizationAbsent, "get organization", fmt.Errorf("id=%s", organizationID))
		}
		return nil, fmt.Errorf("get organization: %w", err)
	}

	org := &domain.Organization{
		ID:          row.ID,
		Name:        row.Name,
		Tier:        domain.Tier(row.Tier),
		CanaryUsers: []string(row.CanaryUsers),
		UpdatedAt:   row.UpdatedAt,
	}
	if len(row.RolloutPercentages) > 0 {
		if err := json.Unmarshal(row.RolloutPercentages, &org.RolloutPercentages); err != nil {
			return nil, fmt.Errorf("unmarshal rollout percentages: %w", err)
		}
	}
	if len(row.ABTests) > 0 {
		if err := json.Unmarshal(row.ABTests, &org.ABTests); err != nil {
			return nil, fmt.Errorf("unmarshal ab tests: %w", err)
		}
	}
	return org, nil
}

// GetMemberRole returns an empty role for users outside the organization.
func (r *OrganizationRepository) GetMemberRole(ctx context.Context, organizationID, userID string) (string, error) {
	var role string
	err := r.db.GetContext(ctx, &role, `
SELECT role FROM organization_members
WHERE organization_id = $1 AND user_id = $2
`, organizationID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("get member role: %w", err)
	}
	return role, nil
}

// UpsertOrganization stores tier and rollout settings. Callers invalidate
// the flag cache afterwards.
func (r *OrganizationRepository) UpsertOrganization(ctx context.Context, org *domain.Organization) error {
	if org.ID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "upsert organization", errors.New("organization id is required"))
	}
	rollout, err := json.Marshal(nonNilMap(org.RolloutPercentages))
	if err != nil {
		return fmt.Errorf("marshal rollout percentages: %w", err)
	}
	abTests := org.ABTests
	if abTests == nil {
		abTests = map[string]domain.ABTest{}
	}
	abJSON, err := json.Marshal(abTests)
	if err != nil {
		return fmt.Errorf("marshal ab tests: %w", err)
	}
	tier := org.Tier
	if tier == "" {
		tier = domain.TierBasic
	}
	updatedAt := org.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO organizations (id, name, tier, rollout_percentages, canary_users, ab_tests, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE
SET name = EXCLUDED.name,
	tier = EXCLUDED.tier,
	rollout_percentages = EXCLUDED.rollout_percentages,
	canary_users = EXCLUDED.canary_users,
	ab_tests = EXCLUDED.ab_tests,
	updated_at = EXCLUDED.updated_at
`, org.ID, org.Name, string(tier), rollout, pq.Array(nonNilStrings(org.CanaryUsers)), abJSON, updatedAt)
	if err != nil {
		return fmt.Errorf("upsert organization: %w", err)
	}
	return nil
}

func nonNilMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return map[string]float64{}
	}
	return m
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
