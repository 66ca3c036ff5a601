package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

type AssetRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewAssetRepository(db *sql.DB) *AssetRepository {
	return &AssetRepository{db: sqlx.NewDb(db, "pgx"), now: time.Now}
}

type assetRow struct {
	ID             string         `db:"id"`
	OrganizationID string         `db:"organization_id"`
	UserID         string         `db:"user_id"`
	CampaignID     string         `db:"campaign_id"`
	ProjectID      string         `db:"project_id"`
	ClientID       string         `db:"client_id"`
	FileName       string         `db:"file_name"`
	MimeType       string         `db:"mime_type"`
	Size           int64          `db:"size"`
	StoragePath    string         `db:"storage_path"`
	StorageType    string         `db:"storage_type"`
	UploadType     string         `db:"upload_type"`
	Tags           pq.StringArray `db:"tags"`
	Status         string         `db:"status"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

func (row assetRow) toDomain() domain.Asset {
	tags := []string(row.Tags)
	if tags == nil {
		tags = []string{}
	}
	return domain.Asset{
		ID:             row.ID,
		OrganizationID: row.OrganizationID,
		UserID:         row.UserID,
		CampaignID:     row.CampaignID,
		ProjectID:      row.ProjectID,
		ClientID:       row.ClientID,
		FileName:       row.FileName,
		MimeType:       row.MimeType,
		Size:           row.Size,
		StoragePath:    row.StoragePath,
		StorageType:    domain.StorageType(row.StorageType),
		UploadType:     domain.UploadType(row.UploadType),
		Tags:           tags,
		Status:         domain.AssetStatus(row.Status),
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
}

const assetColumns = `id, organization_id, user_id, campaign_id, project_id, client_id, file_name, mime_type, size,
	storage_path, storage_type, upload_type, tags, status, created_at, updated_at`

func (r *AssetRepository) Create(ctx context.Context, asset *domain.Asset) error {
	if asset.OrganizationID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "create asset", errors.New("organization id is required"))
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO assets (`+assetColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
`,
		asset.ID, asset.OrganizationID, asset.UserID, asset.CampaignID, asset.ProjectID, asset.ClientID,
		asset.FileName, asset.MimeType, asset.Size, asset.StoragePath, string(asset.StorageType),
		string(asset.UploadType), pq.Array(nonNilStrings(asset.Tags)), string(asset.Status), asset.CreatedAt, asset.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

// GetByID only returns assets owned by organizationID.
func (r *AssetRepository) GetByID(ctx context.Context, organizationID, id string) (*domain.Asset, error) {
	var row assetRow
	err := r.db.GetContext(ctx, &row, `
SELECT `+assetColumns+`
FROM assets
WHERE organization_id = $1 AND id = $2
`, organizationID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrAssetNotFound, "get asset", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("get asset: %w", err)
	}
	asset := row.toDomain()
	return &asset, nil
}

// List returns the newest assets of one organization carrying every
// filter tag.
func (r *AssetRepository) List(ctx context.Context, filter domain.AssetFilter) ([]domain.Asset, error) {
	if filter.OrganizationID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list assets", errors.New("organization id is required"))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var rows []assetRow
	err := r.db.SelectContext(ctx, &rows, `
SELECT `+assetColumns+`
FROM assets
WHERE organization_id = $1 AND tags @> $2
ORDER BY created_at DESC
LIMIT $3
`, filter.OrganizationID, pq.Array(nonNilStrings(filter.Tags)), limit)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}

	out := make([]domain.Asset, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *AssetRepository) UpdateLocation(ctx context.Context, asset *domain.Asset) error {
	updatedAt := asset.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = r.now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE assets
SET storage_path = $3, storage_type = $4, tags = $5, status = $6, updated_at = $7
WHERE organization_id = $1 AND id = $2
`, asset.OrganizationID, asset.ID, asset.StoragePath, string(asset.StorageType),
		pq.Array(nonNilStrings(asset.Tags)), string(asset.Status), updatedAt)
	if err != nil {
		return fmt.Errorf("update asset location: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update asset location rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrAssetNotFound, "update asset location", fmt.Errorf("id=%s", asset.ID))
	}
	return nil
}
