package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
)

var assetCols = []string{
	"id", "organization_id", "user_id", "campaign_id", "project_id", "client_id", "file_name", "mime_type", "size",
	"storage_path", "storage_type", "upload_type", "tags", "status", "created_at", "updated_at",
}

func newAssetRepoWithMock(t *testing.T) (*AssetRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	repo := &AssetRepository{
		db:  sqlx.NewDb(db, "sqlmock"),
		now: func() time.Time { return time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC) },
	}
	return repo, mock, func() { _ = db.Close() }
}

func TestAssetGetByIDScopesToOrganization(t *testing.T) {
	repo, mock, done := newAssetRepoWithMock(t)
	defer done()

	created := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, organization_id, user_id").
		WithArgs("org1", "a1").
		WillReturnRows(sqlmock.NewRows(assetCols).AddRow(
			"a1", "org1", "u1", "c1", "", "", "hero.png", "image/png", int64(2048),
			"organizations/org1/media/Unassigned/Campaigns/Campaign-c1/Hero-Images/1_hero.png",
			"unorganized", "hero-image", `{"org:org1","campaign:c1"}`, "stored", created, created,
		))

	asset, err := repo.GetByID(context.Background(), "org1", "a1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if asset.OrganizationID != "org1" || asset.Size != 2048 {
		t.Fatalf("unexpected asset: %+v", asset)
	}
	if len(asset.Tags) != 2 || asset.Tags[1] != "campaign:c1" {
		t.Fatalf("unexpected tags: %v", asset.Tags)
	}
	if asset.StorageType != domain.StorageUnorganized || asset.Status != domain.AssetStored {
		t.Fatalf("unexpected enums: %+v", asset)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAssetGetByIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newAssetRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, organization_id").
		WithArgs("org2", "a1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "org2", "a1")
	if !domain.IsKind(err, domain.ErrAssetNotFound) {
		t.Fatalf("expected ErrAssetNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAssetListFiltersByTagsAndClampsLimit(t *testing.T) {
	repo, mock, done := newAssetRepoWithMock(t)
	defer done()

	now := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`WHERE organization_id = \$1 AND tags @> \$2`).
		WithArgs("org1", sqlmock.AnyArg(), maxListLimit).
		WillReturnRows(sqlmock.NewRows(assetCols).
			AddRow("a2", "org1", "u1", "c1", "", "", "b.pdf", "application/pdf", int64(10), "p/b.pdf",
				"unorganized", "attachment", `{"campaign:c1"}`, "stored", now, now).
			AddRow("a1", "org1", "u1", "c1", "", "", "a.pdf", "application/pdf", int64(5), "p/a.pdf",
				"unorganized", "attachment", `{}`, "stored", now, now))

	assets, err := repo.List(context.Background(), domain.AssetFilter{
		OrganizationID: "org1",
		Tags:           []string{"campaign:c1"},
		Limit:          5000,
	})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(assets) != 2 || assets[0].ID != "a2" {
		t.Fatalf("unexpected assets: %+v", assets)
	}
	if assets[1].Tags == nil {
		t.Fatalf("expected empty tag slice, got nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAssetListRequiresOrganization(t *testing.T) {
	repo, _, done := newAssetRepoWithMock(t)
	defer done()

	_, err := repo.List(context.Background(), domain.AssetFilter{Tags: []string{"x"}})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAssetUpdateLocationReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newAssetRepoWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE assets").
		WithArgs("org1", "missing", "new/path", "organized", sqlmock.AnyArg(), "migrated", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateLocation(context.Background(), &domain.Asset{
		ID:             "missing",
		OrganizationID: "org1",
		StoragePath:    "new/path",
		StorageType:    domain.StorageOrganized,
		Tags:           []string{"storage:organized"},
		Status:         domain.AssetMigrated,
	})
	if !domain.IsKind(err, domain.ErrAssetNotFound) {
		t.Fatalf("expected ErrAssetNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAssetCreateInsertsTagsAsArray(t *testing.T) {
	repo, mock, done := newAssetRepoWithMock(t)
	defer done()

	now := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO assets").
		WithArgs("a1", "org1", "u1", "c1", "p1", "cl1", "hero.png", "image/png", int64(42), "path",
			"organized", "hero-image", `{"org:org1","project:p1"}`, "stored", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &domain.Asset{
		ID: "a1", OrganizationID: "org1", UserID: "u1", CampaignID: "c1", ProjectID: "p1", ClientID: "cl1",
		FileName: "hero.png", MimeType: "image/png", Size: 42, StoragePath: "path",
		StorageType: domain.StorageOrganized, UploadType: domain.UploadTypeHeroImage,
		Tags: []string{"org:org1", "project:p1"}, Status: domain.AssetStored,
		CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
