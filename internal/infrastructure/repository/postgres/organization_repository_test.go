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

func newOrgRepoWithMock(t *testing.T) (*OrganizationRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &OrganizationRepository{db: sqlx.NewDb(db, "sqlmock")}, mock, func() { _ = db.Close() }
}

func TestGetOrganizationDecodesRolloutSettings(t *testing.T) {
	repo, mock, done := newOrgRepoWithMock(t)
	defer done()

	updated := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, name, tier").
		WithArgs("org1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "tier", "rollout_percentages", "canary_users", "ab_tests", "updated_at",
		}).AddRow(
			"org1", "Acme", "enterprise",
			[]byte(`{"smart_folder_recommendations":25}`),
			`{"u1","u2"}`,
			[]byte(`{"confidence_scoring":{"active":true,"treatmentPercentage":50,"trackingEnabled":false}}`),
			updated,
		))

	org, err := repo.GetOrganization(context.Background(), "org1")
	if err != nil {
		t.Fatalf("GetOrganization() error = %v", err)
	}
	if org.Tier != domain.TierEnterprise {
		t.Fatalf("expected enterprise tier, got %s", org.Tier)
	}
	if org.RolloutPercentages["smart_folder_recommendations"] != 25 {
		t.Fatalf("unexpected rollout: %v", org.RolloutPercentages)
	}
	if len(org.CanaryUsers) != 2 || org.CanaryUsers[0] != "u1" {
		t.Fatalf("unexpected canary users: %v", org.CanaryUsers)
	}
	test, ok := org.ABTests["confidence_scoring"]
	if !ok || !test.Active || test.TreatmentPercentage != 50 {
		t.Fatalf("unexpected ab tests: %+v", org.ABTests)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetOrganizationReturnsAbsentKind(t *testing.T) {
	repo, mock, done := newOrgRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, name, tier").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetOrganization(context.Background(), "ghost")
	if !domain.IsKind(err, domain.ErrOrganizationAbsent) {
		t.Fatalf("expected ErrOrganizationAbsent, got %v", err)
	}
}

func TestGetMemberRoleEmptyForNonMember(t *testing.T) {
	repo, mock, done := newOrgRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT role FROM organization_members").
		WithArgs("org1", "stranger").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("SELECT role FROM organization_members").
		WithArgs("org1", "boss").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("admin"))

	role, err := repo.GetMemberRole(context.Background(), "org1", "stranger")
	if err != nil || role != "" {
		t.Fatalf("expected empty role, got %q err=%v", role, err)
	}
	role, err = repo.GetMemberRole(context.Background(), "org1", "boss")
	if err != nil || role != "admin" {
		t.Fatalf("expected admin role, got %q err=%v", role, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertOrganizationDefaultsTier(t *testing.T) {
	repo, mock, done := newOrgRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO organizations").
		WithArgs("org1", "Acme", "basic", []byte(`{}`), "{}", []byte(`{}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpsertOrganization(context.Background(), &domain.Organization{ID: "org1", Name: "Acme"}); err != nil {
		t.Fatalf("UpsertOrganization() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1\)`).WithArgs(schemaLockID).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS assets").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
