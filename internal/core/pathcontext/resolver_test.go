package pathcontext

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
)

var fixedNow = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestResolver(opts ...Option) *Resolver {
	return NewResolver(append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)...)
}

func TestBuildContextUnorganizedCampaign(t *testing.T) {
	r := newTestResolver()
	ctx, err := r.BuildContext(Input{
		OrganizationID: "org1",
		UserID:         "user1",
		CampaignID:     "campaign123",
		UploadType:     "hero-image",
	})
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if ctx.OrganizationID != "org1" {
		t.Fatalf("expected organization to be preserved, got %q", ctx.OrganizationID)
	}
	if ctx.IsHybridStorage {
		t.Fatalf("expected unorganized context")
	}

	cfg := r.BuildStorageConfig(ctx)
	if !strings.HasPrefix(cfg.SubPath, "Unassigned/") {
		t.Fatalf("expected Unassigned path, got %q", cfg.SubPath)
	}
	if cfg.SubPath != "Unassigned/Campaigns/Campaign-campaign123/Hero-Images" {
		t.Fatalf("unexpected sub path %q", cfg.SubPath)
	}
	if cfg.StorageType != domain.StorageUnorganized || cfg.IsOrganized {
		t.Fatalf("unexpected storage config %+v", cfg)
	}
}

func TestBuildContextOrganizedProject(t *testing.T) {
	r := newTestResolver()
	ctx, err := r.BuildContext(Input{
		OrganizationID:      "org1",
		UserID:              "user1",
		CampaignID:          "campaign123",
		SelectedProjectID:   "project123",
		SelectedProjectName: "Proj",
		PipelineStage:       "customer_approval",
		UploadType:          "attachment",
	})
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if !ctx.IsHybridStorage {
		t.Fatalf("expected hybrid storage when a project is selected")
	}

	cfg := r.BuildStorageConfig(ctx)
	want := "Projects/Proj/Campaigns/Campaign-campaign123/Customer-Approval/Attachments"
	if cfg.SubPath != want {
		t.Fatalf("expected %q, got %q", want, cfg.SubPath)
	}
	if !cfg.PipelineIntegration {
		t.Fatalf("expected pipeline integration for staged organized upload")
	}

	path := r.ResolveStoragePath(ctx, "brief.pdf")
	wantPath := fmt.Sprintf("organizations/org1/media/%s/%d_brief.pdf", want, fixedNow.UnixMilli())
	if path != wantPath {
		t.Fatalf("expected %q, got %q", wantPath, path)
	}
}

func TestBuildContextRejectsUnknownUploadType(t *testing.T) {
	_, err := newTestResolver().BuildContext(Input{OrganizationID: "org1", UploadType: "spreadsheet"})
	if !domain.IsKind(err, domain.ErrInvalidUploadType) {
		t.Fatalf("expected ErrInvalidUploadType, got %v", err)
	}
}

func TestBuildContextClientPrecedence(t *testing.T) {
	r := newTestResolver()

	explicit, _ := r.BuildContext(Input{ClientID: "client-a", ProjectClientID: "client-b"})
	if explicit.ClientID != "client-a" || explicit.InheritedClientID != "client-b" {
		t.Fatalf("explicit client must win and inherited must be kept, got %+v", explicit)
	}

	inherited, _ := r.BuildContext(Input{ProjectClientID: "client-b"})
	if inherited.ClientID != "client-b" || inherited.InheritedClientID != "client-b" {
		t.Fatalf("expected inherited client, got %+v", inherited)
	}

	none, _ := r.BuildContext(Input{})
	if none.ClientID != "" || none.InheritedClientID != "" {
		t.Fatalf("expected empty client ids, got %+v", none)
	}
}

func TestBuildContextAutoTags(t *testing.T) {
	ctx, err := newTestResolver().BuildContext(Input{
		OrganizationID:    "org1",
		CampaignID:        "c1",
		SelectedProjectID: "p1",
		PipelineStage:     "Creation",
		UploadType:        "hero-image",
		ClientID:          "cl1",
		AutoTags:          []string{"featured", "org:org1"},
	})
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	want := []string{
		"featured", "org:org1", "campaign:c1", "project:p1",
		"storage:organized", "upload-type:hero-image", "stage:creation", "client:cl1",
	}
	if strings.Join(ctx.AutoTags, ",") != strings.Join(want, ",") {
		t.Fatalf("expected tags %v, got %v", want, ctx.AutoTags)
	}
}

func TestBuildContextMigrationInfo(t *testing.T) {
	ctx, err := newTestResolver().BuildContext(Input{
		OrganizationID:      "org123",
		UserID:              "user123",
		CampaignID:          "campaign123",
		CampaignName:        "Test Campaign",
		SelectedProjectID:   "project123",
		SelectedProjectName: "Assigned Project",
		UploadType:          "hero-image",
		MigrationMode:       true,
	})
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	info := ctx.MigrationInfo
	if info == nil {
		t.Fatalf("expected migration info")
	}
	if info.FromStorage != domain.StorageUnorganized || info.ToStorage != domain.StorageOrganized || !info.RequiresAssetMigration {
		t.Fatalf("unexpected migration info %+v", info)
	}
	if info.OldPath != "Unassigned/Campaigns/Test Campaign-campaign123" {
		t.Fatalf("unexpected old path %q", info.OldPath)
	}
	if info.NewPath != "Projects/Assigned Project/Campaigns/Test Campaign-campaign123" {
		t.Fatalf("unexpected new path %q", info.NewPath)
	}
}

func TestValidateContextListsEachMissingField(t *testing.T) {
	r := newTestResolver()
	ctx, _ := r.BuildContext(Input{})
	res := r.ValidateContext(ctx)
	if res.IsValid {
		t.Fatalf("expected invalid context")
	}
	want := []string{
		"organizationId is required",
		"userId is required",
		"campaignId is required",
		"uploadType is required",
	}
	if strings.Join(res.Errors, "|") != strings.Join(want, "|") {
		t.Fatalf("expected errors %v, got %v", want, res.Errors)
	}
}

func TestValidateContextCrossOrganization(t *testing.T) {
	r := newTestResolver()
	ctx, _ := r.BuildContext(Input{
		OrganizationID:           "org1",
		UserID:                   "u",
		CampaignID:               "c",
		UploadType:               "attachment",
		RequestingOrganizationID: "org2",
	})
	res := r.ValidateContext(ctx)
	if res.IsValid || !res.SecurityViolation {
		t.Fatalf("expected security violation, got %+v", res)
	}
}

func TestValidateContextWarnsOnUnknownStage(t *testing.T) {
	r := newTestResolver()
	ctx, _ := r.BuildContext(Input{
		OrganizationID: "org1", UserID: "u", CampaignID: "c",
		UploadType: "attachment", PipelineStage: "post mortem",
	})
	res := r.ValidateContext(ctx)
	if !res.IsValid || len(res.Warnings) != 1 {
		t.Fatalf("expected one warning on valid context, got %+v", res)
	}
	if got := r.BuildStorageConfig(ctx).SubPath; got != "Unassigned/Campaigns/Campaign-c/Attachments" {
		t.Fatalf("unorganized path must ignore stage, got %q", got)
	}

	ctx.IsHybridStorage = true
	ctx.SelectedProjectID = "p"
	if got := r.BuildStorageConfig(ctx).SubPath; got != "Projects/p/Campaigns/Campaign-c/Post-Mortem/Attachments" {
		t.Fatalf("expected title-cased stage label, got %q", got)
	}
}

func TestCampaignIDAlwaysDiscriminatesPath(t *testing.T) {
	r := newTestResolver()
	pairs := [][2]string{
		{"c1", "c2"},
		{"a/b", "a_b"},
		{"../x", "x"},
		{"", "unknown"},
	}
	for _, pair := range pairs {
		a, _ := r.BuildContext(Input{OrganizationID: "o", CampaignID: pair[0], CampaignName: "Same", UploadType: "attachment"})
		b, _ := r.BuildContext(Input{OrganizationID: "o", CampaignID: pair[1], CampaignName: "Same", UploadType: "attachment"})
		if r.ResolveStoragePath(a, "f.png") == r.ResolveStoragePath(b, "f.png") {
			t.Fatalf("campaigns %q and %q share a storage path", pair[0], pair[1])
		}
	}
}

func TestNamingConventions(t *testing.T) {
	ctx := domain.UploadContext{OrganizationID: "o", CampaignID: "c9", UploadType: domain.UploadTypeAttachment}
	millis := fixedNow.UnixMilli()

	cases := []struct {
		naming NamingConvention
		want   string
	}{
		{NamingTimestamp, fmt.Sprintf("%d_a.png", millis)},
		{NamingCampaign, fmt.Sprintf("c9_%d_a.png", millis)},
		{NamingProject, fmt.Sprintf("c9_%d_a.png", millis)},
		{NamingOriginal, "a.png"},
	}
	for _, tc := range cases {
		path := newTestResolver(WithNaming(tc.naming)).ResolveStoragePath(ctx, "a.png")
		if !strings.HasSuffix(path, "/"+tc.want) {
			t.Fatalf("%s: expected suffix %q, got %q", tc.naming, tc.want, path)
		}
	}
}

func TestLegacyPath(t *testing.T) {
	got := newTestResolver().LegacyPath("org1", "../x.png")
	want := fmt.Sprintf("organizations/org1/media/Unassigned/%d_x.png", fixedNow.UnixMilli())
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

type countingObserver struct {
	mu     sync.Mutex
	counts map[domain.StorageType]int
}

func (o *countingObserver) ObserveContextBuild(st domain.StorageType) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counts[st]++
}

func TestConcurrentBuildsAreIndependent(t *testing.T) {
	observer := &countingObserver{counts: map[domain.StorageType]int{}}
	r := newTestResolver(WithObserver(observer))

	const n = 500
	paths := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := Input{OrganizationID: "org1", UserID: "u", CampaignID: fmt.Sprintf("campaign%d", i), UploadType: "attachment"}
			if i%2 == 0 {
				in.SelectedProjectID = "p"
			}
			ctx, err := r.BuildContext(in)
			if err != nil {
				t.Errorf("BuildContext: %v", err)
				return
			}
			paths[i] = r.ResolveStoragePath(ctx, "file.png")
		}(i)
	}
	wg.Wait()

	seen := make(map[string]struct{}, n)
	for _, p := range paths {
		if _, dup := seen[p]; dup {
			t.Fatalf("duplicate path %q", p)
		}
		seen[p] = struct{}{}
	}
	if observer.counts[domain.StorageOrganized] != n/2 || observer.counts[domain.StorageUnorganized] != n/2 {
		t.Fatalf("unexpected observer counts %v", observer.counts)
	}
}
