package recommend

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
)

func testProject(stage domain.PipelineStage) domain.Project {
	return domain.Project{
		ID:             "p1",
		Title:          "Spring Launch",
		OrganizationID: "org1",
		ClientID:       "client-7",
		Company:        "Acme",
		CurrentStage:   stage,
		CreatedAt:      time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
	}
}

func testFolders() []domain.Folder {
	return []domain.Folder{
		{ID: "f-docs", Name: "Dokumente", OrganizationID: "org1"},
		{ID: "f-media", Name: "Medien", OrganizationID: "org1"},
		{ID: "f-press", Name: "Pressemitteilungen", OrganizationID: "org1"},
	}
}

func TestPressReleasePrefixWinsInEveryPhase(t *testing.T) {
	stages := []domain.PipelineStage{
		"", domain.StageIdeasPlanning, domain.StageCreation, domain.StageInternalApproval,
		domain.StageCustomerApproval, domain.StageDistribution, domain.StageMonitoring,
	}
	for _, stage := range stages {
		res, err := NewEngine().Build(Input{
			Project: testProject(stage),
			Folders: testFolders(),
			Files:   []domain.FileInfo{{Name: "PM_x.docx", Size: 1024}},
		})
		if err != nil {
			t.Fatalf("stage %q: %v", stage, err)
		}
		rec := res.Recommendations[0]
		if rec.Confidence <= 90 || rec.TargetKind != domain.FolderPressReleases || rec.TargetFolderID != "f-press" {
			t.Fatalf("stage %q: unexpected recommendation %+v", stage, rec)
		}
		if !rec.AutoAccept {
			t.Fatalf("stage %q: expected auto accept", stage)
		}
	}
}

func TestScoringBands(t *testing.T) {
	cases := []struct {
		name       string
		stage      domain.PipelineStage
		file       domain.FileInfo
		target     domain.FolderKind
		confidence float64
		userSelect bool
		factor     string
	}{
		{"phase and type agree", domain.StageCreation, domain.FileInfo{Name: "hero.jpg", MimeType: "image/jpeg"}, domain.FolderMedia, 92, false, "pipeline_phase_match"},
		{"phase and type disagree", domain.StageIdeasPlanning, domain.FileInfo{Name: "hero.png"}, domain.FolderMedia, 65, false, "pipeline_phase_mismatch"},
		{"unknown file", domain.StageMonitoring, domain.FileInfo{Name: "blob.bin"}, domain.FolderDocuments, 40, true, "file_type_unknown"},
		{"missing phase", "", domain.FileInfo{Name: "notes.pdf"}, domain.FolderDocuments, 60, false, "pipeline_phase_missing"},
		{"no signal", "", domain.FileInfo{Name: "blob.bin"}, domain.FolderDocuments, 25, true, "pipeline_phase_missing"},
		{"plain text with unknown extension", domain.StageCreation, domain.FileInfo{Name: "config.xyz", MimeType: "text/plain"}, domain.FolderMedia, 40, true, "file_type_unknown"},
		{"plain text with txt extension", "", domain.FileInfo{Name: "notes.txt", MimeType: "text/plain"}, domain.FolderDocuments, 60, false, "file_type_match"},
		{"csv by mime", "", domain.FileInfo{Name: "export", MimeType: "text/csv"}, domain.FolderDocuments, 60, false, "file_type_match"},
		{"name pattern", "", domain.FileInfo{Name: "brand-kit"}, domain.FolderMedia, 60, false, "file_type_match"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := NewEngine().Build(Input{Project: testProject(tc.stage), Folders: testFolders(), Files: []domain.FileInfo{tc.file}})
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			rec := res.Recommendations[0]
			if rec.TargetKind != tc.target || rec.Confidence != tc.confidence || rec.RequiresUserSelection != tc.userSelect {
				t.Fatalf("unexpected recommendation %+v", rec)
			}
			if !containsFactor(rec.ConfidenceFactors, tc.factor) {
				t.Fatalf("expected factor %q in %v", tc.factor, rec.ConfidenceFactors)
			}
			if rec.Confidence < 0 || rec.Confidence > 100 {
				t.Fatalf("confidence out of range: %v", rec.Confidence)
			}
			if rec.BelowThreshold != (rec.Confidence < ReviewThreshold) {
				t.Fatalf("belowThreshold inconsistent: %+v", rec)
			}
		})
	}
}

func TestMissingPhaseExplainsDowngrade(t *testing.T) {
	for _, name := range []string{"a.pdf", "blob.bin"} {
		res, _ := NewEngine().Build(Input{Project: testProject(""), Folders: testFolders(), Files: []domain.FileInfo{{Name: name}}})
		rec := res.Recommendations[0]
		if rec.Confidence >= 70 || rec.Reason != "Pipeline phase not defined" {
			t.Fatalf("%s: unexpected recommendation %+v", name, rec)
		}
		if !containsFactor(rec.ConfidenceFactors, "pipeline_phase_missing") {
			t.Fatalf("%s: expected pipeline_phase_missing in %v", name, rec.ConfidenceFactors)
		}
	}
}

func TestAlternativesAreRanked(t *testing.T) {
	res, _ := NewEngine().Build(Input{Project: testProject(domain.StageDistribution), Folders: testFolders(), Files: []domain.FileInfo{{Name: "clip.mp4"}}})
	alts := res.Recommendations[0].Alternatives
	if len(alts) != 2 {
		t.Fatalf("expected 2 alternatives, got %+v", alts)
	}
	if alts[0].FolderID != "f-press" || alts[0].Confidence != 55 || alts[1].Confidence != 30 {
		t.Fatalf("unexpected ranking %+v", alts)
	}
}

func TestTenantIsolation(t *testing.T) {
	project := testProject(domain.StageCreation)
	res, err := NewEngine().Build(Input{Project: project, Folders: testFolders(), Files: []domain.FileInfo{{Name: "a.png"}}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	rec := res.Recommendations[0]
	if rec.OrganizationID != "org1" || !rec.SecurityContext.TenantIsolation || rec.SecurityContext.OrganizationID != "org1" {
		t.Fatalf("missing tenant markers: %+v", rec)
	}
	if rec.InheritedClientID != "client-7" {
		t.Fatalf("expected inherited client, got %q", rec.InheritedClientID)
	}

	folders := append(testFolders(), domain.Folder{ID: "evil", Name: "Media", OrganizationID: "org2"})
	if _, err := NewEngine().Build(Input{Project: project, Folders: folders}); !domain.IsKind(err, domain.ErrCrossTenantAccess) {
		t.Fatalf("expected ErrCrossTenantAccess, got %v", err)
	}

	project.OrganizationID = ""
	if _, err := NewEngine().Build(Input{Project: project}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestBatchGroupingAndStrategy(t *testing.T) {
	files := []domain.FileInfo{
		{Name: "a.jpg", Size: 4 << 20},
		{Name: "b.pdf", Size: 2 << 20},
		{Name: "c.jpg", Size: 2 << 20},
		{Name: "big.pdf", Size: 200 << 20},
	}
	res, err := NewEngine().Build(Input{Project: testProject(domain.StageCreation), Folders: testFolders(), Files: files})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	groups := res.BatchOptimization.Groups
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %+v", groups)
	}
	media, docs := groups[0], groups[1]
	if media.TargetKind != domain.FolderMedia || len(media.Files) != 2 || media.ProcessingStrategy != domain.ProcessParallel {
		t.Fatalf("unexpected media group %+v", media)
	}
	if media.EstimatedTime != 3 {
		t.Fatalf("parallel group should take the slowest file (3s), got %v", media.EstimatedTime)
	}
	if docs.TargetFolderID != "f-docs" || docs.ProcessingStrategy != domain.ProcessSequential {
		t.Fatalf("unexpected docs group %+v", docs)
	}
	if docs.EstimatedTime != 2+101 {
		t.Fatalf("sequential group should sum durations, got %v", docs.EstimatedTime)
	}
	if len(res.PerformanceWarnings) != 0 {
		t.Fatalf("unexpected warnings %+v", res.PerformanceWarnings)
	}
}

func TestLargeBatchIsChunked(t *testing.T) {
	files := make([]domain.FileInfo, 120)
	for i := range files {
		files[i] = domain.FileInfo{Name: fmt.Sprintf("img-%03d.png", i), Size: 1024}
	}
	res, _ := NewEngine().Build(Input{Project: testProject(domain.StageCreation), Folders: testFolders(), Files: files})

	chunks := res.BatchOptimization.Chunks
	if len(chunks) != 3 || len(chunks[0]) != 50 || len(chunks[2]) != 20 {
		t.Fatalf("unexpected chunks: %d", len(chunks))
	}
	if len(res.PerformanceWarnings) != 1 || res.PerformanceWarnings[0].Type != "large_batch_upload" {
		t.Fatalf("expected large batch warning, got %+v", res.PerformanceWarnings)
	}
	if res.ProgressTracking.TotalFiles != 120 || res.ProgressTracking.TrackingGranularity != "per_file" {
		t.Fatalf("unexpected progress tracking %+v", res.ProgressTracking)
	}
}

func TestMissingFoldersStructureAndConflicts(t *testing.T) {
	res, err := NewEngine().Build(Input{
		Project: testProject(domain.StageCreation),
		Folders: []domain.Folder{{ID: "f-media", Name: "Media", OrganizationID: "org1"}},
		Files:   []domain.FileInfo{{Name: "logo.png"}, {Name: "logo.png"}, {Name: "LOGO.png"}},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(res.MissingFolders) != 2 || res.MissingFolders[0] != domain.FolderDocuments || res.MissingFolders[1] != domain.FolderPressReleases {
		t.Fatalf("unexpected missing folders %v", res.MissingFolders)
	}
	if res.FolderStructure.RootPath != "/P-2025-03-14-Acme-Spring-Launch" {
		t.Fatalf("unexpected root path %q", res.FolderStructure.RootPath)
	}
	if res.Recommendations[0].FolderPath != "/P-2025-03-14-Acme-Spring-Launch/Media" {
		t.Fatalf("unexpected folder path %q", res.Recommendations[0].FolderPath)
	}
	if res.ConflictResolution.Strategy != "rename_with_suffix" {
		t.Fatalf("expected rename strategy, got %+v", res.ConflictResolution)
	}
	if res.Recommendations[1].SuggestedFileName != "logo (1).png" || res.Recommendations[2].SuggestedFileName != "LOGO (2).png" {
		t.Fatalf("unexpected suggestions %q %q", res.Recommendations[1].SuggestedFileName, res.Recommendations[2].SuggestedFileName)
	}
	if res.Recommendations[0].SuggestedFileName != "" {
		t.Fatalf("first occurrence must keep its name")
	}
}

func TestEmptyFilesHasNoValidContext(t *testing.T) {
	res, err := NewEngine().Build(Input{Project: testProject(domain.StageCreation), Folders: testFolders()})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.HasValidContext {
		t.Fatalf("expected hasValidContext=false without files")
	}
}

type recordingObserver struct {
	mu     sync.Mutex
	hits   int
	scores []float64
}

func (o *recordingObserver) ObserveRecommendation(c float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.scores = append(o.scores, c)
}

func (o *recordingObserver) ObserveCacheHit(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hits++
}

func TestBuildCacheReturnsIdenticalRecommendations(t *testing.T) {
	observer := &recordingObserver{}
	engine := NewEngine(WithObserver(observer))
	in := Input{Project: testProject(domain.StageCreation), Folders: testFolders(), Files: []domain.FileInfo{{Name: "a.png"}, {Name: "b.pdf"}}}

	first, err := engine.Build(in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	second, err := engine.Build(in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if first.FromCache || !second.FromCache {
		t.Fatalf("expected second build from cache")
	}

	a, _ := json.Marshal(first.Recommendations)
	b, _ := json.Marshal(second.Recommendations)
	if string(a) != string(b) {
		t.Fatalf("cached recommendations differ:\n%s\n%s", a, b)
	}
	if observer.hits != 1 || len(observer.scores) != 2 {
		t.Fatalf("unexpected observer state hits=%d scores=%v", observer.hits, observer.scores)
	}

	engine.ClearCache()
	third, _ := engine.Build(in)
	if third.FromCache {
		t.Fatalf("expected fresh build after ClearCache")
	}
}

func TestBuildCacheIsNotAliasedByCallers(t *testing.T) {
	engine := NewEngine()
	in := Input{Project: testProject(domain.StageCreation), Folders: testFolders(), Files: []domain.FileInfo{{Name: "a.png"}, {Name: "a.png"}}}

	first, err := engine.Build(in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	want, _ := json.Marshal(first.Recommendations)

	first.Recommendations[0].Confidence = 1
	first.Recommendations[0].Alternatives[0].Folder = "changed"
	first.Recommendations[0].ConfidenceFactors[0] = "changed"
	first.BatchOptimization.Groups[0].Files[0] = "changed"
	first.ConflictResolution.DuplicateNames = append(first.ConflictResolution.DuplicateNames[:0], "changed")

	second, _ := engine.Build(in)
	if !second.FromCache {
		t.Fatalf("expected cached build")
	}
	got, _ := json.Marshal(second.Recommendations)
	if string(got) != string(want) {
		t.Fatalf("cached recommendations changed:\n%s\n%s", want, got)
	}
	if second.BatchOptimization.Groups[0].Files[0] != "a.png" || second.ConflictResolution.DuplicateNames[0] != "a.png" {
		t.Fatalf("cached batch data changed: %+v %+v", second.BatchOptimization, second.ConflictResolution)
	}

	second.Recommendations[0].Confidence = 2
	third, _ := engine.Build(in)
	if third.Recommendations[0].Confidence == 2 {
		t.Fatalf("cache hit shares state with a previous hit")
	}
}

func TestBuildCacheRootPathFollowsClockWithoutCreatedAt(t *testing.T) {
	now := time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC)
	engine := NewEngine(WithClock(func() time.Time { return now }))
	project := testProject(domain.StageCreation)
	project.CreatedAt = time.Time{}
	in := Input{Project: project, Folders: testFolders(), Files: []domain.FileInfo{{Name: "a.png"}}}

	first, _ := engine.Build(in)
	now = now.Add(2 * time.Hour)
	second, _ := engine.Build(in)

	if first.FolderStructure.RootPath != "/P-2025-06-01-Acme-Spring-Launch" {
		t.Fatalf("unexpected root path %q", first.FolderStructure.RootPath)
	}
	if second.FromCache || second.FolderStructure.RootPath != "/P-2025-06-02-Acme-Spring-Launch" {
		t.Fatalf("expected fresh build for the new day, got fromCache=%v rootPath=%q", second.FromCache, second.FolderStructure.RootPath)
	}
}

func TestBuildCacheIsBounded(t *testing.T) {
	engine := NewEngine(WithCacheSize(2))
	for i := 0; i < 5; i++ {
		_, err := engine.Build(Input{Project: testProject(domain.StageCreation), Files: []domain.FileInfo{{Name: fmt.Sprintf("%d.png", i)}}})
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
	}
	if engine.cache.len() != 2 {
		t.Fatalf("expected 2 cached entries, got %d", engine.cache.len())
	}
}

func TestLargeBatchPerformance(t *testing.T) {
	files := make([]domain.FileInfo, 5000)
	for i := range files {
		files[i] = domain.FileInfo{Name: fmt.Sprintf("asset-%d.jpg", i), Size: int64(i) * 1024}
	}
	start := time.Now()
	res, err := NewEngine().Build(Input{Project: testProject(domain.StageCreation), Folders: testFolders(), Files: files})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("build took %v", elapsed)
	}
	if len(res.Recommendations) != len(files) {
		t.Fatalf("expected %d recommendations, got %d", len(files), len(res.Recommendations))
	}
}

func containsFactor(factors []string, want string) bool {
	for _, f := range factors {
		if f == want {
			return true
		}
	}
	return false
}
