package recommend

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
	"github.com/kirillkom/media-upload-router/internal/core/pathcontext"
)

const (
	scorePrefixMatch   = 95
	scoreCombinedMatch = 92
	scoreConflict      = 65
	scorePhaseMissing  = 60
	scorePhaseOnly     = 40
	scoreNoSignal      = 25
	scoreAltPhase      = 55
	scoreAltOther      = 30

	AutoAcceptThreshold = 90
	ReviewThreshold     = 70
)

type Input struct {
	Project domain.Project    `json:"project"`
	Folders []domain.Folder   `json:"folders"`
	Files   []domain.FileInfo `json:"files"`
}

type FolderStructure struct {
	Pattern  string `json:"pattern"`
	RootPath string `json:"rootPath"`
}

type ConflictResolution struct {
	DuplicateNames []string `json:"duplicateNames"`
	Strategy       string   `json:"strategy"`
}

type ProgressTracking struct {
	TotalFiles          int    `json:"totalFiles"`
	TrackingGranularity string `json:"trackingGranularity"`
	Chunks              int    `json:"chunks"`
}

type PerformanceWarning struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	FileCount int    `json:"fileCount"`
	ChunkSize int    `json:"chunkSize"`
}

type Result struct {
	Recommendations     []domain.FolderRecommendation `json:"recommendations"`
	BatchOptimization   BatchOptimization             `json:"batchOptimization"`
	MissingFolders      []domain.FolderKind           `json:"missingFolders"`
	FolderStructure     FolderStructure               `json:"folderStructure"`
	ConflictResolution  ConflictResolution            `json:"conflictResolution"`
	ProgressTracking    ProgressTracking              `json:"progressTracking"`
	PerformanceWarnings []PerformanceWarning          `json:"performanceWarnings"`
	HasValidContext     bool                          `json:"hasValidContext"`
	FromCache           bool                          `json:"fromCache"`
}

// Observer receives per-recommendation confidence and cache hits.
type Observer interface {
	ObserveRecommendation(confidence float64)
	ObserveCacheHit(cache string)
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithCacheSize(size int) Option {
	return func(e *Engine) {
		e.cache = newBuildCache(size)
	}
}

func WithObserver(observer Observer) Option {
	return func(e *Engine) {
		e.observer = observer
	}
}

// Engine scores destination folders for uploaded files. It is safe for
// concurrent use; the only shared state is the bounded build cache.
type Engine struct {
	now      func() time.Time
	cache    *buildCache
	observer Observer
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		now:   time.Now,
		cache: newBuildCache(defaultCacheSize),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Build recommends a folder for every file. A folder owned by another
// organization fails the whole build.
func (e *Engine) Build(in Input) (Result, error) {
	orgID := strings.TrimSpace(in.Project.OrganizationID)
	if orgID == "" {
		return Result{}, domain.WrapError(domain.ErrInvalidInput, "build recommendations", fmt.Errorf("project organizationId is required"))
	}
	for _, folder := range in.Folders {
		if folder.OrganizationID != "" && folder.OrganizationID != orgID {
			return Result{}, domain.WrapError(
				domain.ErrCrossTenantAccess,
				"build recommendations",
				fmt.Errorf("folder %s belongs to another organization", folder.ID),
			)
		}
	}

	keyInput := in
	if keyInput.Project.CreatedAt.IsZero() {
		// The root path falls back to today's date, so the key must change daily.
		keyInput.Project.CreatedAt = e.now().UTC().Truncate(24 * time.Hour)
	}
	key, keyErr := cacheKey(keyInput)
	if keyErr == nil {
		if cached, ok := e.cache.get(key); ok {
			if e.observer != nil {
				e.observer.ObserveCacheHit("recommendations")
			}
			cached.FromCache = true
			return cached, nil
		}
	}

	result := e.build(in, orgID)
	if keyErr == nil {
		e.cache.put(key, result)
	}
	return result, nil
}

// ClearCache drops every memoized build.
func (e *Engine) ClearCache() {
	e.cache.clear()
}

func (e *Engine) build(in Input, orgID string) Result {
	folders := indexFolders(in.Folders)
	structure := e.folderStructure(in.Project)

	recs := make([]domain.FolderRecommendation, 0, len(in.Files))
	for _, file := range in.Files {
		rec := score(in.Project, file, folders)
		rec.OrganizationID = orgID
		rec.SecurityContext = domain.SecurityContext{TenantIsolation: true, OrganizationID: orgID}
		rec.InheritedClientID = in.Project.ClientID
		rec.FolderPath = structure.RootPath + "/" + rec.FolderName
		recs = append(recs, rec)
		if e.observer != nil {
			e.observer.ObserveRecommendation(rec.Confidence)
		}
	}

	conflicts := resolveConflicts(recs)
	batch, warnings := optimizeBatch(in.Files, recs)

	missing := make([]domain.FolderKind, 0, 3)
	for _, kind := range domain.RequiredFolderKinds() {
		if _, ok := folders[kind]; !ok {
			missing = append(missing, kind)
		}
	}

	return Result{
		Recommendations:    recs,
		BatchOptimization:  batch,
		MissingFolders:     missing,
		FolderStructure:    structure,
		ConflictResolution: conflicts,
		ProgressTracking: ProgressTracking{
			TotalFiles:          len(in.Files),
			TrackingGranularity: "per_file",
			Chunks:              len(batch.Chunks),
		},
		PerformanceWarnings: warnings,
		HasValidContext:     len(in.Files) > 0,
	}
}

func indexFolders(folders []domain.Folder) map[domain.FolderKind]domain.Folder {
	out := make(map[domain.FolderKind]domain.Folder, len(folders))
	for _, folder := range folders {
		kind, ok := inferFolderKind(folder)
		if !ok {
			continue
		}
		if _, exists := out[kind]; exists {
			continue
		}
		folder.Kind = kind
		out[kind] = folder
	}
	return out
}

func score(project domain.Project, file domain.FileInfo, folders map[domain.FolderKind]domain.Folder) domain.FolderRecommendation {
	phaseKind, hasPhase := phaseAffinity[project.CurrentStage]
	signal := classifyFile(file)

	rec := domain.FolderRecommendation{FileName: file.Name}
	var target domain.FolderKind
	var confidence float64

	switch {
	case signal.prefix:
		target = domain.FolderPressReleases
		confidence = scorePrefixMatch
		rec.Reason = "Filename marks the file as a press release"
		rec.ConfidenceFactors = []string{"filename_prefix_match"}
		if hasPhase && phaseKind == target {
			rec.ConfidenceFactors = append(rec.ConfidenceFactors, "pipeline_phase_match")
		}
	case signal.known && hasPhase && signal.kind == phaseKind:
		target = signal.kind
		confidence = scoreCombinedMatch
		rec.Reason = fmt.Sprintf("File type and pipeline phase both point to %s", defaultFolderName(target))
		rec.ConfidenceFactors = []string{"pipeline_phase_match", "file_type_match"}
	case signal.known && hasPhase:
		target = signal.kind
		confidence = scoreConflict
		rec.Reason = fmt.Sprintf("File type suggests %s, pipeline phase suggests %s",
			defaultFolderName(signal.kind), defaultFolderName(phaseKind))
		rec.ConfidenceFactors = []string{"file_type_match", "pipeline_phase_mismatch"}
	case hasPhase:
		target = phaseKind
		confidence = scorePhaseOnly
		rec.Reason = "File type not recognised, folder chosen from pipeline phase"
		rec.ConfidenceFactors = []string{"pipeline_phase_match", "file_type_unknown"}
		rec.RequiresUserSelection = true
	case signal.known:
		target = signal.kind
		confidence = scorePhaseMissing
		rec.Reason = "Pipeline phase not defined"
		rec.ConfidenceFactors = []string{"file_type_match", "pipeline_phase_missing"}
	default:
		target = domain.FolderDocuments
		confidence = scoreNoSignal
		rec.Reason = "Pipeline phase not defined"
		rec.ConfidenceFactors = []string{"pipeline_phase_missing", "file_type_unknown"}
		rec.RequiresUserSelection = true
	}

	rec.Confidence = clamp(confidence)
	rec.AutoAccept = rec.Confidence >= AutoAcceptThreshold
	rec.BelowThreshold = rec.Confidence < ReviewThreshold
	rec.TargetKind = target
	rec.FolderName = defaultFolderName(target)
	if folder, ok := folders[target]; ok {
		rec.TargetFolderID = folder.ID
		rec.FolderName = folder.Name
	}
	rec.Alternatives = alternatives(target, phaseKind, hasPhase, folders)
	return rec
}

func alternatives(target, phaseKind domain.FolderKind, hasPhase bool, folders map[domain.FolderKind]domain.Folder) []domain.Alternative {
	out := make([]domain.Alternative, 0, 2)
	for _, kind := range domain.RequiredFolderKinds() {
		if kind == target {
			continue
		}
		alt := domain.Alternative{
			Folder:     defaultFolderName(kind),
			Confidence: scoreAltOther,
			Reason:     "Alternative folder type",
		}
		if hasPhase && kind == phaseKind {
			alt.Confidence = scoreAltPhase
			alt.Reason = "Matches the current pipeline phase"
		}
		if folder, ok := folders[kind]; ok {
			alt.FolderID = folder.ID
			alt.Folder = folder.Name
		}
		out = append(out, alt)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

func clamp(v float64) float64 {
	v = pathcontext.NormalizeMetric(v)
	if v > 100 {
		return 100
	}
	return v
}

func (e *Engine) folderStructure(project domain.Project) FolderStructure {
	created := project.CreatedAt
	if created.IsZero() {
		created = e.now()
	}
	return FolderStructure{
		Pattern: "P-{date}-{company}-{title}",
		RootPath: fmt.Sprintf("/P-%s-%s-%s",
			created.UTC().Format("2006-01-02"),
			pathPart(project.Company, "Company"),
			pathPart(project.Title, "Project"),
		),
	}
}

func pathPart(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	safe := pathcontext.SanitizeFileName(value)
	return strings.Join(strings.Fields(safe), "-")
}

// resolveConflicts gives every repeated file name inside one target folder
// a numbered suggestion, e.g. "logo (1).png".
func resolveConflicts(recs []domain.FolderRecommendation) ConflictResolution {
	seen := make(map[string]int, len(recs))
	duplicates := make(map[string]struct{})
	for i := range recs {
		key := string(recs[i].TargetKind) + "/" + strings.ToLower(recs[i].FileName)
		n := seen[key]
		seen[key] = n + 1
		if n == 0 {
			continue
		}
		duplicates[recs[i].FileName] = struct{}{}
		ext := path.Ext(recs[i].FileName)
		stem := strings.TrimSuffix(recs[i].FileName, ext)
		recs[i].SuggestedFileName = fmt.Sprintf("%s (%d)%s", stem, n, ext)
	}

	out := ConflictResolution{DuplicateNames: make([]string, 0, len(duplicates)), Strategy: "none"}
	for name := range duplicates {
		out.DuplicateNames = append(out.DuplicateNames, name)
	}
	sort.Strings(out.DuplicateNames)
	if len(out.DuplicateNames) > 0 {
		out.Strategy = "rename_with_suffix"
	}
	return out
}
