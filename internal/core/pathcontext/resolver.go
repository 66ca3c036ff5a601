package pathcontext

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
)

type NamingConvention string

const (
	NamingTimestamp NamingConvention = "timestamp"
	NamingCampaign  NamingConvention = "campaign"
	NamingProject   NamingConvention = "project"
	NamingOriginal  NamingConvention = "original"
)

// Input is the raw upload request. Every field may be empty.
type Input struct {
	OrganizationID           string   `json:"organizationId"`
	UserID                   string   `json:"userId"`
	CampaignID               string   `json:"campaignId"`
	CampaignName             string   `json:"campaignName,omitempty"`
	SelectedProjectID        string   `json:"selectedProjectId,omitempty"`
	SelectedProjectName      string   `json:"selectedProjectName,omitempty"`
	ClientID                 string   `json:"clientId,omitempty"`
	ProjectClientID          string   `json:"projectClientId,omitempty"`
	PipelineStage            string   `json:"pipelineStage,omitempty"`
	UploadType               string   `json:"uploadType"`
	SubType                  string   `json:"subType,omitempty"`
	AutoTags                 []string `json:"autoTags,omitempty"`
	MigrationMode            bool     `json:"migrationMode,omitempty"`
	RequestingOrganizationID string   `json:"requestingOrganizationId,omitempty"`
}

// Observer is notified about every successfully built context.
type Observer interface {
	ObserveContextBuild(storageType domain.StorageType)
}

type Option func(*Resolver)

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

func WithNaming(naming NamingConvention) Option {
	return func(r *Resolver) {
		if naming != "" {
			r.naming = naming
		}
	}
}

func WithObserver(observer Observer) Option {
	return func(r *Resolver) {
		r.observer = observer
	}
}

// Resolver turns raw upload requests into canonical contexts and storage
// paths. It holds no mutable state and is safe for concurrent use.
type Resolver struct {
	now      func() time.Time
	naming   NamingConvention
	observer Observer
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		now:    time.Now,
		naming: NamingTimestamp,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var stageLabels = map[domain.PipelineStage]string{
	domain.StageIdeasPlanning:    "Ideas-Planning",
	domain.StageCreation:         "Creation",
	domain.StageInternalApproval: "Internal-Approval",
	domain.StageCustomerApproval: "Customer-Approval",
	domain.StageDistribution:     "Distribution",
	domain.StageMonitoring:       "Monitoring",
}

// BuildContext is the single defaulting boundary: missing optional fields
// become empty strings, only an unrecognised upload type is rejected.
func (r *Resolver) BuildContext(in Input) (domain.UploadContext, error) {
	uploadType := domain.UploadType(strings.ToLower(strings.TrimSpace(in.UploadType)))
	if uploadType != "" && !uploadType.Valid() {
		return domain.UploadContext{}, domain.WrapError(
			domain.ErrInvalidUploadType,
			"build context",
			fmt.Errorf("unsupported upload type %q", in.UploadType),
		)
	}

	ctx := domain.UploadContext{
		OrganizationID:           strings.TrimSpace(in.OrganizationID),
		UserID:                   strings.TrimSpace(in.UserID),
		CampaignID:               strings.TrimSpace(in.CampaignID),
		CampaignName:             strings.TrimSpace(in.CampaignName),
		SelectedProjectID:        strings.TrimSpace(in.SelectedProjectID),
		SelectedProjectName:      strings.TrimSpace(in.SelectedProjectName),
		PipelineStage:            normalizeStage(in.PipelineStage),
		UploadType:               uploadType,
		SubType:                  strings.TrimSpace(in.SubType),
		RequestingOrganizationID: strings.TrimSpace(in.RequestingOrganizationID),
	}
	ctx.IsHybridStorage = ctx.SelectedProjectID != ""

	explicitClient := strings.TrimSpace(in.ClientID)
	projectClient := strings.TrimSpace(in.ProjectClientID)
	ctx.InheritedClientID = projectClient
	ctx.ClientID = explicitClient
	if ctx.ClientID == "" {
		ctx.ClientID = projectClient
	}

	if in.MigrationMode && ctx.IsHybridStorage {
		ctx.MigrationInfo = &domain.MigrationInfo{
			FromStorage:            domain.StorageUnorganized,
			ToStorage:              domain.StorageOrganized,
			RequiresAssetMigration: true,
			OldPath:                unorganizedPrefix(ctx),
			NewPath:                organizedPrefix(ctx),
		}
	}

	ctx.AutoTags = buildTags(in.AutoTags, ctx)

	if r.observer != nil {
		r.observer.ObserveContextBuild(storageTypeOf(ctx))
	}
	return ctx, nil
}

// BuildCampaignContext builds the context together with its storage config.
func (r *Resolver) BuildCampaignContext(in Input) (domain.UploadContext, domain.StorageConfig, error) {
	ctx, err := r.BuildContext(in)
	if err != nil {
		return domain.UploadContext{}, domain.StorageConfig{}, err
	}
	return ctx, r.BuildStorageConfig(ctx), nil
}

type ValidationResult struct {
	IsValid           bool     `json:"isValid"`
	Errors            []string `json:"errors"`
	Warnings          []string `json:"warnings"`
	SecurityViolation bool     `json:"securityViolation"`
}

func (r *Resolver) ValidateContext(ctx domain.UploadContext) ValidationResult {
	res := ValidationResult{Errors: []string{}, Warnings: []string{}}

	if ctx.OrganizationID == "" {
		res.Errors = append(res.Errors, "organizationId is required")
	}
	if ctx.UserID == "" {
		res.Errors = append(res.Errors, "userId is required")
	}
	if ctx.CampaignID == "" {
		res.Errors = append(res.Errors, "campaignId is required")
	}
	switch {
	case ctx.UploadType == "":
		res.Errors = append(res.Errors, "uploadType is required")
	case !ctx.UploadType.Valid():
		res.Errors = append(res.Errors, "uploadType is invalid")
	}
	if ctx.RequestingOrganizationID != "" && ctx.OrganizationID != "" &&
		ctx.RequestingOrganizationID != ctx.OrganizationID {
		res.Errors = append(res.Errors, "cross-organizational access denied")
		res.SecurityViolation = true
	}

	if ctx.IsHybridStorage && ctx.SelectedProjectName == "" {
		res.Warnings = append(res.Warnings, "selected project has no name, project id is used as folder name")
	}
	if ctx.PipelineStage != "" && !ctx.PipelineStage.Known() {
		res.Warnings = append(res.Warnings, fmt.Sprintf("unknown pipeline stage %q", ctx.PipelineStage))
	}

	res.IsValid = len(res.Errors) == 0
	return res
}

func (r *Resolver) BuildStorageConfig(ctx domain.UploadContext) domain.StorageConfig {
	cfg := domain.StorageConfig{
		BasePath: basePath(ctx.OrganizationID),
	}

	var parts []string
	if ctx.IsHybridStorage {
		cfg.IsOrganized = true
		cfg.StorageType = domain.StorageOrganized
		parts = append(parts, organizedPrefix(ctx))
		if label := stageLabel(ctx.PipelineStage); label != "" {
			parts = append(parts, label)
			cfg.PipelineIntegration = true
		}
	} else {
		cfg.StorageType = domain.StorageUnorganized
		parts = append(parts, unorganizedPrefix(ctx))
	}
	if folder := ctx.UploadType.Folder(); folder != "" {
		parts = append(parts, folder)
	}
	cfg.SubPath = strings.Join(parts, "/")
	return cfg
}

// ResolveStoragePath returns the full object path for filename using the
// resolver's naming convention.
func (r *Resolver) ResolveStoragePath(ctx domain.UploadContext, filename string) string {
	cfg := r.BuildStorageConfig(ctx)
	return cfg.FullPath() + "/" + r.objectName(ctx, filename)
}

// LegacyPath is the flat layout used when smart routing is switched off.
func (r *Resolver) LegacyPath(organizationID, filename string) string {
	return fmt.Sprintf("%s/Unassigned/%d_%s", basePath(organizationID), r.now().UnixMilli(), SanitizeFileName(filename))
}

func (r *Resolver) objectName(ctx domain.UploadContext, filename string) string {
	safe := SanitizeFileName(filename)
	millis := r.now().UnixMilli()

	var name string
	switch r.naming {
	case NamingOriginal:
		name = safe
	case NamingCampaign:
		name = fmt.Sprintf("%s_%d_%s", segment(ctx.CampaignID, "campaign"), millis, safe)
	case NamingProject:
		owner := ctx.SelectedProjectID
		if owner == "" {
			owner = ctx.CampaignID
		}
		name = fmt.Sprintf("%s_%d_%s", segment(owner, "project"), millis, safe)
	default:
		name = fmt.Sprintf("%d_%s", millis, safe)
	}
	return clampBytes(name, maxFileNameBytes)
}

func basePath(organizationID string) string {
	return "organizations/" + segment(organizationID, "unknown-organization") + "/media"
}

func organizedPrefix(ctx domain.UploadContext) string {
	project := ctx.SelectedProjectName
	if project == "" {
		project = ctx.SelectedProjectID
	}
	return "Projects/" + segment(project, "Project") + "/Campaigns/" + campaignSegment(ctx)
}

func unorganizedPrefix(ctx domain.UploadContext) string {
	return "Unassigned/Campaigns/" + campaignSegment(ctx)
}

// campaignSegment always embeds the campaign id so two campaigns with the
// same display name never share a folder.
func campaignSegment(ctx domain.UploadContext) string {
	name := segment(ctx.CampaignName, "")
	if ctx.CampaignID == "" {
		if name == "" {
			return "Campaign"
		}
		return name
	}
	id := segment(ctx.CampaignID, "")
	if id != ctx.CampaignID {
		id = fmt.Sprintf("%s-%08x", id, shortHash(ctx.CampaignID))
	}
	if name == "" {
		return "Campaign-" + id
	}
	return name + "-" + id
}

func shortHash(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

func stageLabel(stage domain.PipelineStage) string {
	if stage == "" {
		return ""
	}
	if label, ok := stageLabels[stage]; ok {
		return label
	}
	words := strings.Fields(strings.ReplaceAll(string(stage), "_", " "))
	title := cases.Title(language.Und)
	for i, w := range words {
		words[i] = title.String(w)
	}
	return segment(strings.Join(words, "-"), "")
}

func normalizeStage(raw string) domain.PipelineStage {
	stage := strings.ToLower(strings.TrimSpace(raw))
	stage = strings.NewReplacer("-", "_", " ", "_").Replace(stage)
	return domain.PipelineStage(stage)
}

func storageTypeOf(ctx domain.UploadContext) domain.StorageType {
	if ctx.IsHybridStorage {
		return domain.StorageOrganized
	}
	return domain.StorageUnorganized
}

func buildTags(callerTags []string, ctx domain.UploadContext) []string {
	tags := make([]string, 0, len(callerTags)+8)
	seen := make(map[string]struct{}, cap(tags))
	add := func(tag string) {
		tag = strings.TrimSpace(tag)
		if tag == "" || strings.HasSuffix(tag, ":") {
			return
		}
		if _, ok := seen[tag]; ok {
			return
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}

	for _, tag := range callerTags {
		add(tag)
	}
	add("org:" + ctx.OrganizationID)
	add("campaign:" + ctx.CampaignID)
	add("project:" + ctx.SelectedProjectID)
	add("storage:" + string(storageTypeOf(ctx)))
	add("upload-type:" + string(ctx.UploadType))
	add("stage:" + string(ctx.PipelineStage))
	add("client:" + ctx.ClientID)
	return tags
}
