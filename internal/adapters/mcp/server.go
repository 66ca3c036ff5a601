package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
	"github.com/kirillkom/media-upload-router/internal/core/flags"
	"github.com/kirillkom/media-upload-router/internal/core/pathcontext"
	"github.com/kirillkom/media-upload-router/internal/core/recommend"
	"github.com/kirillkom/media-upload-router/internal/core/recovery"
)

const serverName = "media-upload-router"

type contextResolver interface {
	BuildCampaignContext(in pathcontext.Input) (domain.UploadContext, domain.StorageConfig, error)
	ValidateContext(ctx domain.UploadContext) pathcontext.ValidationResult
	ResolveStoragePath(ctx domain.UploadContext, filename string) string
}

type folderRecommender interface {
	Build(in recommend.Input) (recommend.Result, error)
}

type flagEvaluator interface {
	Evaluate(ctx context.Context, feature string, fc domain.FeatureFlagContext) flags.Decision
}

type errorHandler interface {
	HandleError(ctx context.Context, err error, opts recovery.HandleOptions) domain.RecoveryDecision
}

type Dependencies struct {
	Resolver    contextResolver
	Recommender folderRecommender
	Flags       flagEvaluator
	Recovery    errorHandler
}

// Server exposes the routing decisions as MCP tools.
type Server struct {
	deps Dependencies
	mcp  *server.MCPServer
}

func New(deps Dependencies, version string) *Server {
	s := &Server{
		deps: deps,
		mcp:  server.NewMCPServer(serverName, version, server.WithToolCapabilities(false), server.WithRecovery()),
	}
	s.registerTools()
	return s
}

func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// ServeStdio blocks until stdin is closed.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(resolveStoragePathTool(), s.resolveStoragePath)
	s.mcp.AddTool(recommendFoldersTool(), s.recommendFolders)
	s.mcp.AddTool(isFeatureEnabledTool(), s.isFeatureEnabled)
	s.mcp.AddTool(handleUploadErrorTool(), s.handleUploadError)
	s.mcp.AddTool(sanitizeFileNameTool(), s.sanitizeFileName)
}

func (s *Server) resolveStoragePath(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fileName, err := req.RequireString("fileName")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var in pathcontext.Input
	if err := req.BindArguments(&in); err != nil {
		return mcp.NewToolResultError("invalid arguments: " + err.Error()), nil
	}

	uploadCtx, cfg, err := s.deps.Resolver.BuildCampaignContext(in)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	validation := s.deps.Resolver.ValidateContext(uploadCtx)
	if validation.SecurityViolation {
		return mcp.NewToolResultError("cross-organizational access denied"), nil
	}
	return jsonResult(map[string]any{
		"path":          s.deps.Resolver.ResolveStoragePath(uploadCtx, fileName),
		"storageConfig": cfg,
		"autoTags":      uploadCtx.AutoTags,
		"validation":    validation,
	})
}

func (s *Server) recommendFolders(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var in recommend.Input
	if err := req.BindArguments(&in); err != nil {
		return mcp.NewToolResultError("invalid arguments: " + err.Error()), nil
	}
	result, err := s.deps.Recommender.Build(in)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

func (s *Server) isFeatureEnabled(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	feature, err := req.RequireString("feature")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	fc := domain.FeatureFlagContext{
		OrganizationID: req.GetString("organizationId", ""),
		UserID:         req.GetString("userId", ""),
		Environment:    domain.Environment(req.GetString("environment", "")),
		UserRole:       req.GetString("userRole", ""),
		BetaUser:       req.GetBool("betaUser", false),
	}
	return jsonResult(s.deps.Flags.Evaluate(ctx, feature, fc))
}

func (s *Server) handleUploadError(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(req.GetArguments())
	if err != nil {
		return mcp.NewToolResultError("invalid arguments: " + err.Error()), nil
	}
	var ue domain.UploadError
	if err := json.Unmarshal(raw, &ue); err != nil {
		return mcp.NewToolResultError("invalid upload error: " + err.Error()), nil
	}
	if ue.Code == "" {
		return mcp.NewToolResultError("code is required"), nil
	}
	return jsonResult(s.deps.Recovery.HandleError(ctx, &ue, recovery.HandleOptions{}))
}

func (s *Server) sanitizeFileName(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(pathcontext.SanitizeFileName(name)), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("mcp_result_encode_failed", "error", err)
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
