package mcpadapter

import "github.com/mark3labs/mcp-go/mcp"

var objectItems = map[string]any{"type": "object"}

func resolveStoragePathTool() mcp.Tool {
	return mcp.NewTool("resolve_storage_path",
		mcp.WithDescription("Resolve the storage path of an upload from its campaign and project context."),
		mcp.WithString("organizationId", mcp.Required(), mcp.Description("Owning organization")),
		mcp.WithString("userId", mcp.Description("Uploading user")),
		mcp.WithString("campaignId", mcp.Description("Campaign the file belongs to")),
		mcp.WithString("campaignName", mcp.Description("Campaign display name")),
		mcp.WithString("selectedProjectId", mcp.Description("Project selected for organized storage")),
		mcp.WithString("selectedProjectName", mcp.Description("Project display name")),
		mcp.WithString("pipelineStage", mcp.Description("Pipeline stage, e.g. creation")),
		mcp.WithString("uploadType", mcp.Description("hero-image, attachment, generated-content or boilerplate-asset")),
		mcp.WithString("fileName", mcp.Required(), mcp.Description("Original file name")),
	)
}

func recommendFoldersTool() mcp.Tool {
	return mcp.NewTool("recommend_folders",
		mcp.WithDescription("Recommend target folders for files uploaded into a project."),
		mcp.WithObject("project", mcp.Required(), mcp.Description("Project with id, title, organizationId, clientId, currentStage, company")),
		mcp.WithArray("folders", mcp.Description("Project folders with id, name, kind, organizationId"), mcp.Items(objectItems)),
		mcp.WithArray("files", mcp.Required(), mcp.Description("Files with name, size, mimeType"), mcp.Items(objectItems)),
	)
}

func isFeatureEnabledTool() mcp.Tool {
	return mcp.NewTool("is_feature_enabled",
		mcp.WithDescription("Evaluate one feature flag for a user and organization."),
		mcp.WithString("feature", mcp.Required(), mcp.Description("Flag name, e.g. use_smart_router")),
		mcp.WithString("organizationId"),
		mcp.WithString("userId"),
		mcp.WithString("environment", mcp.Enum("development", "staging", "production")),
		mcp.WithString("userRole"),
		mcp.WithBoolean("betaUser"),
	)
}

func handleUploadErrorTool() mcp.Tool {
	return mcp.NewTool("handle_upload_error",
		mcp.WithDescription("Classify an upload error and return the recovery decision."),
		mcp.WithString("category", mcp.Required(), mcp.Enum("validation", "network", "permissions", "storage", "smart_router")),
		mcp.WithString("code", mcp.Required(), mcp.Description("Error code, e.g. CONNECTION_TIMEOUT")),
		mcp.WithString("message"),
		mcp.WithObject("details", mcp.Description("Category specific details")),
	)
}

func sanitizeFileNameTool() mcp.Tool {
	return mcp.NewTool("sanitize_file_name",
		mcp.WithDescription("Return a storage safe version of a file name."),
		mcp.WithString("name", mcp.Required()),
	)
}
