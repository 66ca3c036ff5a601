package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
	"github.com/kirillkom/media-upload-router/internal/core/pathcontext"
	"github.com/kirillkom/media-upload-router/internal/core/recovery"
	"github.com/kirillkom/media-upload-router/internal/infrastructure/flagcatalog"
)

func newPathCommand(ctx *commandContext) *cobra.Command {
	var in pathcontext.Input

	cmd := &cobra.Command{
		Use:   "path <file-name>",
		Short: "Resolve the storage path for a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := ctx.ensureCore()
			if err != nil {
				return err
			}
			uploadCtx, storageCfg, err := core.Resolver.BuildCampaignContext(in)
			if err != nil {
				return err
			}
			validation := core.Resolver.ValidateContext(uploadCtx)
			path := core.Resolver.ResolveStoragePath(uploadCtx, args[0])

			if ctx.jsonOutput {
				return writeJSON(cmd, map[string]any{
					"path":          path,
					"storageConfig": storageCfg,
					"autoTags":      uploadCtx.AutoTags,
					"validation":    validation,
				})
			}

			rows := [][]string{
				{"path", path},
				{"storage type", string(storageCfg.StorageType)},
				{"organized", strconv.FormatBool(storageCfg.IsOrganized)},
				{"tags", strings.Join(uploadCtx.AutoTags, ", ")},
				{"valid", strconv.FormatBool(validation.IsValid)},
			}
			for _, msg := range validation.Errors {
				rows = append(rows, []string{"error", msg})
			}
			for _, msg := range validation.Warnings {
				rows = append(rows, []string{"warning", msg})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil, shouldColorize(cmd.OutOrStdout())))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&in.OrganizationID, "org", "", "Organization id")
	flags.StringVar(&in.UserID, "user", "", "Uploading user id")
	flags.StringVar(&in.CampaignID, "campaign", "", "Campaign id")
	flags.StringVar(&in.CampaignName, "campaign-name", "", "Campaign name")
	flags.StringVar(&in.SelectedProjectID, "project", "", "Selected project id")
	flags.StringVar(&in.SelectedProjectName, "project-name", "", "Selected project name")
	flags.StringVar(&in.PipelineStage, "stage", "", "Pipeline stage")
	flags.StringVar(&in.UploadType, "type", "attachment", "Upload type")
	flags.StringSliceVar(&in.AutoTags, "tag", nil, "Extra tag, repeatable")
	return cmd
}

func newFlagsCommand(ctx *commandContext) *cobra.Command {
	var (
		fc          domain.FeatureFlagContext
		environment string
	)

	cmd := &cobra.Command{
		Use:   "flags [feature...]",
		Short: "Evaluate feature flags for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := ctx.ensureCore()
			if err != nil {
				return err
			}
			fc.Environment = domain.Environment(environment)

			decisions := core.Flags.EvaluateAll(cmd.Context(), fc)
			if len(args) > 0 {
				selected := make(map[string]bool, len(args))
				for _, name := range args {
					d := core.Flags.Evaluate(cmd.Context(), name, fc)
					selected[d.Feature] = true
					decisions[d.Feature] = d
				}
				for name := range decisions {
					if !selected[name] {
						delete(decisions, name)
					}
				}
			}

			if ctx.jsonOutput {
				return writeJSON(cmd, decisions)
			}

			names := make([]string, 0, len(decisions))
			for name := range decisions {
				names = append(names, name)
			}
			sort.Strings(names)
			rows := make([][]string, 0, len(names))
			for _, name := range names {
				d := decisions[name]
				rows = append(rows, []string{name, strconv.FormatBool(d.Enabled), d.Reason, strings.Join(d.MissingDependencies, ", ")})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Feature", "Enabled", "Reason", "Missing"}, rows, nil, shouldColorize(cmd.OutOrStdout()),
			))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&fc.OrganizationID, "org", "", "Organization id")
	flags.StringVar(&fc.UserID, "user", "", "User id")
	flags.StringVar(&fc.UserRole, "role", "", "User role")
	flags.BoolVar(&fc.BetaUser, "beta", false, "Treat the user as a beta tester")
	flags.StringVar(&environment, "env", "", "Environment: development, staging or production")
	return cmd
}

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Flag catalog utilities",
	}

	catalogCmd.AddCommand(&cobra.Command{
		Use:   "validate [path]",
		Short: "Check a flag catalog for unknown dependencies, cycles and bad tiers",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ctx.catalogPath
			if len(args) == 1 {
				path = args[0]
			}
			catalog, err := flagcatalog.Load(path)
			if err != nil {
				return err
			}

			groups := catalog.Groups()
			names := make([]string, 0, len(groups))
			for name := range groups {
				names = append(names, name)
			}
			sort.Strings(names)
			rows := make([][]string, 0, len(names))
			for _, name := range names {
				rows = append(rows, []string{name, strconv.Itoa(len(groups[name])), strings.Join(groups[name], ", ")})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Catalog valid: %d flags\n", len(catalog.Flags))
			fmt.Fprintln(out, renderTable([]string{"Group", "Count", "Flags"}, rows, []columnAlignment{alignLeft, alignRight}, shouldColorize(out)))
			return nil
		},
	})

	return catalogCmd
}

func newSanitizeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sanitize <name>...",
		Short: "Print storage safe file names",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range args {
				fmt.Fprintln(cmd.OutOrStdout(), pathcontext.SanitizeFileName(name))
			}
			return nil
		},
	}
}

func newRecoverCommand(ctx *commandContext) *cobra.Command {
	var (
		category string
		details  string
		message  string
	)

	cmd := &cobra.Command{
		Use:   "recover <code>",
		Short: "Show the recovery decision for an upload error",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			core, err := ctx.ensureCore()
			if err != nil {
				return err
			}

			raw := map[string]any{"category": category, "code": args[0], "message": message}
			if details != "" {
				var parsed map[string]any
				if err := json.Unmarshal([]byte(details), &parsed); err != nil {
					return fmt.Errorf("parse --details: %w", err)
				}
				raw["details"] = parsed
			}
			data, err := json.Marshal(raw)
			if err != nil {
				return err
			}
			var ue domain.UploadError
			if err := json.Unmarshal(data, &ue); err != nil {
				return fmt.Errorf("invalid upload error: %w", err)
			}

			decision := core.Recovery.HandleError(cmd.Context(), &ue, recovery.HandleOptions{})
			if ctx.jsonOutput {
				return writeJSON(cmd, decision)
			}

			rows := [][]string{
				{"error", ue.Key()},
				{"severity", string(decision.Severity)},
				{"can recover", strconv.FormatBool(decision.CanRecover)},
				{"strategy", decision.Strategy},
				{"message", decision.UserMessage},
			}
			if decision.Retry != nil {
				rows = append(rows, []string{"max retries", strconv.Itoa(decision.Retry.MaxRetries)})
			}
			for _, action := range decision.SuggestedActions {
				rows = append(rows, []string{"action", action})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil, shouldColorize(cmd.OutOrStdout())))
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Error category: validation, network, permissions, storage or smart_router")
	cmd.Flags().StringVar(&details, "details", "", "Category specific details as JSON")
	cmd.Flags().StringVar(&message, "message", "", "Internal error message")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}
