package recovery

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
)

type BatchItem struct {
	FileName string `json:"fileName"`
	Size     int64  `json:"size,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

type FailedUpload struct {
	FileName  string               `json:"fileName"`
	Category  domain.ErrorCategory `json:"category"`
	Code      string               `json:"code"`
	Retryable bool                 `json:"retryable"`
	Strategy  string               `json:"strategy"`
	Message   string               `json:"userMessage"`
}

type BatchRecovery struct {
	RetryableFiles []string `json:"retryableFiles"`
}

type BatchResult struct {
	PartialSuccess    bool           `json:"partialSuccess"`
	TotalFiles        int            `json:"totalFiles"`
	SuccessfulUploads []string       `json:"successfulUploads"`
	FailedUploads     []FailedUpload `json:"failedUploads"`
	Recovery          BatchRecovery  `json:"recovery"`
}

// BatchOutcome is the per-file result fed into Summarize.
type BatchOutcome struct {
	FileName string
	Err      error
}

// HandleBatch uploads every item independently with bounded concurrency.
// One failure never cancels the others.
func (s *Supervisor) HandleBatch(
	ctx context.Context,
	items []BatchItem,
	upload func(ctx context.Context, item BatchItem) error,
	opts HandleOptions,
) BatchResult {
	outcomes := make([]BatchOutcome, len(items))

	var g errgroup.Group
	g.SetLimit(s.cfg.BatchConcurrency)
	for i, item := range items {
		g.Go(func() error {
			outcomes[i] = BatchOutcome{FileName: item.FileName, Err: upload(ctx, item)}
			return nil
		})
	}
	_ = g.Wait()

	return s.Summarize(ctx, outcomes, opts)
}

// Summarize aggregates already finished uploads, in input order.
func (s *Supervisor) Summarize(ctx context.Context, outcomes []BatchOutcome, opts HandleOptions) BatchResult {
	result := BatchResult{
		TotalFiles:        len(outcomes),
		SuccessfulUploads: []string{},
		FailedUploads:     []FailedUpload{},
		Recovery:          BatchRecovery{RetryableFiles: []string{}},
	}

	for _, outcome := range outcomes {
		if outcome.Err == nil {
			result.SuccessfulUploads = append(result.SuccessfulUploads, outcome.FileName)
			continue
		}
		decision := s.HandleError(ctx, outcome.Err, HandleOptions{FlagContext: opts.FlagContext})
		failed := FailedUpload{
			FileName:  outcome.FileName,
			Category:  decision.Category,
			Code:      decision.Code,
			Retryable: decision.Retryable(),
			Strategy:  decision.Strategy,
			Message:   decision.UserMessage,
		}
		result.FailedUploads = append(result.FailedUploads, failed)
		if failed.Retryable {
			result.Recovery.RetryableFiles = append(result.Recovery.RetryableFiles, outcome.FileName)
		}
	}
	result.PartialSuccess = len(result.SuccessfulUploads) > 0 && len(result.FailedUploads) > 0
	return result
}
