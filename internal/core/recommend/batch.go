package recommend

import (
	"fmt"
	"math"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
)

const (
	largeFileThreshold   = 100 << 20
	uploadBytesPerSecond = 2 << 20
	perFileOverheadSec   = 1.0
	largeBatchThreshold  = 100
	batchChunkSize       = 50
)

type BatchOptimization struct {
	Groups             []domain.BatchGroup `json:"groups"`
	Chunks             [][]string          `json:"chunks,omitempty"`
	TotalEstimatedTime float64             `json:"totalEstimatedTime"`
}

func optimizeBatch(files []domain.FileInfo, recs []domain.FolderRecommendation) (BatchOptimization, []PerformanceWarning) {
	type group struct {
		batch   domain.BatchGroup
		seconds []float64
	}
	order := make([]domain.FolderKind, 0, 3)
	groups := make(map[domain.FolderKind]*group, 3)

	for i, file := range files {
		rec := recs[i]
		g, ok := groups[rec.TargetKind]
		if !ok {
			g = &group{batch: domain.BatchGroup{
				TargetFolderID:     rec.TargetFolderID,
				TargetKind:         rec.TargetKind,
				ProcessingStrategy: domain.ProcessParallel,
			}}
			groups[rec.TargetKind] = g
			order = append(order, rec.TargetKind)
		}
		g.batch.Files = append(g.batch.Files, file.Name)
		g.seconds = append(g.seconds, estimateSeconds(file.Size))
		if file.Size >= largeFileThreshold {
			g.batch.ProcessingStrategy = domain.ProcessSequential
		}
	}

	out := BatchOptimization{Groups: make([]domain.BatchGroup, 0, len(order))}
	for _, kind := range order {
		g := groups[kind]
		var total float64
		for _, s := range g.seconds {
			if g.batch.ProcessingStrategy == domain.ProcessSequential {
				total += s
			} else {
				total = math.Max(total, s)
			}
		}
		g.batch.EstimatedTime = round2(total)
		out.TotalEstimatedTime += g.batch.EstimatedTime
		out.Groups = append(out.Groups, g.batch)
	}
	out.TotalEstimatedTime = round2(out.TotalEstimatedTime)

	warnings := []PerformanceWarning{}
	if len(files) > largeBatchThreshold {
		for start := 0; start < len(files); start += batchChunkSize {
			end := min(start+batchChunkSize, len(files))
			chunk := make([]string, 0, end-start)
			for _, file := range files[start:end] {
				chunk = append(chunk, file.Name)
			}
			out.Chunks = append(out.Chunks, chunk)
		}
		warnings = append(warnings, PerformanceWarning{
			Type:      "large_batch_upload",
			Message:   fmt.Sprintf("%d files will be uploaded in chunks of %d", len(files), batchChunkSize),
			FileCount: len(files),
			ChunkSize: batchChunkSize,
		})
	}
	return out, warnings
}

func estimateSeconds(size int64) float64 {
	if size < 0 {
		size = 0
	}
	return float64(size)/uploadBytesPerSecond + perFileOverheadSec
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
