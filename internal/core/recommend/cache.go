package recommend

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"slices"
	"sync"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
)

const defaultCacheSize = 256

// buildCache memoizes results by input digest and evicts the oldest entry
// once full.
type buildCache struct {
	mu      sync.Mutex
	limit   int
	entries map[string]Result
	order   []string
}

func newBuildCache(limit int) *buildCache {
	if limit <= 0 {
		limit = defaultCacheSize
	}
	return &buildCache{limit: limit, entries: make(map[string]Result, limit)}
}

func cacheKey(in Input) (string, error) {
	raw, err := json.Marshal(in)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func (c *buildCache) get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	return res.clone(), true
}

func (c *buildCache) put(key string, res Result) {
	res = res.clone()
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; ok {
		c.entries[key] = res
		return
	}
	for len(c.order) >= c.limit {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = res
	c.order = append(c.order, key)
}

func (c *buildCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Result, c.limit)
	c.order = nil
}

func (c *buildCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// clone copies every slice so cached entries never alias a result handed
// to a caller.
func (r Result) clone() Result {
	out := r
	if r.Recommendations != nil {
		out.Recommendations = make([]domain.FolderRecommendation, len(r.Recommendations))
		for i, rec := range r.Recommendations {
			rec.ConfidenceFactors = slices.Clone(rec.ConfidenceFactors)
			rec.Alternatives = slices.Clone(rec.Alternatives)
			out.Recommendations[i] = rec
		}
	}
	if r.BatchOptimization.Groups != nil {
		out.BatchOptimization.Groups = make([]domain.BatchGroup, len(r.BatchOptimization.Groups))
		for i, group := range r.BatchOptimization.Groups {
			group.Files = slices.Clone(group.Files)
			out.BatchOptimization.Groups[i] = group
		}
	}
	if r.BatchOptimization.Chunks != nil {
		out.BatchOptimization.Chunks = make([][]string, len(r.BatchOptimization.Chunks))
		for i, chunk := range r.BatchOptimization.Chunks {
			out.BatchOptimization.Chunks[i] = slices.Clone(chunk)
		}
	}
	out.MissingFolders = slices.Clone(r.MissingFolders)
	out.ConflictResolution.DuplicateNames = slices.Clone(r.ConflictResolution.DuplicateNames)
	out.PerformanceWarnings = slices.Clone(r.PerformanceWarnings)
	return out
}
