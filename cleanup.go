package main

import (
	"context"
	"sort"
	"time"

	models "github.com/CodeAndHammer/memorama/internal/models"
	util "github.com/CodeAndHammer/memorama/internal/util"
)

const (
	limiterSoftCap = 10000
	limiterHardCap = 50000
)

func runLimiterCleanup(ctx context.Context, app *models.App, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	util.LogInfo("Started rate limiter cleanup loop")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			cleanupStaleRateLimiters(app)
		}
	}
}

func cleanupStaleRateLimiters(app *models.App) int {
	app.LimiterMutex.Lock()
	defer app.LimiterMutex.Unlock()

	cutoffTime := time.Now().Add(-app.RateLimiterTTL)
	removedCount := 0

	for key, entry := range app.LimiterMap {
		if entry.LastAccess.Before(cutoffTime) {
			delete(app.LimiterMap, key)
			removedCount++
		}
	}

	if len(app.LimiterMap) > limiterHardCap {
		util.LogInfo("Rate limiter map too large (%d entries), performing emergency cleanup", len(app.LimiterMap))

		type limiterInfo struct {
			key        string
			lastAccess time.Time
		}

		limiters := make([]limiterInfo, 0, len(app.LimiterMap))
		for key, entry := range app.LimiterMap {
			limiters = append(limiters, limiterInfo{key: key, lastAccess: entry.LastAccess})
		}

		sort.Slice(limiters, func(i, j int) bool {
			return limiters[i].lastAccess.Before(limiters[j].lastAccess)
		})

		entriesToRemove := len(limiters) - limiterSoftCap
		for i := 0; i < entriesToRemove; i++ {
			delete(app.LimiterMap, limiters[i].key)
			removedCount++
		}

		util.LogInfo("Removed %d oldest rate limiters", entriesToRemove)
	}

	if removedCount > 0 {
		util.LogInfo("Cleaned up %d stale rate limiters", removedCount)
	}
	return removedCount
}
