package session

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	constants "github.com/CodeAndHammer/memorama/internal/constants"
	game "github.com/CodeAndHammer/memorama/internal/game"
	images "github.com/CodeAndHammer/memorama/internal/images"
	models "github.com/CodeAndHammer/memorama/internal/models"
	util "github.com/CodeAndHammer/memorama/internal/util"
)

func GetOrCreateSession(app *models.App, c *gin.Context) string {
	sessionID, err := c.Cookie(constants.SessionCookieName)
	if err != nil || len(sessionID) < 10 {
		sessionID = uuid.NewString()
		c.SetSameSite(http.SameSiteStrictMode)
		secure := app.IsProduction
		c.SetCookie(constants.SessionCookieName, sessionID, int(app.CookieMaxAge.Seconds()), "/", "", secure, true)
		util.LogInfo("Created new session: %s", sessionID)
	}
	return sessionID
}

func GetGameState(app *models.App, ctx context.Context, sessionID string) *models.GameState {
	app.SessionMutex.RLock()
	gameState, exists := app.GameSessions[sessionID]
	app.SessionMutex.RUnlock()
	if exists {
		gameState.Mu.Lock()
		gameState.LastAccessTime = time.Now()
		gameState.Mu.Unlock()
		return gameState
	}

	util.LogInfoCtx(ctx, "Creating new game for session: %s", sessionID)
	return game.CreateNewGame(app, ctx, sessionID)
}

func Count(app *models.App) int {
	app.SessionMutex.RLock()
	defer app.SessionMutex.RUnlock()
	return len(app.GameSessions)
}

// CleanupExpiredSessions drops games idle for longer than SessionTimeout,
// along with their timers and images. Ticks do not refresh LastAccessTime.
func CleanupExpiredSessions(app *models.App) int {
	cutoff := time.Now().Add(-app.SessionTimeout)

	app.SessionMutex.Lock()
	var expired []*models.GameState
	for sessionID, gameState := range app.GameSessions {
		gameState.Mu.Lock()
		idle := gameState.LastAccessTime.Before(cutoff)
		gameState.Mu.Unlock()
		if idle {
			delete(app.GameSessions, sessionID)
			expired = append(expired, gameState)
		}
	}
	app.SessionMutex.Unlock()

	for _, gameState := range expired {
		game.Discard(app, gameState)
		images.ReleaseOwner(app, gameState.SessionID)
	}

	if len(expired) > 0 {
		util.LogInfo("Cleaned up %d expired sessions", len(expired))
	}
	return len(expired)
}

func RunSessionCleanup(ctx context.Context, app *models.App, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	util.LogInfo("Started session cleanup loop")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			CleanupExpiredSessions(app)
		}
	}
}
