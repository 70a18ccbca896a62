package game

import (
	"context"
	"time"

	constants "github.com/CodeAndHammer/memorama/internal/constants"
	models "github.com/CodeAndHammer/memorama/internal/models"
	util "github.com/CodeAndHammer/memorama/internal/util"
)

// startClock arms the first tick of the current round. Caller holds
// gameState.Mu.
func startClock(app *models.App, gameState *models.GameState) {
	if gameState.TickTimer != nil {
		gameState.TickTimer.Stop()
	}
	gameState.ClockStart = app.Scheduler.Now()
	scheduleTick(app, gameState, gameState.Round)
}

// scheduleTick arms tick n at ClockStart + n*TickInterval, so a late tick
// shortens the wait for the next one instead of pushing the round back.
func scheduleTick(app *models.App, gameState *models.GameState, round int) {
	n := constants.GameDuration - gameState.TimeLeft + 1
	due := gameState.ClockStart.Add(time.Duration(n) * constants.TickInterval)
	wait := max(due.Sub(app.Scheduler.Now()), 0)
	gameState.TickTimer = app.Scheduler.AfterFunc(wait, func() {
		tick(app, gameState, round)
	})
}

// tick takes one second off the clock. A tick from an earlier round, or one
// that fires after the game left Playing, is dropped.
func tick(app *models.App, gameState *models.GameState, round int) {
	gameState.Mu.Lock()
	defer gameState.Mu.Unlock()

	if gameState.Phase != models.PhasePlaying || gameState.Round != round {
		return
	}

	gameState.TimeLeft--
	if gameState.TimeLeft <= 0 {
		gameState.TimeLeft = 0
		gameState.Phase = models.PhaseLost
		stopTimers(gameState)
		util.LogInfoCtx(context.Background(), "Session %s ran out of time in round %d", gameState.SessionID, round)
		return
	}
	scheduleTick(app, gameState, round)
}
