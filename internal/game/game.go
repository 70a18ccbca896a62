package game

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/samber/lo"

	constants "github.com/CodeAndHammer/memorama/internal/constants"
	images "github.com/CodeAndHammer/memorama/internal/images"
	models "github.com/CodeAndHammer/memorama/internal/models"
	records "github.com/CodeAndHammer/memorama/internal/records"
	util "github.com/CodeAndHammer/memorama/internal/util"
)

var (
	ErrNotFinished      = errors.New(constants.ErrorCodeNotFinished)
	ErrAlreadySubmitted = errors.New(constants.ErrorCodeAlreadySubmitted)
)

func NewGameState(sessionID string) *models.GameState {
	return &models.GameState{
		SessionID:      sessionID,
		Phase:          models.PhaseSetup,
		TimeLeft:       constants.GameDuration,
		LastAccessTime: time.Now(),
	}
}

func CreateNewGame(app *models.App, ctx context.Context, sessionID string) *models.GameState {
	gameState := NewGameState(sessionID)
	app.SessionMutex.Lock()
	app.GameSessions[sessionID] = gameState
	app.SessionMutex.Unlock()
	util.LogInfoCtx(ctx, "New game created for session %s", sessionID)
	return gameState
}

// UploadImages replaces the images a game in Setup will be built from. Any
// count other than PairCount is rejected and leaves the previous upload.
func UploadImages(app *models.App, ctx context.Context, gameState *models.GameState, uploads []models.ImageUpload) error {
	gameState.Mu.Lock()
	defer gameState.Mu.Unlock()

	if gameState.Phase != models.PhaseSetup {
		util.LogWarnCtx(ctx, "Session %s uploaded images outside setup (phase %s)", gameState.SessionID, gameState.Phase)
		return nil
	}

	if len(uploads) != constants.PairCount {
		gameState.ErrorMessage = constants.MessageUploadCount
		util.LogWarnCtx(ctx, "Session %s uploaded %d images, need %d", gameState.SessionID, len(uploads), constants.PairCount)
		return ErrInvalidImageCount
	}

	previous := gameState.Images
	gameState.Images = images.Save(app, ctx, gameState.SessionID, uploads)
	gameState.ErrorMessage = ""
	if released := images.Release(app, previous); released > 0 {
		util.LogInfoCtx(ctx, "Released %d previous image(s) for session %s", released, gameState.SessionID)
	}
	touch(gameState)
	return nil
}

func StartGame(app *models.App, ctx context.Context, gameState *models.GameState) error {
	gameState.Mu.Lock()
	defer gameState.Mu.Unlock()

	if gameState.Phase != models.PhaseSetup {
		util.LogWarnCtx(ctx, "Session %s attempted start in phase %s", gameState.SessionID, gameState.Phase)
		return nil
	}

	cards, err := BuildDeck(ctx, gameState.Images)
	if err != nil {
		gameState.ErrorMessage = constants.MessageStartCount
		util.LogWarnCtx(ctx, "Session %s attempted start with %d images", gameState.SessionID, len(gameState.Images))
		return err
	}

	gameState.Cards = cards
	gameState.Flipped = nil
	gameState.TimeLeft = constants.GameDuration
	gameState.Submitted = false
	gameState.ErrorMessage = ""
	gameState.Round++
	gameState.Phase = models.PhasePlaying
	startClock(app, gameState)
	touch(gameState)

	util.LogInfoCtx(ctx, "Session %s started round %d with %d cards", gameState.SessionID, gameState.Round, len(cards))
	return nil
}

// FlipCard turns a hidden card face up. It reports false, without error, when
// the flip is not allowed: outside Playing, with two cards already awaiting
// evaluation, or on a card that is not hidden.
func FlipCard(app *models.App, ctx context.Context, gameState *models.GameState, id int) bool {
	gameState.Mu.Lock()
	defer gameState.Mu.Unlock()

	if gameState.Phase != models.PhasePlaying || len(gameState.Flipped) >= 2 {
		return false
	}
	idx := cardIndex(gameState, id)
	if idx < 0 || gameState.Cards[idx].Status != models.CardHidden {
		return false
	}

	gameState.Cards[idx].Status = models.CardVisible
	gameState.Flipped = append(gameState.Flipped, id)
	touch(gameState)

	if len(gameState.Flipped) == 2 {
		evaluate(app, ctx, gameState)
	}
	return true
}

// evaluate runs once per completed pair. Caller holds gameState.Mu.
func evaluate(app *models.App, ctx context.Context, gameState *models.GameState) {
	pair := [2]int{gameState.Flipped[0], gameState.Flipped[1]}
	first, okFirst := lo.Find(gameState.Cards, func(c models.Card) bool { return c.ID == pair[0] })
	second, okSecond := lo.Find(gameState.Cards, func(c models.Card) bool { return c.ID == pair[1] })
	if !okFirst || !okSecond {
		gameState.Flipped = nil
		return
	}

	if first.ImageID == second.ImageID {
		for i := range gameState.Cards {
			if gameState.Cards[i].ImageID == first.ImageID {
				gameState.Cards[i].Status = models.CardMatched
			}
		}
		gameState.Flipped = nil
		util.LogInfoCtx(ctx, "Session %s matched image %d", gameState.SessionID, first.ImageID)
		checkWin(ctx, gameState)
		return
	}

	round := gameState.Round
	gameState.RevealTimer = app.Scheduler.AfterFunc(constants.MismatchDelay, func() {
		resolveMismatch(gameState, round, pair)
	})
}

// resolveMismatch hides a mismatched pair once the reveal delay is over. It
// does nothing if the game moved on since the pair was flipped.
func resolveMismatch(gameState *models.GameState, round int, pair [2]int) {
	gameState.Mu.Lock()
	defer gameState.Mu.Unlock()

	if gameState.Phase != models.PhasePlaying || gameState.Round != round {
		return
	}
	if !slices.Equal(gameState.Flipped, pair[:]) {
		return
	}

	for i := range gameState.Cards {
		if gameState.Cards[i].ID == pair[0] || gameState.Cards[i].ID == pair[1] {
			gameState.Cards[i].Status = models.CardHidden
		}
	}
	gameState.Flipped = nil
	gameState.RevealTimer = nil
}

// checkWin moves to Won once every card is matched. Caller holds gameState.Mu.
func checkWin(ctx context.Context, gameState *models.GameState) {
	if gameState.Phase != models.PhasePlaying || len(gameState.Cards) == 0 {
		return
	}
	if !lo.EveryBy(gameState.Cards, func(c models.Card) bool { return c.Status == models.CardMatched }) {
		return
	}
	gameState.Phase = models.PhaseWon
	stopTimers(gameState)
	util.LogInfoCtx(ctx, "Session %s won round %d with %d second(s) left", gameState.SessionID, gameState.Round, gameState.TimeLeft)
}

func SubmitParticipant(app *models.App, ctx context.Context, gameState *models.GameState, rec models.ParticipantRecord) error {
	gameState.Mu.Lock()
	defer gameState.Mu.Unlock()

	if !gameState.Phase.Terminal() {
		util.LogWarnCtx(ctx, "Session %s submitted participant data in phase %s", gameState.SessionID, gameState.Phase)
		return ErrNotFinished
	}
	if gameState.Submitted {
		util.LogWarnCtx(ctx, "Session %s attempted a second submission", gameState.SessionID)
		return ErrAlreadySubmitted
	}

	rec.Outcome = gameState.Phase
	if _, err := records.Append(app, ctx, rec); err != nil {
		gameState.ErrorMessage = constants.MessageIncomplete
		return err
	}
	gameState.Submitted = true
	gameState.ErrorMessage = ""
	touch(gameState)
	return nil
}

// PlayAgain returns a finished game to Setup. Uploaded images are released;
// the participant list is left alone.
func PlayAgain(app *models.App, ctx context.Context, gameState *models.GameState) error {
	gameState.Mu.Lock()
	defer gameState.Mu.Unlock()

	if !gameState.Phase.Terminal() {
		return ErrNotFinished
	}

	stopTimers(gameState)
	images.Release(app, gameState.Images)
	gameState.Phase = models.PhaseSetup
	gameState.Cards = nil
	gameState.Flipped = nil
	gameState.Images = nil
	gameState.TimeLeft = constants.GameDuration
	gameState.Submitted = false
	gameState.ErrorMessage = ""
	gameState.Round++
	touch(gameState)

	util.LogInfoCtx(ctx, "Session %s returned to setup", gameState.SessionID)
	return nil
}

// Discard stops pending timers and frees the images of a game that is being
// dropped from the session map.
func Discard(app *models.App, gameState *models.GameState) {
	gameState.Mu.Lock()
	defer gameState.Mu.Unlock()
	stopTimers(gameState)
	gameState.Round++
	images.Release(app, gameState.Images)
	gameState.Images = nil
}

func Snapshot(gameState *models.GameState) models.GameView {
	gameState.Mu.Lock()
	defer gameState.Mu.Unlock()
	return models.GameView{
		Phase:        gameState.Phase,
		Cards:        slices.Clone(gameState.Cards),
		Flipped:      slices.Clone(gameState.Flipped),
		TimeLeft:     gameState.TimeLeft,
		Images:       slices.Clone(gameState.Images),
		Submitted:    gameState.Submitted,
		ErrorMessage: gameState.ErrorMessage,
	}
}

func cardIndex(gameState *models.GameState, id int) int {
	return slices.IndexFunc(gameState.Cards, func(c models.Card) bool { return c.ID == id })
}

func stopTimers(gameState *models.GameState) {
	if gameState.TickTimer != nil {
		gameState.TickTimer.Stop()
		gameState.TickTimer = nil
	}
	if gameState.RevealTimer != nil {
		gameState.RevealTimer.Stop()
		gameState.RevealTimer = nil
	}
}

func touch(gameState *models.GameState) {
	gameState.LastAccessTime = time.Now()
}
