// Package records holds the participant list for the lifetime of the process.
// The list starts empty, only grows, and is never reset by a new game.
package records

import (
	"context"
	"errors"
	"strings"
	"time"

	constants "github.com/CodeAndHammer/memorama/internal/constants"
	models "github.com/CodeAndHammer/memorama/internal/models"
	util "github.com/CodeAndHammer/memorama/internal/util"
)

var (
	ErrIncompleteSubmission = errors.New(constants.ErrorCodeIncompleteSubmission)
	ErrEmptyExport          = errors.New(constants.ErrorCodeEmptyExport)
)

// Normalize trims the form values and reports ErrIncompleteSubmission when any
// of them ends up empty.
func Normalize(rec models.ParticipantRecord) (models.ParticipantRecord, error) {
	rec.Name = strings.TrimSpace(rec.Name)
	rec.Email = strings.TrimSpace(rec.Email)
	rec.University = strings.TrimSpace(rec.University)
	if rec.Name == "" || rec.Email == "" || rec.University == "" {
		return rec, ErrIncompleteSubmission
	}
	return rec, nil
}

func Append(app *models.App, ctx context.Context, rec models.ParticipantRecord) (models.ParticipantRecord, error) {
	rec, err := Normalize(rec)
	if err != nil {
		return rec, err
	}
	if rec.SubmittedAt.IsZero() {
		rec.SubmittedAt = time.Now()
	}

	app.ParticipantMutex.Lock()
	app.Participants = append(app.Participants, rec)
	total := len(app.Participants)
	app.ParticipantMutex.Unlock()

	util.LogInfoCtx(ctx, "Stored participant record (outcome %s), %d record(s) in session", rec.Outcome, total)
	return rec, nil
}

// List returns a copy so callers can render or export without holding the lock.
func List(app *models.App) []models.ParticipantRecord {
	app.ParticipantMutex.RLock()
	defer app.ParticipantMutex.RUnlock()
	out := make([]models.ParticipantRecord, len(app.Participants))
	copy(out, app.Participants)
	return out
}

func Count(app *models.App) int {
	app.ParticipantMutex.RLock()
	defer app.ParticipantMutex.RUnlock()
	return len(app.Participants)
}
