// Package images keeps uploaded card images in memory and hands out the
// references the board renders. Assets belong to the session that uploaded
// them and are dropped with it.
package images

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/samber/lo"

	constants "github.com/CodeAndHammer/memorama/internal/constants"
	models "github.com/CodeAndHammer/memorama/internal/models"
	util "github.com/CodeAndHammer/memorama/internal/util"
)

var ErrImageNotFound = errors.New(constants.ErrorCodeImageNotFound)

func RefFor(id string) models.ImageRef {
	return models.ImageRef(constants.RouteImages + "/" + id)
}

func Save(app *models.App, ctx context.Context, owner string, uploads []models.ImageUpload) []models.ImageRef {
	assets := lo.Map(uploads, func(up models.ImageUpload, _ int) *models.ImageAsset {
		return &models.ImageAsset{
			ID:          uuid.NewString(),
			Owner:       owner,
			Name:        up.Name,
			ContentType: mimetype.Detect(up.Data).String(),
			Data:        up.Data,
			CreatedAt:   time.Now(),
		}
	})

	app.ImageMutex.Lock()
	for _, a := range assets {
		app.Images[a.ID] = a
	}
	app.ImageMutex.Unlock()

	util.LogInfoCtx(ctx, "Stored %d image(s) for session %s", len(assets), owner)
	return lo.Map(assets, func(a *models.ImageAsset, _ int) models.ImageRef {
		return RefFor(a.ID)
	})
}

func Get(app *models.App, id string) (*models.ImageAsset, error) {
	app.ImageMutex.RLock()
	defer app.ImageMutex.RUnlock()
	asset, ok := app.Images[id]
	if !ok {
		return nil, ErrImageNotFound
	}
	return asset, nil
}

// Release drops the given references. Unknown references are ignored.
func Release(app *models.App, refs []models.ImageRef) int {
	if len(refs) == 0 {
		return 0
	}
	app.ImageMutex.Lock()
	defer app.ImageMutex.Unlock()
	removed := 0
	for _, ref := range refs {
		id := strings.TrimPrefix(string(ref), constants.RouteImages+"/")
		if _, ok := app.Images[id]; ok {
			delete(app.Images, id)
			removed++
		}
	}
	return removed
}

func ReleaseOwner(app *models.App, owner string) int {
	app.ImageMutex.Lock()
	defer app.ImageMutex.Unlock()
	removed := 0
	for id, asset := range app.Images {
		if asset.Owner == owner {
			delete(app.Images, id)
			removed++
		}
	}
	return removed
}

func Count(app *models.App) int {
	app.ImageMutex.RLock()
	defer app.ImageMutex.RUnlock()
	return len(app.Images)
}
