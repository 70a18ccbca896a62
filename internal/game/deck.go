package game

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	mrand "math/rand"

	"github.com/samber/lo"

	constants "github.com/CodeAndHammer/memorama/internal/constants"
	models "github.com/CodeAndHammer/memorama/internal/models"
	util "github.com/CodeAndHammer/memorama/internal/util"
)

var ErrInvalidImageCount = errors.New(constants.ErrorCodeInvalidImageCount)

// BuildDeck returns two hidden cards per image, ids 2k and 2k+1 for image k,
// in shuffled order.
func BuildDeck(ctx context.Context, refs []models.ImageRef) ([]models.Card, error) {
	if len(refs) != constants.PairCount {
		return nil, ErrInvalidImageCount
	}

	cards := lo.FlatMap(refs, func(ref models.ImageRef, k int) []models.Card {
		return lo.Times(2, func(i int) models.Card {
			return models.Card{ID: 2*k + i, ImageID: k, ImageURL: ref, Status: models.CardHidden}
		})
	})

	Shuffle(ctx, cards)
	return cards, nil
}

// Shuffle is an in-place Fisher-Yates shuffle.
func Shuffle[T any](ctx context.Context, items []T) {
	for i := len(items) - 1; i > 0; i-- {
		j := randomIndex(ctx, i+1)
		items[i], items[j] = items[j], items[i]
	}
}

// randomIndex returns a uniform integer in [0, n).
func randomIndex(ctx context.Context, n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		util.LogWarnCtx(ctx, "Error generating random number: %v, using math/rand fallback", err)
		return mrand.Intn(n)
	}
	return int(v.Int64())
}
