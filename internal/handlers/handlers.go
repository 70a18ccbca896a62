package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/skip2/go-qrcode"

	constants "github.com/CodeAndHammer/memorama/internal/constants"
	game "github.com/CodeAndHammer/memorama/internal/game"
	images "github.com/CodeAndHammer/memorama/internal/images"
	models "github.com/CodeAndHammer/memorama/internal/models"
	records "github.com/CodeAndHammer/memorama/internal/records"
	session "github.com/CodeAndHammer/memorama/internal/session"
	util "github.com/CodeAndHammer/memorama/internal/util"
)

const pageTitle = "Geosistemas - Juego de Memoria"

// participantForm catches absent fields at binding time. Blank values still
// pass here and are rejected by records.Normalize after trimming.
type participantForm struct {
	Name       string `form:"name" binding:"required"`
	Email      string `form:"email" binding:"required"`
	University string `form:"university" binding:"required"`
}

func HomeHandler(app *models.App, c *gin.Context) {
	gameState := currentGame(app, c)
	renderFullPage(app, c, http.StatusOK, gameState, nil)
}

func BoardHandler(app *models.App, c *gin.Context) {
	gameState := currentGame(app, c)
	renderBoard(app, c, http.StatusOK, gameState, nil)
}

func UploadHandler(app *models.App, c *gin.Context) {
	ctx := c.Request.Context()
	gameState := currentGame(app, c)

	var files []*multipart.FileHeader
	if form, err := c.MultipartForm(); err == nil {
		files = form.File["images"]
	} else {
		util.LogWarnCtx(ctx, "Failed to parse upload form: %v", err)
	}

	uploads, err := readUploads(files)
	if err != nil {
		util.LogWarnCtx(ctx, "Failed to read uploaded images: %v", err)
		respond(app, c, gameState, gin.H{"notice": constants.MessageUploadFailure})
		return
	}

	var extra gin.H
	if err := game.UploadImages(app, ctx, gameState, uploads); err != nil {
		extra = errorPayload(c, err)
	}
	respond(app, c, gameState, extra)
}

func StartHandler(app *models.App, c *gin.Context) {
	ctx := c.Request.Context()
	gameState := currentGame(app, c)

	var extra gin.H
	if err := game.StartGame(app, ctx, gameState); err != nil {
		extra = errorPayload(c, err)
	}
	respond(app, c, gameState, extra)
}

func FlipHandler(app *models.App, c *gin.Context) {
	ctx := c.Request.Context()
	gameState := currentGame(app, c)

	if id, err := strconv.Atoi(strings.TrimSpace(c.PostForm("id"))); err == nil {
		game.FlipCard(app, ctx, gameState, id)
	}
	respond(app, c, gameState, nil)
}

func ParticipantHandler(app *models.App, c *gin.Context) {
	ctx := c.Request.Context()
	gameState := currentGame(app, c)

	var form participantForm
	if err := c.ShouldBind(&form); err != nil {
		util.LogWarnCtx(ctx, "Participant form failed binding: %v", err)
	}
	rec := models.ParticipantRecord{
		Name:       form.Name,
		Email:      form.Email,
		University: form.University,
	}

	var extra gin.H
	if err := game.SubmitParticipant(app, ctx, gameState, rec); err != nil {
		extra = errorPayload(c, err)
		extra["form"] = rec
	}
	respond(app, c, gameState, extra)
}

func PlayAgainHandler(app *models.App, c *gin.Context) {
	ctx := c.Request.Context()
	gameState := currentGame(app, c)

	if err := game.PlayAgain(app, ctx, gameState); err != nil {
		util.LogWarnCtx(ctx, "Ignored play-again: %v", err)
	}
	respond(app, c, gameState, nil)
}

func ExportHandler(app *models.App, c *gin.Context) {
	ctx := c.Request.Context()

	data, err := records.ExportCSV(records.List(app))
	if err != nil {
		util.LogWarnCtx(ctx, "Export refused: %v", err)
		gameState := currentGame(app, c)
		extra := errorPayload(c, err)
		if isHTMX(c) {
			renderBoard(app, c, http.StatusOK, gameState, extra)
		} else {
			renderFullPage(app, c, http.StatusConflict, gameState, extra)
		}
		return
	}

	util.LogInfoCtx(ctx, "Exported %d bytes of participant data", len(data))
	c.Header("Content-Disposition", `attachment; filename="`+constants.ExportFileName+`"`)
	c.Data(http.StatusOK, constants.ExportContentType, data)
}

func ImageHandler(app *models.App, c *gin.Context) {
	asset, err := images.Get(app, c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Header("Cache-Control", "private, max-age=3600")
	c.Data(http.StatusOK, asset.ContentType, asset.Data)
}

func QRCodeHandler(app *models.App, c *gin.Context) {
	target := app.PublicURL
	if target == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		target = scheme + "://" + c.Request.Host + constants.RouteHome
	}

	png, err := qrcode.Encode(target, qrcode.Medium, 256)
	if err != nil {
		util.LogWarnCtx(c.Request.Context(), "Failed to encode QR code for %s: %v", target, err)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func HealthzHandler(app *models.App, c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(app.StartTime)

	app.LimiterMutex.RLock()
	limiterCount := len(app.LimiterMap)
	app.LimiterMutex.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"env":             map[bool]string{true: "production", false: "development"}[app.IsProduction],
		"active_sessions": session.Count(app),
		"active_limiters": limiterCount,
		"participants":    records.Count(app),
		"stored_images":   images.Count(app),
		"memory_alloc_mb": m.Alloc / 1024 / 1024,
		"memory_sys_mb":   m.Sys / 1024 / 1024,
		"memory_gc_count": m.NumGC,
		"uptime":          util.FormatUptime(uptime),
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

func currentGame(app *models.App, c *gin.Context) *models.GameState {
	sessionID := session.GetOrCreateSession(app, c)
	return session.GetGameState(app, c.Request.Context(), sessionID)
}

func readUploads(files []*multipart.FileHeader) ([]models.ImageUpload, error) {
	uploads := make([]models.ImageUpload, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, models.ImageUpload{Name: fh.Filename, Data: data})
	}
	return uploads, nil
}

// errorPayload maps a domain error to the notice shown to the player and
// signals the code to htmx listeners.
func errorPayload(c *gin.Context, err error) gin.H {
	code := err.Error()
	payload := map[string]string{"server_error_code": code}
	if b, jerr := json.Marshal(payload); jerr == nil {
		c.Header("HX-Trigger", string(b))
	} else {
		util.LogWarn("Failed to marshal HX-Trigger payload: %v", jerr)
	}

	extra := gin.H{"error_code": code}
	switch {
	case errors.Is(err, records.ErrIncompleteSubmission):
		extra["notice"] = constants.MessageIncomplete
	case errors.Is(err, records.ErrEmptyExport):
		extra["notice"] = constants.MessageEmptyExport
	}
	return extra
}

func isHTMX(c *gin.Context) bool {
	return c.GetHeader("HX-Request") == "true"
}

func respond(app *models.App, c *gin.Context, gameState *models.GameState, extra gin.H) {
	if isHTMX(c) {
		renderBoard(app, c, http.StatusOK, gameState, extra)
		return
	}
	renderFullPage(app, c, http.StatusOK, gameState, extra)
}

func renderBoard(app *models.App, c *gin.Context, status int, gameState *models.GameState, extra gin.H) {
	c.HTML(status, "game-content", viewData(app, c, gameState, extra))
}

func renderFullPage(app *models.App, c *gin.Context, status int, gameState *models.GameState, extra gin.H) {
	data := viewData(app, c, gameState, extra)
	data["title"] = pageTitle
	c.HTML(status, "index.html", data)
}

func viewData(app *models.App, c *gin.Context, gameState *models.GameState, extra gin.H) gin.H {
	view := game.Snapshot(gameState)
	csrfToken := c.GetString("csrf_token")
	if csrfToken == "" {
		csrfToken, _ = c.Cookie(constants.CSRFCookieName)
	}

	data := gin.H{
		"game":       view,
		"records":    records.Count(app),
		"pairs":      constants.PairCount,
		"lowTime":    view.Phase == models.PhasePlaying && view.TimeLeft <= constants.LowTimeWarn,
		"csrf_token": csrfToken,
		"form":       models.ParticipantRecord{},
	}
	switch view.Phase {
	case models.PhaseWon:
		data["message"] = constants.MessageWon
	case models.PhaseLost:
		data["message"] = constants.MessageLost
	}
	if view.ErrorMessage != "" {
		data["notice"] = view.ErrorMessage
	}
	return lo.Assign(data, extra)
}
