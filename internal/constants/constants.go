package constants

import "time"

type contextKey string

const (
	PairCount    = 5
	GameDuration = 35
)

const (
	TickInterval  = time.Second
	MismatchDelay = 1000 * time.Millisecond
	LowTimeWarn   = 10
)

const (
	SessionCookieName = "session_id"
	CSRFCookieName    = "csrf_token"
)

const (
	RouteHome        = "/"
	RouteBoard       = "/board"
	RouteUpload      = "/upload"
	RouteStart       = "/start"
	RouteFlip        = "/flip"
	RouteParticipant = "/participant"
	RoutePlayAgain   = "/play-again"
	RouteExport      = "/export"
	RouteImages      = "/images"
	RouteQRCode      = "/qr.png"
	RouteHealthz     = "/healthz"
)

const (
	ErrorCodeInvalidImageCount    = "invalid_image_count"
	ErrorCodeIncompleteSubmission = "incomplete_submission"
	ErrorCodeAlreadySubmitted     = "already_submitted"
	ErrorCodeNotFinished          = "not_finished"
	ErrorCodeEmptyExport          = "empty_export"
	ErrorCodeImageNotFound        = "image_not_found"
)

const (
	MessageUploadCount   = "Por favor, selecciona exactamente 5 imágenes."
	MessageStartCount    = "Por favor, carga 5 imágenes para empezar."
	MessageIncomplete    = "Por favor, completa todos los campos."
	MessageEmptyExport   = "No hay datos para descargar."
	MessageWon           = "¡Felicidades, ganaste!"
	MessageLost          = "¡Se acabó el tiempo!"
	MessageUploadFailure = "No se pudieron leer las imágenes. Inténtalo de nuevo."
)

const (
	ExportFileName    = "datos_jugadores_geosistemas.csv"
	ExportContentType = "text/csv; charset=utf-8"
	ExportHeader      = "Nombre,Email,Universidad"
)

const (
	RequestIDKey contextKey = "request_id"
)
