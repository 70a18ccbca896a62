package models

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	clock "github.com/CodeAndHammer/memorama/internal/clock"
)

type Phase string

const (
	PhaseSetup   Phase = "setup"
	PhasePlaying Phase = "playing"
	PhaseWon     Phase = "won"
	PhaseLost    Phase = "lost"
)

func (p Phase) Terminal() bool {
	return p == PhaseWon || p == PhaseLost
}

type CardStatus string

const (
	CardHidden  CardStatus = "hidden"
	CardVisible CardStatus = "visible"
	CardMatched CardStatus = "matched"
)

// ImageRef is the displayable reference of an uploaded image. The game never
// interprets it.
type ImageRef string

type Card struct {
	ID       int        `json:"id"`
	ImageID  int        `json:"imageId"`
	ImageURL ImageRef   `json:"imageUrl"`
	Status   CardStatus `json:"status"`
}

// GameState is one browser's game. Mu serialises every mutation, including
// the ones made by scheduled callbacks.
type GameState struct {
	Mu             sync.Mutex  `json:"-"`
	SessionID      string      `json:"-"`
	Phase          Phase       `json:"phase"`
	Cards          []Card      `json:"cards"`
	Flipped        []int       `json:"flipped"`
	TimeLeft       int         `json:"timeLeft"`
	ClockStart     time.Time   `json:"-"`
	Images         []ImageRef  `json:"images"`
	Round          int         `json:"round"`
	Submitted      bool        `json:"submitted"`
	ErrorMessage   string      `json:"error,omitempty"`
	LastAccessTime time.Time   `json:"lastAccessTime"`
	TickTimer      clock.Timer `json:"-"`
	RevealTimer    clock.Timer `json:"-"`
}

// GameView is a copy of a GameState taken under its lock, safe to render.
type GameView struct {
	Phase        Phase
	Cards        []Card
	Flipped      []int
	TimeLeft     int
	Images       []ImageRef
	Submitted    bool
	ErrorMessage string
}

type ParticipantRecord struct {
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	University  string    `json:"university"`
	Outcome     Phase     `json:"outcome"`
	SubmittedAt time.Time `json:"submittedAt"`
}

type ImageUpload struct {
	Name string
	Data []byte
}

type ImageAsset struct {
	ID          string
	Owner       string
	Name        string
	ContentType string
	Data        []byte
	CreatedAt   time.Time
}

// RateLimiterEntry represents a rate limiter entry for a client IP
type RateLimiterEntry struct {
	Limiter    *rate.Limiter
	LastAccess time.Time
}

type App struct {
	GameSessions     map[string]*GameState
	SessionMutex     sync.RWMutex
	Participants     []ParticipantRecord
	ParticipantMutex sync.RWMutex
	Images           map[string]*ImageAsset
	ImageMutex       sync.RWMutex
	LimiterMap       map[string]*RateLimiterEntry
	LimiterMutex     sync.RWMutex
	Scheduler        clock.Scheduler
	IsProduction     bool
	StartTime        time.Time
	PublicURL        string
	CookieMaxAge     time.Duration
	StaticCacheAge   time.Duration
	RateLimitRPS     int
	RateLimitBurst   int
	RateLimiterTTL   time.Duration
	SessionTimeout   time.Duration
	MaxUploadBytes   int64
}
