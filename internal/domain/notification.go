package domain

import "time"

// NotificationKind names a category of pending side effect.
type NotificationKind string

const (
	KindCurrentMove NotificationKind = "currentMove"
	KindGameEnded   NotificationKind = "gameEnded"
	KindGameStarted NotificationKind = "gameStarted"
	KindPlayerQuit  NotificationKind = "playerQuit"
	KindDropPlayer  NotificationKind = "dropPlayer"
	KindPlayerDrop  NotificationKind = "playerDrop"
)

// Kinds lists every notification kind in drain order.
var Kinds = []NotificationKind{
	KindCurrentMove,
	KindGameStarted,
	KindDropPlayer,
	KindPlayerDrop,
	KindPlayerQuit,
	KindGameEnded,
}

func (k NotificationKind) Valid() bool {
	for _, v := range Kinds {
		if v == k {
			return true
		}
	}
	return false
}

// Meta keys used by notification producers.
const (
	MetaDeadline = "deadline"
	MetaReason   = "reason"
)

// Notification is an append-only work item; Processed flips once.
type Notification struct {
	ID        string            `json:"id"`
	Kind      NotificationKind  `json:"kind"`
	Game      string            `json:"game"`
	User      string            `json:"user,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
	Processed bool              `json:"processed"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// EloRecord is the per user per boardgame rating accumulator.
// A zero Value means the player has no rating yet.
type EloRecord struct {
	Value int `json:"value"`
	Games int `json:"games"`
}

// GamePreferences holds per user per boardgame settings.
type GamePreferences struct {
	UserID    string    `json:"user_id"`
	Boardgame string    `json:"boardgame"`
	Elo       EloRecord `json:"elo"`
	Access    bool      `json:"access,omitempty"`
	Owned     bool      `json:"owned,omitempty"`
}
