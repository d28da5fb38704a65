package models

import (
	"time"

	"github.com/google/uuid"
)

// Card is flashcard content owned by the deck service. The analysis pipeline
// only reads it. Front and Back may hold plain text, HTML, or a JSON envelope
// carrying HTML and media references.
type Card struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	DeckID    uuid.UUID `db:"deck_id"    json:"deck_id"`
	Front     string    `db:"front"      json:"front"`
	Back      string    `db:"back"       json:"back"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
