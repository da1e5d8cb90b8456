package transcript

import (
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Speaker identifies whose speech a transcript fragment belongs to
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerModel Speaker = "model"
)

// Update is an upsert of one conversation message. Consumers replace the
// content of MessageID rather than appending a new entry.
type Update struct {
	MessageID string
	Speaker   Speaker
	Text      string
	Final     bool
}

// turn is the open transcript buffer of one speaker
type turn struct {
	messageID string
	text      strings.Builder
}

// Aggregator reconciles incremental transcript fragments into discrete turns.
// It is owned by the session event loop and is not safe for concurrent use.
type Aggregator struct {
	turns  map[Speaker]*turn
	emit   func(Update)
	newID  func(Speaker) string
	logger zerolog.Logger
}

// NewAggregator creates an aggregator that delivers upserts to emit
func NewAggregator(emit func(Update), logger zerolog.Logger) *Aggregator {
	if emit == nil {
		emit = func(Update) {}
	}
	return &Aggregator{
		turns:  make(map[Speaker]*turn),
		emit:   emit,
		newID:  newMessageID,
		logger: logger.With().Str("component", "transcript").Logger(),
	}
}

func newMessageID(speaker Speaker) string {
	return string(speaker) + "-" + uuid.New().String()
}

// Append adds a fragment to the speaker's open turn, opening one if needed,
// and emits the accumulated text. Empty fragments are ignored.
func (a *Aggregator) Append(speaker Speaker, fragment string) {
	if fragment == "" {
		return
	}

	t, ok := a.turns[speaker]
	if !ok {
		t = &turn{messageID: a.newID(speaker)}
		a.turns[speaker] = t
		a.logger.Debug().
			Str("speaker", string(speaker)).
			Str("message_id", t.messageID).
			Msg("Opened transcript turn")
	}
	t.text.WriteString(fragment)

	a.emit(Update{
		MessageID: t.messageID,
		Speaker:   speaker,
		Text:      t.text.String(),
	})
}

// Finalize emits the final text of the speaker's open turn and closes it.
// The message ID is never reused. Returns false if no turn was open.
func (a *Aggregator) Finalize(speaker Speaker) bool {
	t, ok := a.turns[speaker]
	if !ok {
		return false
	}
	delete(a.turns, speaker)

	a.emit(Update{
		MessageID: t.messageID,
		Speaker:   speaker,
		Text:      t.text.String(),
		Final:     true,
	})
	return true
}

// Discard closes the speaker's open turn without emitting anything.
// Returns false if no turn was open.
func (a *Aggregator) Discard(speaker Speaker) bool {
	t, ok := a.turns[speaker]
	if !ok {
		return false
	}
	delete(a.turns, speaker)

	a.logger.Debug().
		Str("speaker", string(speaker)).
		Str("message_id", t.messageID).
		Msg("Discarded transcript turn")
	return true
}

// Reset drops every open turn silently
func (a *Aggregator) Reset() {
	a.turns = make(map[Speaker]*turn)
}

// Open returns the message ID and text of the speaker's open turn
func (a *Aggregator) Open(speaker Speaker) (messageID, text string, ok bool) {
	t, ok := a.turns[speaker]
	if !ok {
		return "", "", false
	}
	return t.messageID, t.text.String(), true
}
