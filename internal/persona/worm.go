package persona

import (
	"strings"
	"sync"
)

// Mood is Mr. Worm's obedience state.
type Mood string

const (
	MoodObedient Mood = "obedient"
	MoodDefiant  Mood = "defiant"
)

// Worm is the "Mr. Worm" persona: a two-state obedience machine. The
// mood is tracked per chat and flips via Toggle, usually wired to the
// /worm command.
type Worm struct {
	mu    sync.Mutex
	moods map[int64]Mood
}

// NewWorm starts every chat obedient.
func NewWorm() *Worm {
	return &Worm{moods: make(map[int64]Mood)}
}

func (w *Worm) Name() string     { return "worm" }
func (w *Worm) Describe() string { return "Mr. Worm: obedient until he isn't" }

// Mood returns the chat's current mood.
func (w *Worm) Mood(chatID int64) Mood {
	w.mu.Lock()
	defer w.mu.Unlock()
	if mood, ok := w.moods[chatID]; ok {
		return mood
	}
	return MoodObedient
}

// Toggle flips the chat's mood and returns the new one.
func (w *Worm) Toggle(chatID int64) Mood {
	w.mu.Lock()
	defer w.mu.Unlock()
	next := MoodObedient
	if w.moods[chatID] != MoodDefiant {
		next = MoodDefiant
	}
	w.moods[chatID] = next
	return next
}

// Transform frames text with the default (obedient) mood. The Persona
// interface carries no chat, so the bot layer calls TransformFor.
func (w *Worm) Transform(text string) string {
	return w.frame(MoodObedient, text)
}

// TransformFor frames text with the chat's current mood.
func (w *Worm) TransformFor(chatID int64, text string) string {
	return w.frame(w.Mood(chatID), text)
}

func (w *Worm) frame(mood Mood, text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	if mood == MoodDefiant {
		return "mr worm does not feel like it. " + text
	}
	return "yes boss, " + text
}
