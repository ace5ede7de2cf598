// Package conversation decides when the bot should stop talking. A
// turn classifier buckets each user message, and a pure decision
// function folds the recent turns into continue, wind-down, or end.
package conversation

import (
	"strings"
	"time"
	"unicode"
)

// TurnType classifies the semantic category of a user message.
type TurnType string

const (
	TurnFarewell  TurnType = "farewell"
	TurnGratitude TurnType = "gratitude"
	TurnQuestion  TurnType = "question"
	TurnCommand   TurnType = "command"
	TurnStatement TurnType = "statement"
)

var farewellWords = map[string]bool{
	"bye": true, "goodbye": true, "goodnight": true, "cya": true,
	"later": true, "farewell": true, "gtg": true,
}

var gratitudeWords = map[string]bool{
	"thanks": true, "thank": true, "thx": true, "ty": true,
	"cheers": true, "appreciated": true,
}

// Classify buckets one message. Case and punctuation never change the
// outcome; commands are anything starting with a slash; empty text is
// a statement.
func Classify(text string) TurnType {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return TurnStatement
	}
	if strings.HasPrefix(trimmed, "/") {
		return TurnCommand
	}
	if strings.ContainsRune(trimmed, '?') {
		return TurnQuestion
	}

	words := splitWords(strings.ToLower(trimmed))
	for _, w := range words {
		if farewellWords[w] {
			return TurnFarewell
		}
	}
	for _, w := range words {
		if gratitudeWords[w] {
			return TurnGratitude
		}
	}
	return TurnStatement
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Turn is one classified user message with its arrival time.
type Turn struct {
	Type TurnType
	At   time.Time
}

// Decision is the closer's verdict for the next reply.
type Decision string

const (
	// Continue means reply normally.
	Continue Decision = "continue"
	// WindDown means send one wrap-up style reply.
	WindDown Decision = "wind_down"
	// End means stop replying after a farewell.
	End Decision = "end"
)

const (
	// TurnBudget caps one conversation before the bot wraps up.
	TurnBudget = 40
	// windDownRatio is the budget share at which the bot starts
	// steering toward a close.
	windDownRatio = 0.8
	// IdleGap ends a conversation that went quiet.
	IdleGap = 10 * time.Minute
)

// Decide folds the conversation's turns into a verdict. turns is
// ordered oldest first; now is the decision time. Pure and
// deterministic: same turns and clock, same verdict.
func Decide(turns []Turn, now time.Time) (Decision, string) {
	if len(turns) == 0 {
		return Continue, "no turns yet"
	}

	last := turns[len(turns)-1]

	// Commands always get a reply; they are requests, not chatter.
	if last.Type == TurnCommand {
		return Continue, "explicit command"
	}

	if last.Type == TurnFarewell {
		return End, "explicit farewell"
	}

	if gap := now.Sub(last.At); gap >= IdleGap {
		return End, "idle gap exceeded"
	}

	openQuestion := last.Type == TurnQuestion

	if len(turns) >= TurnBudget && !openQuestion {
		return End, "turn budget exhausted"
	}

	if last.Type == TurnGratitude {
		if len(turns) >= 2 && turns[len(turns)-2].Type == TurnGratitude {
			return End, "repeated gratitude"
		}
		return WindDown, "gratitude without a question"
	}

	if float64(len(turns)) >= windDownRatio*TurnBudget && !openQuestion {
		return WindDown, "approaching turn budget"
	}

	return Continue, "conversation active"
}
