package persona

import (
	"hash/fnv"
	"strings"
)

// ralphMisspellings is the word table. Lookups are lowercase; casing of
// the original word is reapplied to the replacement.
var ralphMisspellings = map[string]string{
	"impossible":  "unpossible",
	"electricity": "lectricity",
	"important":   "portant",
	"probably":    "probly",
	"definitely":  "definately",
	"favorite":    "favoritest",
	"library":     "libary",
	"sandwich":    "samwich",
	"spaghetti":   "pasghetti",
	"breakfast":   "brefast",
	"animal":      "aminal",
	"cinnamon":    "cimmanon",
}

// ralphCatchphrases are appended to some sentences, picked by hash so
// the same text always gets the same suffix (or none).
var ralphCatchphrases = []string{
	"hi super nintendo chalmers!",
	"me fail english? that's unpossible!",
	"my cat's breath smells like cat food.",
	"i'm learnding!",
	"it tastes like burning.",
}

// catchphraseEvery controls how often a catchphrase lands: the sentence
// hash modulo this picks phrase slots, with most slots empty.
const catchphraseEvery = 3

type ralph struct{}

// NewRalph returns the default persona: a deterministic misspeller.
func NewRalph() Persona { return ralph{} }

func (ralph) Name() string     { return "ralph" }
func (ralph) Describe() string { return "Ralph: enthusiastic, oddly spelled, occasionally profound" }

func (ralph) Transform(text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}

	out := mapWords(text, func(token string) string {
		core, trailing := splitPunct(token)
		replacement, ok := ralphMisspellings[strings.ToLower(core)]
		if !ok {
			return token
		}
		return matchCase(core, replacement) + trailing
	})

	// The hash of the original text seeds both whether a catchphrase
	// lands and which one, so transformation stays deterministic.
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()
	if seed%catchphraseEvery == 0 {
		out += " " + ralphCatchphrases[seed%uint32(len(ralphCatchphrases))]
	}
	return out
}
