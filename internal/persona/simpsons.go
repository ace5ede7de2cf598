package persona

import (
	"hash/fnv"
	"strings"
)

// simpsonsVoice configures one character translator: word swaps plus
// interjections chosen by text hash.
type simpsonsVoice struct {
	name          string
	description   string
	swaps         map[string]string
	interjections []string
	prefix        bool // interjection leads instead of trails
}

var simpsonsVoices = []simpsonsVoice{
	{
		name:        "homer",
		description: "Homer: food-driven, easily distracted",
		swaps: map[string]string{
			"great": "excellent", "beer": "duff", "stupid": "d'oh-worthy",
			"amazing": "mmm, amazing",
		},
		interjections: []string{"d'oh!", "woohoo!", "mmm... donuts."},
	},
	{
		name:        "bart",
		description: "Bart: irreverent, allergic to authority",
		swaps: map[string]string{
			"friend": "amigo", "wow": "ay caramba", "definitely": "totally",
		},
		interjections: []string{"eat my shorts!", "ay caramba!", "don't have a cow."},
	},
	{
		name:        "lisa",
		description: "Lisa: precise, a little exasperated",
		swaps: map[string]string{
			"good": "commendable", "bad": "problematic", "weird": "statistically unusual",
		},
		interjections: []string{"if anyone cares, the facts agree with me.", "i'll be in my room."},
	},
	{
		name:        "marge",
		description: "Marge: warm, gently worried",
		swaps: map[string]string{
			"risky": "a little dangerous", "problem": "pickle",
		},
		interjections: []string{"hmmmm.", "i just think that's nice."},
	},
	{
		name:        "burns",
		description: "Mr. Burns: imperious, anachronistic",
		swaps: map[string]string{
			"good": "adequate", "great": "excellent", "money": "lucre",
			"yes": "why yes",
		},
		interjections: []string{"excellent.", "release the hounds.", "smithers!"},
		prefix:        true,
	},
}

// SimpsonsCharacters lists the available character names.
func SimpsonsCharacters() []string {
	names := make([]string, len(simpsonsVoices))
	for i, v := range simpsonsVoices {
		names[i] = v.name
	}
	return names
}

type simpsons struct {
	voice simpsonsVoice
}

// NewSimpsons returns the persona for the named character. Unknown
// characters are resolved at registry lookup, so this constructor only
// sees known names; it falls back to homer defensively anyway.
func NewSimpsons(character string) Persona {
	for _, v := range simpsonsVoices {
		if v.name == strings.ToLower(character) {
			return simpsons{voice: v}
		}
	}
	return simpsons{voice: simpsonsVoices[0]}
}

func (s simpsons) Name() string     { return s.voice.name }
func (s simpsons) Describe() string { return s.voice.description }

// interjectEvery keeps interjections occasional rather than constant.
const interjectEvery = 2

func (s simpsons) Transform(text string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}

	out := mapWords(text, func(token string) string {
		core, trailing := splitPunct(token)
		replacement, ok := s.voice.swaps[strings.ToLower(core)]
		if !ok {
			return token
		}
		return matchCase(core, replacement) + trailing
	})

	h := fnv.New32a()
	h.Write([]byte(s.voice.name))
	h.Write([]byte(text))
	seed := h.Sum32()
	if seed%interjectEvery == 0 {
		phrase := s.voice.interjections[seed%uint32(len(s.voice.interjections))]
		if s.voice.prefix {
			out = strings.ToUpper(phrase[:1]) + phrase[1:] + " " + out
		} else {
			out += " " + phrase
		}
	}
	return out
}
