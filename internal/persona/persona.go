// Package persona holds the bot's character voices. A persona rewrites
// outgoing text; the registry maps names to personas and the user's
// profile stores the active choice per chat.
//
// Transforms are deterministic (same input, same output) but not
// idempotent, and they never touch URLs or /commands.
package persona

import (
	"sort"
	"strings"
	"sync"

	dErrors "ralphbot/pkg/domain-errors"
)

// Persona is one character voice.
type Persona interface {
	// Name is the registry key users type after /persona.
	Name() string
	// Describe is shown in the persona picker.
	Describe() string
	// Transform rewrites outgoing text in the persona's voice.
	Transform(text string) string
}

// Registry maps persona names to implementations.
type Registry struct {
	mu       sync.RWMutex
	personas map[string]Persona
}

// NewRegistry builds a registry preloaded with the standard cast:
// ralph, the simpsons characters, and mr worm.
func NewRegistry() *Registry {
	r := &Registry{personas: make(map[string]Persona)}
	r.Register(NewRalph())
	for _, character := range SimpsonsCharacters() {
		r.Register(NewSimpsons(character))
	}
	r.Register(NewWorm())
	return r
}

// Register adds or replaces a persona under its name.
func (r *Registry) Register(p Persona) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.personas[strings.ToLower(p.Name())] = p
}

// Get looks a persona up by name, case-insensitively.
func (r *Registry) Get(name string) (Persona, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.personas[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "unknown persona: %s", name)
	}
	return p, nil
}

// Names lists registered personas sorted for stable display.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.personas))
	for name := range r.personas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// protectedToken reports whether a token must survive transformation
// untouched: URLs and bot commands carry meaning a voice must not bend.
func protectedToken(token string) bool {
	lower := strings.ToLower(token)
	return strings.HasPrefix(token, "/") ||
		strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "www.")
}

// mapWords applies fn to each whitespace-separated token that is not
// protected, preserving the original spacing-insensitive structure.
func mapWords(text string, fn func(word string) string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	tokens := strings.Fields(text)
	for i, token := range tokens {
		if protectedToken(token) {
			continue
		}
		tokens[i] = fn(token)
	}
	return strings.Join(tokens, " ")
}

// matchCase shapes replacement to the casing of original: all-caps
// stays all-caps, a capitalized word keeps its capital.
func matchCase(original, replacement string) string {
	if original == strings.ToUpper(original) && len(original) > 1 {
		return strings.ToUpper(replacement)
	}
	if original != "" && original[0] >= 'A' && original[0] <= 'Z' && replacement != "" {
		return strings.ToUpper(replacement[:1]) + replacement[1:]
	}
	return replacement
}

// splitPunct separates a token into its core word and trailing
// punctuation so substitutions match dictionary entries.
func splitPunct(token string) (core, trailing string) {
	end := len(token)
	for end > 0 && strings.ContainsRune(".,!?;:'\"", rune(token[end-1])) {
		end--
	}
	return token[:end], token[end:]
}
