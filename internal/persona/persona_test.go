package persona

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "ralphbot/pkg/domain-errors"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	t.Run("lookup is case-insensitive", func(t *testing.T) {
		p, err := r.Get("  RaLpH ")
		require.NoError(t, err)
		assert.Equal(t, "ralph", p.Name())
	})

	t.Run("unknown persona is not found", func(t *testing.T) {
		_, err := r.Get("milhouse")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("names are sorted and include the full cast", func(t *testing.T) {
		names := r.Names()
		assert.True(t, sort.StringsAreSorted(names))
		for _, want := range []string{"ralph", "worm", "homer", "bart", "lisa", "marge", "burns"} {
			assert.Contains(t, names, want)
		}
	})
}

func TestRalphTransform(t *testing.T) {
	p := NewRalph()

	t.Run("misspells table words and keeps casing", func(t *testing.T) {
		out := p.Transform("That is Impossible, the electricity failed.")
		assert.Contains(t, out, "Unpossible,")
		assert.Contains(t, out, "lectricity")
		assert.NotContains(t, out, "Impossible")
	})

	t.Run("is deterministic", func(t *testing.T) {
		text := "my favorite sandwich has spaghetti on it"
		assert.Equal(t, p.Transform(text), p.Transform(text))
	})

	t.Run("leaves urls and commands alone", func(t *testing.T) {
		out := p.Transform("run /feedback or open https://impossible.example/library now")
		assert.Contains(t, out, "/feedback")
		assert.Contains(t, out, "https://impossible.example/library")
	})

	t.Run("empty input is unchanged", func(t *testing.T) {
		assert.Equal(t, "", p.Transform(""))
		assert.Equal(t, "   ", p.Transform("   "))
	})
}

func TestSimpsonsTransform(t *testing.T) {
	t.Run("swaps character vocabulary", func(t *testing.T) {
		homer := NewSimpsons("homer")
		out := homer.Transform("this beer is great")
		assert.Contains(t, out, "duff")
		assert.Contains(t, out, "excellent")
	})

	t.Run("each character speaks differently", func(t *testing.T) {
		text := "good work on the export, that was good"
		lisa := NewSimpsons("lisa")
		burns := NewSimpsons("burns")
		assert.Contains(t, lisa.Transform(text), "commendable")
		assert.Contains(t, burns.Transform(text), "adequate")
	})

	t.Run("is deterministic per character", func(t *testing.T) {
		bart := NewSimpsons("bart")
		text := "wow, my friend fixed it"
		assert.Equal(t, bart.Transform(text), bart.Transform(text))
	})

	t.Run("unknown character falls back to homer", func(t *testing.T) {
		p := NewSimpsons("maggie")
		assert.Equal(t, "homer", p.Name())
	})
}

func TestWorm(t *testing.T) {
	t.Run("starts obedient and toggles per chat", func(t *testing.T) {
		w := NewWorm()
		assert.Equal(t, MoodObedient, w.Mood(1))
		assert.Equal(t, MoodDefiant, w.Toggle(1))
		assert.Equal(t, MoodDefiant, w.Mood(1))
		assert.Equal(t, MoodObedient, w.Mood(2), "other chats keep their own mood")
		assert.Equal(t, MoodObedient, w.Toggle(1))
	})

	t.Run("frames replies by mood", func(t *testing.T) {
		w := NewWorm()
		assert.True(t, strings.HasPrefix(w.TransformFor(7, "the queue is empty"), "yes boss, "))
		w.Toggle(7)
		assert.True(t, strings.HasPrefix(w.TransformFor(7, "the queue is empty"), "mr worm does not feel like it. "))
	})

	t.Run("empty input stays empty", func(t *testing.T) {
		w := NewWorm()
		assert.Equal(t, "", w.TransformFor(7, ""))
	})
}
