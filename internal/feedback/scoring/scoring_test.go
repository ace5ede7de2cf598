package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ralphbot/internal/feedback/models"
	id "ralphbot/pkg/domain"
)

var scoreNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func entry(t *testing.T, kind models.Kind, severity models.Severity) *models.Feedback {
	t.Helper()
	f, err := models.New(id.NewUserID(), 1, kind, severity, "something happened", scoreNow)
	require.NoError(t, err)
	return f
}

func TestScore(t *testing.T) {
	t.Run("fresh medium bug scores kindWeight*severity*10", func(t *testing.T) {
		f := entry(t, models.KindBug, models.SeverityMedium)
		// 3.0 * 1.0 * 1.0 * 10
		assert.InDelta(t, 30.0, Score(f, 1.0, scoreNow), 0.001)
	})

	t.Run("severity scales the kind weight", func(t *testing.T) {
		critical := entry(t, models.KindBug, models.SeverityCritical)
		low := entry(t, models.KindBug, models.SeverityLow)
		assert.InDelta(t, 60.0, Score(critical, 1.0, scoreNow), 0.001)
		assert.InDelta(t, 15.0, Score(low, 1.0, scoreNow), 0.001)
	})

	t.Run("votes boost logarithmically", func(t *testing.T) {
		f := entry(t, models.KindFeature, models.SeverityMedium)
		base := Score(f, 1.0, scoreNow)

		f.Votes = 1 // 0.5*log2(2) = 0.5 -> +5 scaled
		assert.InDelta(t, base+5.0, Score(f, 1.0, scoreNow), 0.001)

		f.Votes = 3 // 0.5*log2(4) = 1.0 -> +10 scaled
		assert.InDelta(t, base+10.0, Score(f, 1.0, scoreNow), 0.001)
	})

	t.Run("quality multiplier scales the base but not the age boost", func(t *testing.T) {
		f := entry(t, models.KindBug, models.SeverityMedium)
		twoDays := scoreNow.Add(49 * time.Hour)
		// (3.0*1.5 + 0.2) * 10 = 47
		assert.InDelta(t, 47.0, Score(f, 1.5, twoDays), 0.001)
	})

	t.Run("age boost caps at one point", func(t *testing.T) {
		f := entry(t, models.KindQuestion, models.SeverityLow)
		year := scoreNow.Add(365 * 24 * time.Hour)
		// 1.0*0.5*1.0 = 0.5, + capped 1.0 -> 15
		assert.InDelta(t, 15.0, Score(f, 1.0, year), 0.001)
	})

	t.Run("zero multiplier falls back to standard", func(t *testing.T) {
		f := entry(t, models.KindBug, models.SeverityMedium)
		assert.Equal(t, Score(f, 1.0, scoreNow), Score(f, 0, scoreNow))
	})

	t.Run("clock before creation adds no age boost", func(t *testing.T) {
		f := entry(t, models.KindBug, models.SeverityMedium)
		past := scoreNow.Add(-48 * time.Hour)
		assert.InDelta(t, 30.0, Score(f, 1.0, past), 0.001)
	})

	t.Run("score stays within 0..100", func(t *testing.T) {
		f := entry(t, models.KindBug, models.SeverityCritical)
		f.Votes = 1 << 20
		score := Score(f, 1.5, scoreNow.Add(100*24*time.Hour))
		assert.LessOrEqual(t, score, 100.0)
		assert.GreaterOrEqual(t, score, 0.0)
	})

	t.Run("deterministic for equal inputs", func(t *testing.T) {
		f := entry(t, models.KindImprovement, models.SeverityHigh)
		f.Votes = 7
		at := scoreNow.Add(3 * 24 * time.Hour)
		assert.Equal(t, Score(f, 0.5, at), Score(f, 0.5, at))
	})
}
