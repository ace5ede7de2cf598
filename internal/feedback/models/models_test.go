package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "ralphbot/pkg/domain"
	dErrors "ralphbot/pkg/domain-errors"
)

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newEntry(t *testing.T) *Feedback {
	t.Helper()
	f, err := New(id.NewUserID(), 42, KindBug, SeverityHigh, "the bot repeats itself", testNow)
	require.NoError(t, err)
	return f
}

func TestNew(t *testing.T) {
	t.Run("valid entry starts pending with a fingerprint", func(t *testing.T) {
		f := newEntry(t)
		assert.Equal(t, StatusPending, f.Status)
		assert.NotEmpty(t, f.Fingerprint)
		assert.Equal(t, 0, f.Votes)
		assert.Nil(t, f.CanonicalID)
		assert.Equal(t, testNow, f.CreatedAt)
	})

	t.Run("empty text is rejected", func(t *testing.T) {
		_, err := New(id.NewUserID(), 42, KindBug, SeverityHigh, "  !!! ", testNow)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("nil author violates the invariant", func(t *testing.T) {
		_, err := New(id.UserID{}, 42, KindBug, SeverityHigh, "text", testNow)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("restyled text fingerprints identically", func(t *testing.T) {
		a, err := New(id.NewUserID(), 1, KindBug, SeverityLow, "The bot, repeats itself!", testNow)
		require.NoError(t, err)
		b, err := New(id.NewUserID(), 2, KindBug, SeverityLow, "the   bot repeats itself", testNow)
		require.NoError(t, err)
		assert.Equal(t, a.Fingerprint, b.Fingerprint)
	})
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusPending, StatusTriaged, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusDuplicate, true},
		{StatusPending, StatusAccepted, false},
		{StatusPending, StatusResolved, false},
		{StatusTriaged, StatusAccepted, true},
		{StatusTriaged, StatusRejected, true},
		{StatusTriaged, StatusDuplicate, true},
		{StatusTriaged, StatusInProgress, false},
		{StatusAccepted, StatusInProgress, true},
		{StatusAccepted, StatusRejected, true},
		{StatusAccepted, StatusTriaged, false},
		{StatusInProgress, StatusResolved, true},
		{StatusInProgress, StatusAccepted, true},
		{StatusInProgress, StatusRejected, false},
		{StatusResolved, StatusPending, false},
		{StatusResolved, StatusInProgress, false},
		{StatusRejected, StatusPending, true},
		{StatusRejected, StatusTriaged, false},
		{StatusDuplicate, StatusPending, true},
		{StatusDuplicate, StatusTriaged, false},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.allowed, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTransitionTo(t *testing.T) {
	t.Run("same status is a conflict", func(t *testing.T) {
		f := newEntry(t)
		err := f.TransitionTo(StatusPending, testNow)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("off-table move violates the invariant", func(t *testing.T) {
		f := newEntry(t)
		err := f.TransitionTo(StatusResolved, testNow)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		assert.Equal(t, StatusPending, f.Status)
	})

	t.Run("triaged_at is set on first triage only", func(t *testing.T) {
		f := newEntry(t)
		first := testNow.Add(time.Hour)
		require.NoError(t, f.TransitionTo(StatusTriaged, first))
		require.NotNil(t, f.TriagedAt)
		assert.Equal(t, first, *f.TriagedAt)

		require.NoError(t, f.TransitionTo(StatusRejected, first.Add(time.Hour)))
		require.NoError(t, f.TransitionTo(StatusPending, first.Add(2*time.Hour)))
		require.NoError(t, f.TransitionTo(StatusTriaged, first.Add(3*time.Hour)))
		assert.Equal(t, first, *f.TriagedAt, "second triage keeps the original timestamp")
	})

	t.Run("resolved is terminal and stamps resolved_at", func(t *testing.T) {
		f := newEntry(t)
		require.NoError(t, f.TransitionTo(StatusTriaged, testNow))
		require.NoError(t, f.TransitionTo(StatusAccepted, testNow))
		require.NoError(t, f.TransitionTo(StatusInProgress, testNow))
		later := testNow.Add(time.Hour)
		require.NoError(t, f.TransitionTo(StatusResolved, later))
		require.NotNil(t, f.ResolvedAt)
		assert.Equal(t, later, *f.ResolvedAt)
		assert.True(t, f.Status.IsTerminal())
	})

	t.Run("updated_at refreshes on every applied transition", func(t *testing.T) {
		f := newEntry(t)
		later := testNow.Add(time.Minute)
		require.NoError(t, f.TransitionTo(StatusTriaged, later))
		assert.Equal(t, later, f.UpdatedAt)
	})
}

func TestDuplicate(t *testing.T) {
	t.Run("duplicate requires a distinct, non-duplicate canonical", func(t *testing.T) {
		f := newEntry(t)

		err := f.CanMarkDuplicate(f)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

		canonical := newEntry(t)
		canonical.Status = StatusDuplicate
		err = f.CanMarkDuplicate(canonical)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("leaving duplicate clears the canonical pointer", func(t *testing.T) {
		f := newEntry(t)
		canonical := newEntry(t)
		require.NoError(t, f.CanMarkDuplicate(canonical))
		f.ApplyDuplicate(canonical.ID, testNow)
		require.NotNil(t, f.CanonicalID)
		assert.Equal(t, canonical.ID, *f.CanonicalID)

		require.NoError(t, f.TransitionTo(StatusPending, testNow.Add(time.Hour)))
		assert.Nil(t, f.CanonicalID)
	})
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Hello, World!", "hello world"},
		{"  spaced   out  ", "spaced out"},
		{"UPPER-case_mix", "upper case mix"},
		{"!!!", ""},
		{"émoji ünicode", "émoji ünicode"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Normalize(tc.in))
	}
}

func TestParsers(t *testing.T) {
	_, err := ParseKind("nonsense")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	kind, err := ParseKind(" Bug ")
	require.NoError(t, err)
	assert.Equal(t, KindBug, kind)

	_, err = ParseStatus("archived")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

	status, err := ParseStatus("IN_PROGRESS")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, status)

	sev, err := ParseSeverity("critical")
	require.NoError(t, err)
	assert.Equal(t, SeverityCritical, sev)
}
