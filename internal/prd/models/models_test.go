package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "ralphbot/pkg/domain"
	dErrors "ralphbot/pkg/domain-errors"
)

var docNow = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

func newDocWithTasks(t *testing.T, titles ...string) *Document {
	t.Helper()
	d := New(42, id.NewUserID(), docNow)
	for _, title := range titles {
		_, err := d.AddTask(title, docNow)
		require.NoError(t, err)
	}
	return d
}

func orders(d *Document) []int {
	out := make([]int, len(d.Tasks))
	for i, task := range d.Tasks {
		out[i] = task.Order
	}
	return out
}

func TestTaskTransitions(t *testing.T) {
	cases := []struct {
		from    TaskStatus
		to      TaskStatus
		allowed bool
	}{
		{TaskTodo, TaskInProgress, true},
		{TaskTodo, TaskBlocked, true},
		{TaskTodo, TaskDone, true},
		{TaskInProgress, TaskDone, true},
		{TaskInProgress, TaskBlocked, true},
		{TaskInProgress, TaskTodo, true},
		{TaskBlocked, TaskTodo, true},
		{TaskBlocked, TaskInProgress, true},
		{TaskBlocked, TaskDone, false},
		{TaskDone, TaskTodo, true}, // reopen
		{TaskDone, TaskInProgress, false},
		{TaskDone, TaskBlocked, false},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.allowed, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTransitionTask(t *testing.T) {
	t.Run("same status conflicts", func(t *testing.T) {
		d := newDocWithTasks(t, "a")
		_, err := d.TransitionTask(d.Tasks[0].ID, TaskTodo, docNow)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("off-table move is an invariant violation", func(t *testing.T) {
		d := newDocWithTasks(t, "a")
		_, err := d.TransitionTask(d.Tasks[0].ID, TaskDone, docNow)
		require.NoError(t, err)
		_, err = d.TransitionTask(d.Tasks[0].ID, TaskInProgress, docNow)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	t.Run("done reopens to todo", func(t *testing.T) {
		d := newDocWithTasks(t, "a")
		_, err := d.TransitionTask(d.Tasks[0].ID, TaskDone, docNow)
		require.NoError(t, err)
		task, err := d.TransitionTask(d.Tasks[0].ID, TaskTodo, docNow)
		require.NoError(t, err)
		assert.Equal(t, TaskTodo, task.Status)
	})

	t.Run("unknown task", func(t *testing.T) {
		d := newDocWithTasks(t, "a")
		_, err := d.TransitionTask(id.NewTaskID(), TaskDone, docNow)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestTaskOrderStaysDense(t *testing.T) {
	t.Run("add assigns next order", func(t *testing.T) {
		d := newDocWithTasks(t, "a", "b", "c")
		assert.Equal(t, []int{0, 1, 2}, orders(d))
	})

	t.Run("remove closes the gap", func(t *testing.T) {
		d := newDocWithTasks(t, "a", "b", "c")
		require.NoError(t, d.RemoveTask(d.Tasks[1].ID, docNow))
		assert.Equal(t, []int{0, 1}, orders(d))
		assert.Equal(t, "a", d.Tasks[0].Title)
		assert.Equal(t, "c", d.Tasks[1].Title)
	})

	t.Run("move to shifts the rest", func(t *testing.T) {
		d := newDocWithTasks(t, "a", "b", "c")
		require.NoError(t, d.MoveTaskTo(d.Tasks[2].ID, 0, docNow))
		assert.Equal(t, "c", d.Tasks[0].Title)
		assert.Equal(t, "a", d.Tasks[1].Title)
		assert.Equal(t, "b", d.Tasks[2].Title)
		assert.Equal(t, []int{0, 1, 2}, orders(d))
	})

	t.Run("move index out of range", func(t *testing.T) {
		d := newDocWithTasks(t, "a")
		err := d.MoveTaskTo(d.Tasks[0].ID, 3, docNow)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestReorderTasks(t *testing.T) {
	t.Run("applies a full permutation", func(t *testing.T) {
		d := newDocWithTasks(t, "a", "b", "c")
		ids := []id.TaskID{d.Tasks[2].ID, d.Tasks[0].ID, d.Tasks[1].ID}
		require.NoError(t, d.ReorderTasks(ids, docNow))
		assert.Equal(t, "c", d.Tasks[0].Title)
		assert.Equal(t, "a", d.Tasks[1].Title)
		assert.Equal(t, "b", d.Tasks[2].Title)
		assert.Equal(t, []int{0, 1, 2}, orders(d))
	})

	t.Run("rejects missing ids", func(t *testing.T) {
		d := newDocWithTasks(t, "a", "b")
		err := d.ReorderTasks([]id.TaskID{d.Tasks[0].ID}, docNow)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects repeated ids", func(t *testing.T) {
		d := newDocWithTasks(t, "a", "b")
		err := d.ReorderTasks([]id.TaskID{d.Tasks[0].ID, d.Tasks[0].ID}, docNow)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects foreign ids", func(t *testing.T) {
		d := newDocWithTasks(t, "a", "b")
		err := d.ReorderTasks([]id.TaskID{d.Tasks[0].ID, id.NewTaskID()}, docNow)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestRevisions(t *testing.T) {
	d := New(7, id.NewUserID(), docNow)
	require.Nil(t, d.Latest())

	first := d.AddRevision("v1", SourceTemplate, docNow)
	second := d.AddRevision("v2", SourceLLM, docNow.Add(time.Hour))

	assert.Equal(t, 1, first.Number)
	assert.Equal(t, 2, second.Number)
	assert.Equal(t, "v2", d.Latest().Markdown)

	rev, err := d.RevisionByNumber(1)
	require.NoError(t, err)
	assert.Equal(t, "v1", rev.Markdown)

	_, err = d.RevisionByNumber(3)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	_, err = d.RevisionByNumber(0)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}
