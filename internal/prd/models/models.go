// Package models defines the PRD aggregate: a per-chat document with an
// append-only revision history and a task list parsed from its Features
// section.
package models

import (
	"strings"
	"time"

	id "ralphbot/pkg/domain"
	dErrors "ralphbot/pkg/domain-errors"
)

// Source records which path produced a revision's markdown.
type Source string

const (
	SourceTemplate Source = "template"
	SourceLLM      Source = "llm"
)

// TaskStatus is the lifecycle state of one task.
type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in_progress"
	TaskDone       TaskStatus = "done"
	TaskBlocked    TaskStatus = "blocked"
)

// ParseTaskStatus validates external input into a TaskStatus.
func ParseTaskStatus(s string) (TaskStatus, error) {
	st := TaskStatus(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := taskTransitions[st]; ok {
		return st, nil
	}
	return "", dErrors.Newf(dErrors.CodeInvalidInput, "unknown task status: %s", s)
}

// taskTransitions is the lifecycle table. Done is terminal except for a
// reopen back to todo.
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskTodo:       {TaskInProgress, TaskBlocked, TaskDone},
	TaskInProgress: {TaskDone, TaskBlocked, TaskTodo},
	TaskBlocked:    {TaskTodo, TaskInProgress},
	TaskDone:       {TaskTodo},
}

// CanTransitionTo reports whether the table allows status -> target.
func (s TaskStatus) CanTransitionTo(target TaskStatus) bool {
	for _, allowed := range taskTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Task is one actionable item derived from a PRD feature bullet.
type Task struct {
	ID     id.TaskID  `json:"id"`
	Title  string     `json:"title"`
	Status TaskStatus `json:"status"`
	Order  int        `json:"order"`
}

// Revision is one immutable generation of the PRD markdown. Numbers
// start at 1 and grow by one per generation.
type Revision struct {
	Number    int       `json:"number"`
	Markdown  string    `json:"markdown"`
	Source    Source    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// Document is the per-chat PRD aggregate: the latest markdown, its full
// revision history, and the task list.
type Document struct {
	ID        id.DocumentID `json:"id"`
	ChatID    int64         `json:"chat_id"`
	UserID    id.UserID     `json:"user_id"`
	Revisions []Revision    `json:"revisions"`
	Tasks     []Task        `json:"tasks"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// New starts an empty document for a chat.
func New(chatID int64, userID id.UserID, now time.Time) *Document {
	return &Document{
		ID:        id.NewDocumentID(),
		ChatID:    chatID,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Latest returns the newest revision, or nil when none exists.
func (d *Document) Latest() *Revision {
	if len(d.Revisions) == 0 {
		return nil
	}
	return &d.Revisions[len(d.Revisions)-1]
}

// RevisionByNumber looks a revision up by its 1-based number.
func (d *Document) RevisionByNumber(n int) (*Revision, error) {
	if n < 1 || n > len(d.Revisions) {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "revision %d not found", n)
	}
	return &d.Revisions[n-1], nil
}

// AddRevision appends a new generation of the markdown.
func (d *Document) AddRevision(markdown string, source Source, now time.Time) Revision {
	rev := Revision{
		Number:    len(d.Revisions) + 1,
		Markdown:  markdown,
		Source:    source,
		CreatedAt: now,
	}
	d.Revisions = append(d.Revisions, rev)
	d.UpdatedAt = now
	return rev
}

// findTask returns the index of the task, or an error.
func (d *Document) findTask(taskID id.TaskID) (int, error) {
	for i := range d.Tasks {
		if d.Tasks[i].ID == taskID {
			return i, nil
		}
	}
	return 0, dErrors.Newf(dErrors.CodeNotFound, "task %s not found", taskID)
}

// TaskByID returns a copy of the task.
func (d *Document) TaskByID(taskID id.TaskID) (Task, error) {
	i, err := d.findTask(taskID)
	if err != nil {
		return Task{}, err
	}
	return d.Tasks[i], nil
}

// AddTask appends a todo task at the end of the list.
func (d *Document) AddTask(title string, now time.Time) (Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Task{}, dErrors.New(dErrors.CodeInvalidInput, "task title is required")
	}
	t := Task{
		ID:     id.NewTaskID(),
		Title:  title,
		Status: TaskTodo,
		Order:  len(d.Tasks),
	}
	d.Tasks = append(d.Tasks, t)
	d.UpdatedAt = now
	return t, nil
}

// RemoveTask deletes a task and closes the order gap it leaves.
func (d *Document) RemoveTask(taskID id.TaskID, now time.Time) error {
	i, err := d.findTask(taskID)
	if err != nil {
		return err
	}
	d.Tasks = append(d.Tasks[:i], d.Tasks[i+1:]...)
	d.redensify()
	d.UpdatedAt = now
	return nil
}

// TransitionTask moves a task to the target status per the lifecycle
// table.
func (d *Document) TransitionTask(taskID id.TaskID, target TaskStatus, now time.Time) (Task, error) {
	i, err := d.findTask(taskID)
	if err != nil {
		return Task{}, err
	}
	current := d.Tasks[i].Status
	if current == target {
		return Task{}, dErrors.Newf(dErrors.CodeConflict, "task already %s", target)
	}
	if !current.CanTransitionTo(target) {
		return Task{}, dErrors.Newf(dErrors.CodeInvariantViolation, "cannot move task from %s to %s", current, target)
	}
	d.Tasks[i].Status = target
	d.UpdatedAt = now
	return d.Tasks[i], nil
}

// MoveTaskTo places the task at the given index, shifting the rest.
func (d *Document) MoveTaskTo(taskID id.TaskID, index int, now time.Time) error {
	i, err := d.findTask(taskID)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(d.Tasks) {
		return dErrors.Newf(dErrors.CodeInvalidInput, "index %d out of range for %d tasks", index, len(d.Tasks))
	}
	t := d.Tasks[i]
	rest := append(d.Tasks[:i:i], d.Tasks[i+1:]...)
	d.Tasks = append(rest[:index:index], append([]Task{t}, rest[index:]...)...)
	d.redensify()
	d.UpdatedAt = now
	return nil
}

// ReorderTasks rearranges the list to match ids, which must be a
// permutation of the current task IDs.
func (d *Document) ReorderTasks(ids []id.TaskID, now time.Time) error {
	if len(ids) != len(d.Tasks) {
		return dErrors.Newf(dErrors.CodeInvalidInput, "reorder lists %d ids but document has %d tasks", len(ids), len(d.Tasks))
	}
	byID := make(map[id.TaskID]Task, len(d.Tasks))
	for _, t := range d.Tasks {
		byID[t.ID] = t
	}
	reordered := make([]Task, 0, len(ids))
	for _, taskID := range ids {
		t, ok := byID[taskID]
		if !ok {
			return dErrors.Newf(dErrors.CodeInvalidInput, "reorder names unknown or repeated task %s", taskID)
		}
		delete(byID, taskID)
		reordered = append(reordered, t)
	}
	d.Tasks = reordered
	d.redensify()
	d.UpdatedAt = now
	return nil
}

// ReplaceTasks swaps the list wholesale, used when regeneration reparses
// the Features section.
func (d *Document) ReplaceTasks(titles []string, now time.Time) {
	tasks := make([]Task, 0, len(titles))
	for i, title := range titles {
		tasks = append(tasks, Task{
			ID:     id.NewTaskID(),
			Title:  title,
			Status: TaskTodo,
			Order:  i,
		})
	}
	d.Tasks = tasks
	d.UpdatedAt = now
}

// redensify restores the dense 0..n-1 order invariant.
func (d *Document) redensify() {
	for i := range d.Tasks {
		d.Tasks[i].Order = i
	}
}
