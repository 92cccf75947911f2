package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Failure stages.
const (
	StageNavlist  = "navlist"
	StageDocument = "document"
	StagePrompt   = "prompt"
)

type Run struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   time.Time // zero while running
	Version      string
	Provider     string // empty when AI processing was off
	Model        string
	Scopes       string // comma-separated scope keys
	Documents    int
	Prompts      int
	Failed       int
	Pairs        int
	RecordsPath  string
	FinetunePath string
	Status       string
	Error        string
}

type Failure struct {
	RunID     string
	Stage     string
	Subject   string
	Message   string
	CreatedAt time.Time
}
