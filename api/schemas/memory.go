package schemas

import "time"

// CachedAction is the replayable core of an AgentAction.
type CachedAction struct {
	Type   ActionType `json:"type"`
	Target *Target    `json:"target,omitempty"`
	Value  string     `json:"value,omitempty"`
}

// CachedActionSequence is an action sequence recorded from a run.
type CachedActionSequence struct {
	ID         string         `json:"id"`
	ScenarioID string         `json:"scenarioId"`
	Actions    []CachedAction `json:"actions"`
	Success    bool           `json:"success"`
	Timestamp  time.Time      `json:"timestamp"`
}

// LessonLearned is a note extracted from a failed run.
type LessonLearned struct {
	ID         string    `json:"id"`
	ScenarioID string    `json:"scenarioId"`
	Lesson     string    `json:"lesson"`
	Timestamp  time.Time `json:"timestamp"`
}
