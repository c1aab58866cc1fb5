// Package memory implements the cross-run action cache and lesson store.
//
// Both lists are bounded rings shared by every scenario and persisted whole
// through a Backend. Reads happen once when the store is opened; writes
// rewrite the full list on Finalize. Two processes finalizing against the same
// backend race and the last writer wins.
package memory

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/xkilldash9x/uiprobe/api/schemas"
	"github.com/xkilldash9x/uiprobe/internal/llmutil"
)

const (
	DefaultCacheCapacity  = 20
	DefaultLessonCapacity = 50

	hintSteps        = 5
	lessonsShown     = 3
	confusionPhrases = 2
	minLessonSteps   = 3
	phraseMaxRunes   = 80
)

var digitRun = regexp.MustCompile(`\d+`)

// Options sizes the two rings.
type Options struct {
	CacheCapacity  int
	LessonCapacity int
}

// Outcome is everything Finalize needs to know about a finished run.
type Outcome struct {
	ScenarioID       string
	Success          bool
	Steps            int
	Recorded         []schemas.CachedAction
	FailedTargets    []string
	ConfusionSignals []string
}

// Store holds the in-memory rings and writes them back through a Backend.
type Store struct {
	backend   Backend
	logger    *zap.Logger
	mu        sync.Mutex
	sequences *Ring[schemas.CachedActionSequence]
	lessons   *Ring[schemas.LessonLearned]

	now   func() time.Time
	newID func() string
}

// Open loads both lists from backend. A list that cannot be read is logged and
// treated as empty; Open itself never fails.
func Open(ctx context.Context, backend Backend, opts Options, logger *zap.Logger) *Store {
	if opts.CacheCapacity <= 0 {
		opts.CacheCapacity = DefaultCacheCapacity
	}
	if opts.LessonCapacity <= 0 {
		opts.LessonCapacity = DefaultLessonCapacity
	}
	log := logger.Named("memory")

	seqs, err := backend.LoadSequences(ctx)
	if err != nil {
		log.Warn("Action cache unreadable, starting empty.", zap.Error(err))
		seqs = nil
	}
	lessons, err := backend.LoadLessons(ctx)
	if err != nil {
		log.Warn("Lesson store unreadable, starting empty.", zap.Error(err))
		lessons = nil
	}

	sort.SliceStable(seqs, func(i, j int) bool { return seqs[i].Timestamp.Before(seqs[j].Timestamp) })
	sort.SliceStable(lessons, func(i, j int) bool { return lessons[i].Timestamp.Before(lessons[j].Timestamp) })

	s := &Store{
		backend:   backend,
		logger:    log,
		sequences: NewRing(opts.CacheCapacity, seqs...),
		lessons:   NewRing(opts.LessonCapacity, lessons...),
		now:       time.Now,
		newID:     func() string { return ulid.Make().String() },
	}
	log.Debug("Memory loaded.",
		zap.Int("sequences", s.sequences.Len()),
		zap.Int("lessons", s.lessons.Len()))
	return s
}

// GetCachedHint renders up to the first five steps of the most recent
// successful sequence recorded for scenarioID, or "" when there is none.
func (s *Store) GetCachedHint(scenarioID string) string {
	s.mu.Lock()
	items := s.sequences.Items()
	s.mu.Unlock()

	for i := len(items) - 1; i >= 0; i-- {
		seq := items[i]
		if seq.ScenarioID != scenarioID || !seq.Success {
			continue
		}
		var b strings.Builder
		for n, a := range seq.Actions {
			if n == hintSteps {
				break
			}
			if n > 0 {
				b.WriteByte('\n')
			}
			fmt.Fprintf(&b, "%d. %s", n+1, a.Type)
			if name := a.Target.DisplayName(); name != "" {
				fmt.Fprintf(&b, " %q", name)
			}
			if a.Value != "" {
				fmt.Fprintf(&b, " = %q", a.Value)
			}
		}
		return b.String()
	}
	return ""
}

// Lessons returns up to three of the most recent lessons for scenarioID,
// newest first.
func (s *Store) Lessons(scenarioID string) []string {
	s.mu.Lock()
	items := s.lessons.Items()
	s.mu.Unlock()

	var out []string
	for i := len(items) - 1; i >= 0 && len(out) < lessonsShown; i-- {
		if items[i].ScenarioID == scenarioID {
			out = append(out, items[i].Lesson)
		}
	}
	return out
}

// GetLessons renders Lessons as a bulleted block, or "" when there are none.
func (s *Store) GetLessons(scenarioID string) string {
	lessons := s.Lessons(scenarioID)
	if len(lessons) == 0 {
		return ""
	}
	return "- " + strings.Join(lessons, "\n- ")
}

// Sequences returns a copy of the action cache, oldest first.
func (s *Store) Sequences() []schemas.CachedActionSequence {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequences.Items()
}

// AllLessons returns a copy of the lesson store, oldest first.
func (s *Store) AllLessons() []schemas.LessonLearned {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lessons.Items()
}

// Finalize records the outcome of a run. A successful run with recorded steps
// becomes a cached sequence; a failed run longer than three steps that left
// failed targets or confusion signals becomes a lesson. The affected list is
// rewritten through the backend.
func (s *Store) Finalize(ctx context.Context, out Outcome) error {
	switch {
	case out.Success && len(out.Recorded) > 0:
		actions := make([]schemas.CachedAction, len(out.Recorded))
		copy(actions, out.Recorded)

		s.mu.Lock()
		s.sequences.Push(schemas.CachedActionSequence{
			ID:         s.newID(),
			ScenarioID: out.ScenarioID,
			Actions:    actions,
			Success:    true,
			Timestamp:  s.now().UTC(),
		})
		snapshot := s.sequences.Items()
		s.mu.Unlock()

		if err := s.backend.SaveSequences(ctx, snapshot); err != nil {
			return fmt.Errorf("failed to persist action cache: %w", err)
		}
		s.logger.Info("Cached successful action sequence.",
			zap.String("scenario_id", out.ScenarioID), zap.Int("actions", len(actions)))

	case !out.Success && out.Steps > minLessonSteps && (len(out.FailedTargets) > 0 || len(out.ConfusionSignals) > 0):
		lesson := DeriveLesson(out.FailedTargets, out.ConfusionSignals)
		if lesson == "" {
			return nil
		}

		s.mu.Lock()
		s.lessons.Push(schemas.LessonLearned{
			ID:         s.newID(),
			ScenarioID: out.ScenarioID,
			Lesson:     lesson,
			Timestamp:  s.now().UTC(),
		})
		snapshot := s.lessons.Items()
		s.mu.Unlock()

		if err := s.backend.SaveLessons(ctx, snapshot); err != nil {
			return fmt.Errorf("failed to persist lessons: %w", err)
		}
		s.logger.Info("Recorded lesson from failed run.",
			zap.String("scenario_id", out.ScenarioID), zap.String("lesson", lesson))
	}
	return nil
}

// DeriveLesson joins the distinct failing target names with up to two
// distinct confusion phrases. Digit runs are folded to "N" before comparing
// phrases so "same screen 3 times" and "same screen 4 times" count once.
func DeriveLesson(failedTargets, signals []string) string {
	var parts []string

	seen := make(map[string]bool)
	var targets []string
	for _, t := range failedTargets {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		targets = append(targets, fmt.Sprintf("%q", t))
	}
	if len(targets) > 0 {
		parts = append(parts, "Interactions that failed: "+strings.Join(targets, ", ")+".")
	}

	seen = make(map[string]bool)
	var phrases []string
	for _, sig := range signals {
		p := llmutil.Truncate(digitRun.ReplaceAllString(strings.TrimSpace(sig), "N"), phraseMaxRunes)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		phrases = append(phrases, p)
		if len(phrases) == confusionPhrases {
			break
		}
	}
	if len(phrases) > 0 {
		parts = append(parts, "Confusion observed: "+strings.Join(phrases, "; ")+".")
	}
	return strings.Join(parts, " ")
}
