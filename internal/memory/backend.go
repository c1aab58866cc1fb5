package memory

import (
	"context"

	"github.com/xkilldash9x/uiprobe/api/schemas"
)

// Backend persists the two flat memory lists. Saves replace the whole list.
type Backend interface {
	LoadSequences(ctx context.Context) ([]schemas.CachedActionSequence, error)
	SaveSequences(ctx context.Context, sequences []schemas.CachedActionSequence) error
	LoadLessons(ctx context.Context) ([]schemas.LessonLearned, error)
	SaveLessons(ctx context.Context, lessons []schemas.LessonLearned) error
}
