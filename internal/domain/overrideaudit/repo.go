package overrideaudit

import (
	"context"

	"github.com/google/uuid"
)

// Repository is insert and list only. There is no update or delete;
// the table is an audit log.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	ListByEpisode(ctx context.Context, episodeID uuid.UUID, limit, offset int) ([]*Entry, int, error)
}
