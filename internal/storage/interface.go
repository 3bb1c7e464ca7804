package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
)

// Storage holds uploaded roster workbooks until ingestion picks them up.
type Storage interface {
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Upload(ctx context.Context, key string, data io.Reader) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// RosterKey builds a collision-free object key for an uploaded roster.
func RosterKey(now time.Time, filename string) string {
	return fmt.Sprintf("rosters/%s/%s-%s", now.UTC().Format("2006/01/02"), uuid.NewString(), path.Base(filename))
}
