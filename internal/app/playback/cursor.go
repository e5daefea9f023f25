package playback

import (
	"sync"

	"github.com/osa030/guildbox/internal/domain/track"
)

// CursorPosition is the state captured when a batch fetch begins.
type CursorPosition struct {
	SourceRef  string
	Title      string
	Offset     int // 1-based start of the batch
	Requester  track.Requester
	generation uint64
}

// PlaylistCursor tracks incremental loading of one open playlist.
// At most one fetch is in flight per opened playlist.
type PlaylistCursor struct {
	mu         sync.Mutex
	sourceRef  string
	title      string
	nextOffset int
	loading    bool
	requester  track.Requester
	generation uint64
}

// NewPlaylistCursor creates an inactive cursor.
func NewPlaylistCursor() *PlaylistCursor {
	return &PlaylistCursor{}
}

// Open points the cursor at a playlist whose next batch starts at offset.
// Any fetch still in flight for a previous playlist becomes stale.
func (c *PlaylistCursor) Open(sourceRef, title string, offset int, requester track.Requester) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.sourceRef = sourceRef
	c.title = title
	c.nextOffset = offset
	c.requester = requester
	c.loading = false
}

// Reset deactivates the cursor. A fetch in flight is discarded when it completes.
func (c *PlaylistCursor) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.clearLocked()
}

// Active reports whether more batches may be fetched.
func (c *PlaylistCursor) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sourceRef != ""
}

// Loading reports whether a fetch is in flight.
func (c *PlaylistCursor) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Position returns the current source and next offset.
func (c *PlaylistCursor) Position() (CursorPosition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sourceRef == "" {
		return CursorPosition{}, false
	}
	return c.positionLocked(), true
}

// TryBeginLoad marks a fetch as in flight and returns where it should start.
// It fails when the cursor is inactive or a fetch is already running.
func (c *PlaylistCursor) TryBeginLoad() (CursorPosition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sourceRef == "" || c.loading {
		return CursorPosition{}, false
	}
	c.loading = true
	return c.positionLocked(), true
}

// Finish ends the fetch started at pos. When the cursor still refers to the same
// playlist, apply is called with the fetched tracks under the cursor lock and the
// offset advances by their count; an empty batch or a non-nil err clears the cursor.
// It reports whether the result was applied.
func (c *PlaylistCursor) Finish(pos CursorPosition, tracks []track.Track, err error, apply func([]track.Track)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pos.generation != c.generation {
		return false
	}
	c.loading = false

	if err != nil || len(tracks) == 0 {
		c.clearLocked()
		return false
	}

	apply(tracks)
	c.nextOffset += len(tracks)
	return true
}

func (c *PlaylistCursor) positionLocked() CursorPosition {
	return CursorPosition{
		SourceRef:  c.sourceRef,
		Title:      c.title,
		Offset:     c.nextOffset,
		Requester:  c.requester,
		generation: c.generation,
	}
}

func (c *PlaylistCursor) clearLocked() {
	c.sourceRef = ""
	c.title = ""
	c.nextOffset = 0
	c.loading = false
	c.requester = track.Requester{}
}
