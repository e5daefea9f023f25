package filter

import (
	"context"
	"regexp"
	"strings"

	"github.com/osa030/guildbox/internal/domain/track"
)

// DuplicateTrackFilter checks for duplicate tracks in the queue.
// Detects:
// - Exact page URL matches
// - Re-uploads and alternate versions (normalized title + same uploader)
// Excludes:
// - Covers (same title but different uploader)
type DuplicateTrackFilter struct{}

// NewDuplicateTrackFilter creates a new duplicate track filter.
func NewDuplicateTrackFilter() *DuplicateTrackFilter {
	return &DuplicateTrackFilter{}
}

// Name returns the filter name.
func (f *DuplicateTrackFilter) Name() string {
	return "duplicate_track_filter"
}

// Description returns the filter description.
func (f *DuplicateTrackFilter) Description() string {
	return "Rejects tracks already in the queue, including remasters and alternate uploads. Covers are allowed"
}

// ReturnCodes returns possible return codes.
func (f *DuplicateTrackFilter) ReturnCodes() []string {
	return []string{"duplicate_track"}
}

// AppliesTo returns which request kinds this filter applies to.
func (f *DuplicateTrackFilter) AppliesTo(kind RequestKind) bool {
	// Playlists may legitimately repeat entries
	return kind == RequestSingle
}

// ValidateConfig validates the filter configuration.
func (f *DuplicateTrackFilter) ValidateConfig(config map[string]any) error {
	// No configuration needed
	return nil
}

// Check checks if the track is a duplicate.
func (f *DuplicateTrackFilter) Check(ctx context.Context, req TrackRequest, requested track.Track) Result {
	for _, queued := range req.Queued {
		// 1. Exact page match
		if queued.WebpageURL != "" && queued.WebpageURL == requested.WebpageURL {
			return Reject("duplicate_track")
		}

		// 2. Alternate version: normalized title + same uploader
		if isAlternateVersion(queued, requested) {
			return Reject("duplicate_track")
		}
	}

	return Accept()
}

// isAlternateVersion checks if two tracks are the same song in a different upload.
// Returns true if:
// - Normalized titles match
// - Uploader is the same
func isAlternateVersion(track1, track2 track.Track) bool {
	name1 := normalizeTrackName(track1.Title)
	name2 := normalizeTrackName(track2.Title)

	if name1 == "" || name1 != name2 {
		return false
	}

	// Different uploaders: treat as a cover (allowed)
	return isSameUploader(track1, track2)
}

var (
	remasterPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*-?\s*\d{4}\s+remaster(ed)?`),      // "- 2011 Remaster"
		regexp.MustCompile(`\s*\(remaster(ed)?\s*\d{0,4}\)`),     // "(Remastered 2023)"
		regexp.MustCompile(`\s*\[remaster(ed)?\s*\d{0,4}\]`),     // "[Remastered]"
		regexp.MustCompile(`\s*-?\s*remaster(ed)?(\s+version)?`), // "- Remastered"
		regexp.MustCompile(`\s*\(.*?remaster.*?\)`),              // "(Any Remaster text)"
		regexp.MustCompile(`\s*\[.*?remaster.*?\]`),              // "[Any Remaster text]"
	}

	versionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*[\(\[]official\s+(music\s+)?(video|audio)[\)\]]`), // "(Official Music Video)"
		regexp.MustCompile(`\s*[\(\[](hd|hq|4k)[\)\]]`),                          // "[HD]"
		regexp.MustCompile(`\s*[\(\[]lyrics?(\s+video)?[\)\]]`),                  // "(Lyric Video)"
		regexp.MustCompile(`\s*[\(\[]audio[\)\]]`),                               // "(Audio)"
		regexp.MustCompile(`\s*\(.*?version\)`),                                  // "(Single Version)"
		regexp.MustCompile(`\s*\(.*?edit\)`),                                     // "(Radio Edit)"
		regexp.MustCompile(`\s*-?\s*live`),                                       // "- Live"
		regexp.MustCompile(`\s*\(live\)`),                                        // "(Live)"
		regexp.MustCompile(`\s*-?\s*radio\s+edit`),                               // "- Radio Edit"
		regexp.MustCompile(`\s*-?\s*single\s+version`),                           // "- Single Version"
	}

	spacePattern = regexp.MustCompile(`\s+`)
)

// normalizeTrackName removes remaster information and version details.
func normalizeTrackName(name string) string {
	normalized := strings.ToLower(name)

	for _, pattern := range remasterPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}

	for _, pattern := range versionPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}

	// Remove extra whitespace
	normalized = strings.TrimSpace(normalized)
	normalized = spacePattern.ReplaceAllString(normalized, " ")

	// Remove trailing dashes
	normalized = strings.TrimRight(normalized, " -")

	return normalized
}

// isSameUploader compares uploaders case-insensitively, ignoring YouTube's " - Topic" suffix.
func isSameUploader(track1, track2 track.Track) bool {
	u1 := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(track1.Uploader)), " - topic")
	u2 := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(track2.Uploader)), " - topic")
	if u1 == "" || u2 == "" {
		return false
	}
	return u1 == u2
}

func init() {
	Register("duplicate_track_filter", func() Filter {
		return NewDuplicateTrackFilter()
	})
}
