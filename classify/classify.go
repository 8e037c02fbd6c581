// Package classify decides whether a discovered video is song related and whether it is a short.
package classify

import (
	"fmt"
	"strings"
	"time"

	"github.com/researchaccelerator-hub/song-tracker/model"
	"github.com/sosodev/duration"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// ShortMaxDuration is the longest duration still classified as a short.
const ShortMaxDuration = 60 * time.Second

// SearchQuery is the combined search query sent to the platform for every creator.
const SearchQuery = "music|cover|original|official"

// songKeywords are matched against the lower-cased title.
var songKeywords = []string{
	"music",
	"song",
	"cover",
	"original",
	"official",
	"mv",
	"뮤직",
	"노래",
	"커버",
}

// Keywords returns a copy of the song keyword set.
func Keywords() []string {
	out := make([]string, len(songKeywords))
	copy(out, songKeywords)
	return out
}

// NormalizeTitle returns the NFC-normalised, lower-cased form of a title.
func NormalizeTitle(title string) string {
	// cases.Caser is stateful, so one is built per call
	return cases.Lower(language.Und).String(norm.NFC.String(title))
}

// IsSongRelated reports whether the title contains at least one song keyword.
func IsSongRelated(title string) bool {
	lower := NormalizeTitle(title)
	for _, keyword := range songKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// Classify returns ClassificationShort when the known duration is at most a
// minute or, failing that, when the title mentions "short". A nil duration means
// the duration is unknown and only the title is considered.
func Classify(d *time.Duration, title string) model.Classification {
	if d != nil && *d <= ShortMaxDuration {
		return model.ClassificationShort
	}
	if strings.Contains(NormalizeTitle(title), "short") {
		return model.ClassificationShort
	}
	return model.ClassificationVideo
}

// ParseDuration converts an ISO-8601 duration such as "PT1M5S" into a time.Duration.
func ParseDuration(iso string) (time.Duration, error) {
	if iso == "" {
		return 0, fmt.Errorf("empty duration")
	}
	d, err := duration.Parse(iso)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", iso, err)
	}
	return d.ToTimeDuration(), nil
}
