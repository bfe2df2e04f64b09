package services

import (
	"regexp"
	"strconv"

	"google.golang.org/api/youtube/v3"
)

var (
	isoDurationRegex = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)
	shortsCueRegex   = regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}_])#?shorts?\b`)
)

// ParseISODuration converts an ISO-8601 duration such as "PT1H2M3S" into seconds.
//
// Unparseable input yields 0.
func ParseISODuration(s string) int {
	m := isoDurationRegex.FindStringSubmatch(s)
	if m == nil {
		return 0
	}

	total := 0
	for i, unit := range []int{86400, 3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0
		}
		total += n * unit
	}
	return total
}

// Classify decides whether a video is a short.
//
// Anything longer than MaxSeconds is not a short. Otherwise a "#short" or "#shorts" cue in the title,
// description or tags marks it as one, and without a cue the policy default applies.
func (p ShortsPolicy) Classify(durationSeconds int, title, description string, tags []string) bool {
	if durationSeconds > p.MaxSeconds {
		return false
	}
	if hasShortsCue(title) || hasShortsCue(description) {
		return true
	}
	for _, tag := range tags {
		if hasShortsCue(tag) {
			return true
		}
	}
	return p.Default
}

func hasShortsCue(s string) bool {
	return s != "" && shortsCueRegex.MatchString(s)
}

// bestThumbnail picks the largest commonly available rendition.
func bestThumbnail(t *youtube.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, thumb := range []*youtube.Thumbnail{t.High, t.Medium, t.Default} {
		if thumb != nil && thumb.Url != "" {
			return thumb.Url
		}
	}
	return ""
}
