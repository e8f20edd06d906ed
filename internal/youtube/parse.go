package youtube

import (
	"regexp"
	"strconv"
	"strings"
)

var durationPattern = regexp.MustCompile(`PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?`)

// ParseDuration converts an ISO 8601 duration such as PT4M33S to seconds.
// Missing components count as zero and unparseable input yields 0.
func ParseDuration(iso string) int {
	m := durationPattern.FindStringSubmatch(iso)
	if m == nil {
		return 0
	}
	part := func(s string) int {
		if s == "" {
			return 0
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0
		}
		return n
	}
	return part(m[1])*3600 + part(m[2])*60 + part(m[3])
}

// SplitTitle splits "Artist - Title" on the first hyphen. Titles without a
// hyphen keep the channel name as artist.
func SplitTitle(title, channel string) (artist, song string) {
	idx := strings.Index(title, "-")
	if idx < 1 || idx == len(title)-1 {
		return channel, title
	}
	return strings.TrimSpace(title[:idx]), strings.TrimSpace(title[idx+1:])
}
