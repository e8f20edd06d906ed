package youtube

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDuration(t *testing.T) {
	testCases := []struct {
		input    string
		expected int
	}{
		{"PT4M33S", 273},
		{"PT1H2M3S", 3723},
		{"PT45S", 45},
		{"PT3M", 180},
		{"PT2H", 7200},
		{"PT", 0},
		{"", 0},
		{"garbage", 0},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.expected, ParseDuration(tc.input))
		})
	}
}

func TestSplitTitle(t *testing.T) {
	testCases := []struct {
		name           string
		title          string
		channel        string
		expectedArtist string
		expectedSong   string
	}{
		{"artist and title", "Queen - Bohemian Rhapsody", "QueenVEVO", "Queen", "Bohemian Rhapsody"},
		{"first hyphen wins", "a-ha - Take On Me", "a-ha", "a", "ha - Take On Me"},
		{"no hyphen", "Bohemian Rhapsody", "Queen Official", "Queen Official", "Bohemian Rhapsody"},
		{"leading hyphen", "-Intro", "Band", "Band", "-Intro"},
		{"trailing hyphen", "Intro-", "Band", "Band", "Intro-"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			artist, song := SplitTitle(tc.title, tc.channel)
			assert.Equal(t, tc.expectedArtist, artist)
			assert.Equal(t, tc.expectedSong, song)
		})
	}
}
