package tui

import (
	"testing"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
)

func TestWrapWordsSplitsAtSpaces(t *testing.T) {
	lines := wrapWords("Failed to lookup rank for OPP#2: ranking service returned errors", 20)
	assert.Equal(t, []string{
		"Failed to lookup",
		"rank for OPP#2:",
		"ranking service",
		"returned errors",
	}, lines)
}

func TestWrapWordsHardBreaksLongWords(t *testing.T) {
	lines := wrapWords("path /very/long/replay/directory/name end", 10)
	for _, line := range lines {
		assert.LessOrEqual(t, runewidth.StringWidth(line), 10, "line %q", line)
	}
	assert.Equal(t, []string{"path", "/very/long", "/replay/di", "rectory/na", "me end"}, lines)
}

func TestWrapWordsKeepsParagraphs(t *testing.T) {
	assert.Equal(t, []string{"one", "", "two"}, wrapWords("one\n\ntwo", 10))
}

func TestWrapWordsNoWidth(t *testing.T) {
	assert.Equal(t, []string{"as is"}, wrapWords("as is", 0))
}

func TestFitLinesPadsAndClips(t *testing.T) {
	out := fitLines("a\nbb\nccc", 4, 2)
	assert.Equal(t, "a   \nbb  ", out)

	out = fitLines("a", 2, 3)
	assert.Equal(t, "a \n  \n  ", out)
}

func TestPadLineIgnoresEscapes(t *testing.T) {
	styled := "\x1b[1mab\x1b[0m"
	assert.Equal(t, styled+"  ", padLine(styled, 4))
}

func TestTruncateLine(t *testing.T) {
	assert.Equal(t, "short", truncateLine("short", 10))
	assert.Equal(t, "abcdefg...", truncateLine("abcdefghijklmnop", 10))
}
