package tui

import (
	"os"
	"strings"
	"sync"
)

// Box drawing and markers come in a Unicode and an ASCII set for terminals
// or fonts that render the former poorly.

type glyphSet int

const (
	glyphSetUnicode glyphSet = iota
	glyphSetASCII
)

var (
	glyphsMu      sync.RWMutex
	currentGlyphs = glyphSetUnicode
)

func applyGlyphPreference() {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("VISEDIT_TUI_GLYPHS"))) {
	case "", "unicode", "utf8":
		setGlyphs(glyphSetUnicode)
	case "ascii":
		setGlyphs(glyphSetASCII)
	}
}

func setGlyphs(gs glyphSet) {
	glyphsMu.Lock()
	currentGlyphs = gs
	glyphsMu.Unlock()
}

func glyphs() glyphSet {
	glyphsMu.RLock()
	defer glyphsMu.RUnlock()
	return currentGlyphs
}

// boxRunes are the corner and edge runes: tl, tr, bl, br, horizontal, vertical.
type boxRunes [6]rune

func glyphBox() boxRunes {
	if glyphs() == glyphSetASCII {
		return boxRunes{'+', '+', '+', '+', '-', '|'}
	}
	return boxRunes{'┌', '┐', '└', '┘', '─', '│'}
}

func glyphHandle() rune {
	if glyphs() == glyphSetASCII {
		return '#'
	}
	return '■'
}

func glyphIncluded(included bool) string {
	if glyphs() == glyphSetASCII {
		if included {
			return "[x]"
		}
		return "[ ]"
	}
	if included {
		return "☑"
	}
	return "☐"
}

func glyphArrow() string {
	if glyphs() == glyphSetASCII {
		return "->"
	}
	return "→"
}
