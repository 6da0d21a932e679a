// Copyright (c) 2025 Daybook Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MaxTitleRunes is the maximum length of an auto-generated conversation
// title, in runes.
const MaxTitleRunes = 50

// TruncateRunes truncates a string to maxLen runes, adding "..." if truncated.
// Uses rune-based truncation for proper Unicode handling.
func TruncateRunes(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// TitleFromDraft derives a conversation title from a message draft: NFC
// normalization (so truncation never splits a decomposed character), newlines
// collapsed to spaces, then a hard cut at MaxTitleRunes runes.
func TitleFromDraft(draft string) string {
	title := norm.NFC.String(draft)
	title = strings.ReplaceAll(title, "\n", " ")
	title = strings.ReplaceAll(title, "\r", "")
	title = strings.TrimSpace(title)

	runes := []rune(title)
	if len(runes) > MaxTitleRunes {
		title = string(runes[:MaxTitleRunes])
	}
	return title
}

// IntToString converts an int to string.
func IntToString(i int) string {
	return strconv.Itoa(i)
}

// Int64ToString converts an int64 to string.
func Int64ToString(i int64) string {
	return strconv.FormatInt(i, 10)
}

// PadRight pads a string to the given display width with spaces.
func PadRight(s string, width int) string {
	runes := []rune(s)
	if len(runes) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(runes))
}
