// Package util holds a few small general-purpose helpers that don't
// warrant their own package: interactive confirmation (AskYN, called by
// cmd/rr), human-readable duration formatting and a string-set membership
// check (FormatDuration and Contains, which have no caller outside this
// package's tests). Trimmed from the teacher's much larger grab-bag util
// package - its path/process helpers were dropped rather than carried
// along (see DESIGN.md).
package util

import (
	"fmt"
	"strings"
)

// AskYN prompts for a yes/no confirmation, used by rr before a replace
// run unless -n (dry run) was given.
func AskYN(prompt string, defaultYes bool) bool {
	if defaultYes {
		fmt.Printf("%s [Y/n]: ", prompt)
	} else {
		fmt.Printf("%s [y/N]: ", prompt)
	}

	var response string
	fmt.Scanln(&response)
	response = strings.ToLower(strings.TrimSpace(response))

	if response == "" {
		return defaultYes
	}
	return response == "y" || response == "yes"
}

// Contains reports whether slice holds value.
func Contains(slice []string, value string) bool {
	for _, item := range slice {
		if item == value {
			return true
		}
	}
	return false
}

// FormatDuration renders seconds as a human-readable "1h2m3s"-style
// string.
func FormatDuration(seconds int64) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	minutes := seconds / 60
	seconds = seconds % 60
	if minutes < 60 {
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	hours := minutes / 60
	minutes = minutes % 60
	return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
}
