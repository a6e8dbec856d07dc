package layout

import (
	"fmt"
	"unicode/utf16"

	"github.com/dukerupert/famboard/internal/model"
)

// PastelColor hashes s into a stable pastel HSL color. The hash runs over
// UTF-16 code units with 32-bit wraparound so colors match those the
// browser client computed for the same calendars.
func PastelColor(s string) string {
	var hash int32
	for _, c := range utf16.Encode([]rune(s)) {
		hash = int32(c) + ((hash << 5) - hash)
	}
	abs := int64(hash)
	if abs < 0 {
		abs = -abs
	}
	h := abs % 360
	sat := 60 + abs%20
	return fmt.Sprintf("hsl(%d %d%% 70%%)", h, sat)
}

// EventColor picks the color key for an event: calendar, then event id,
// then title.
func EventColor(ev model.CalendarEvent) string {
	key := ev.CalendarID
	if key == "" {
		key = ev.ID
	}
	if key == "" {
		key = ev.Title
	}
	if key == "" {
		key = "cal"
	}
	return PastelColor(key)
}
