// Package template renders announcement templates.
//
// Substitution is a single literal pass over four fixed tokens:
// {player}, {room}, {reason}, {time}. Anything else (including unknown
// {...} tokens) is left byte-for-byte as written, so a malformed template
// degrades to odd output rather than an error.
package template

import (
	"strings"
	"time"
)

// TimeLayout is the wall-clock format substituted for {time},
// in the local time zone of the host process.
const TimeLayout = "2006-01-02 15:04:05"

// Context is the per-event value bag consumed by one Render call.
// Reason is only set for game-ended events; absent values substitute
// as the empty string.
type Context struct {
	Player string
	Room   string
	Reason string
	// Time is the render-time wall clock. Zero means "now"; tests pin it.
	Time time.Time
}

// Render substitutes every occurrence of the four placeholder tokens in
// tmpl. A blank (empty or whitespace-only) template renders to "" so an
// operator can silence an announcement by blanking it. Render never fails.
func Render(tmpl string, c Context) string {
	if strings.TrimSpace(tmpl) == "" {
		return ""
	}
	at := c.Time
	if at.IsZero() {
		at = time.Now()
	}
	r := strings.NewReplacer(
		"{player}", c.Player,
		"{room}", c.Room,
		"{reason}", c.Reason,
		"{time}", at.Format(TimeLayout),
	)
	return r.Replace(tmpl)
}
