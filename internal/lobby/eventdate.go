package lobby

import (
	"strings"
	"time"

	"clanforge/backend/internal/apperr"
)

const dateLayout = "2006-01-02"

// ParseEventDate accepts "YYYY-MM-DD" or "YYYY-MM-DDTHH:mm[...]" and returns
// UTC midnight of that calendar day. Any time component is discarded, never
// converted. An empty string yields nil.
func ParseEventDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	day, _, _ := strings.Cut(raw, "T")
	t, err := time.ParseInLocation(dateLayout, day, time.UTC)
	if err != nil {
		return nil, apperr.Validation("eventDate must be YYYY-MM-DD")
	}
	return &t, nil
}
