package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseAmount reads a displayed credit amount. Group separators (',' and
// '.') and dashes are ignored; an empty value or a lone dash is zero.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return 0, nil
	}
	digits := strings.NewReplacer(",", "", ".", "", "-", "", " ", "").Replace(s)
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return n, nil
}

// FormatAmount renders n with comma group separators.
func FormatAmount(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	s := strconv.FormatInt(n, 10)
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return b.String()
}

// ParseDuration reads a countdown in "HH:MM:SS", "MM:SS" or "SS" form.
func ParseDuration(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid countdown %q", s)
	}
	var secs int64
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid countdown %q", s)
		}
		secs = secs*60 + n
	}
	return time.Duration(secs) * time.Second, nil
}

// FormatDuration renders d as "HH:MM:SS", truncated to whole seconds.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs/60%60, secs%60)
}
