package availability

import "fmt"

// FormatRemaining renders a remaining-seconds count for humans.
//
//	<= 0      "now"
//	< 1m      "less than a minute"
//	< 1h      "N minute(s)"
//	< 24h     "H hour(s)" plus " Mm" when minutes remain
//	otherwise "D day(s)" literally, whole days only
func FormatRemaining(seconds int64) string {
	if seconds <= 0 {
		return "now"
	}
	mins := seconds / 60
	if mins < 1 {
		return "less than a minute"
	}
	if mins < 60 {
		return fmt.Sprintf("%d minute%s", mins, plural(mins))
	}
	hrs, rem := mins/60, mins%60
	if hrs < 24 {
		s := fmt.Sprintf("%d hour%s", hrs, plural(hrs))
		if rem != 0 {
			s += fmt.Sprintf(" %dm", rem)
		}
		return s
	}
	return fmt.Sprintf("%d day(s)", hrs/24)
}

func plural(n int64) string {
	if n == 1 {
		return ""
	}
	return "s"
}
