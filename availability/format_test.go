package availability

import "testing"

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		seconds int64
		want    string
	}{
		{-5, "now"},
		{0, "now"},
		{1, "less than a minute"},
		{59, "less than a minute"},
		{60, "1 minute"},
		{119, "1 minute"},
		{120, "2 minutes"},
		{1800, "30 minutes"},
		{3599, "59 minutes"},
		{3600, "1 hour"},
		{3660, "1 hour 1m"},
		{7200, "2 hours"},
		{7500, "2 hours 5m"},
		{86399, "23 hours 59m"},
		{86400, "1 day(s)"},
		{2*86400 + 3*3600, "2 day(s)"},
		{365 * 86400, "365 day(s)"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatRemaining(tt.seconds); got != tt.want {
				t.Errorf("FormatRemaining(%d) = %q, want %q", tt.seconds, got, tt.want)
			}
		})
	}
}
