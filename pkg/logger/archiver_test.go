package logger

import (
	"testing"
	"time"

	"github.com/ilguido/jidl/pkg/sink"
)

func date(y int, m time.Month, d, hour int) time.Time {
	return time.Date(y, m, d, hour, 0, 0, 0, time.UTC)
}

func TestFirstDelayWeekly(t *testing.T) {
	tests := []struct {
		name      string
		now       time.Time
		dayOfWeek int
		want      time.Duration
	}{
		{
			// Sunday evening, target Monday: the next midnight.
			name:      "sunday to monday",
			now:       date(2026, time.August, 23, 23),
			dayOfWeek: 1,
			want:      1 * time.Hour,
		},
		{
			// On the target day itself the run slips a full week.
			name:      "monday to monday",
			now:       date(2026, time.August, 24, 0),
			dayOfWeek: 1,
			want:      7 * 24 * time.Hour,
		},
		{
			name:      "monday to wednesday",
			now:       date(2026, time.August, 24, 5),
			dayOfWeek: 3,
			want:      2*24*time.Hour - 5*time.Hour,
		},
		{
			name:      "friday to sunday",
			now:       date(2026, time.August, 28, 12),
			dayOfWeek: 7,
			want:      2*24*time.Hour - 12*time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := firstDelay(tt.now, tt.dayOfWeek, false); got != tt.want {
				t.Errorf("firstDelay = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFirstDelayMonthly(t *testing.T) {
	tests := []struct {
		name      string
		now       time.Time
		dayOfWeek int
		want      time.Duration
	}{
		{
			// August 5th 2026 is a Wednesday; the Monday of the week
			// holding September 1st is August 31st, 26 days out.
			name:      "early august to september",
			now:       date(2026, time.August, 5, 0),
			dayOfWeek: 1,
			want:      26 * 24 * time.Hour,
		},
		{
			// Monday August 24th: one week to the week of September 1st.
			name:      "late august to september",
			now:       date(2026, time.August, 24, 0),
			dayOfWeek: 1,
			want:      7 * 24 * time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := firstDelay(tt.now, tt.dayOfWeek, true); got != tt.want {
				t.Errorf("firstDelay = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWeeksToNextMonth(t *testing.T) {
	tests := []struct {
		now  time.Time
		want int
	}{
		{date(2026, time.August, 5, 0), 4},
		{date(2026, time.August, 24, 0), 1},
		// December 15th 2026: January 1st 2027 still falls in an ISO
		// week of 2026.
		{date(2026, time.December, 15, 0), 2},
		// December 20th 2025: January 1st 2026 falls in week 1 of 2026,
		// across the ISO year boundary.
		{date(2025, time.December, 20, 0), 2},
	}

	for _, tt := range tests {
		if got := weeksToNextMonth(tt.now); got != tt.want {
			t.Errorf("weeksToNextMonth(%s) = %d, want %d",
				tt.now.Format("2006-01-02"), got, tt.want)
		}
	}
}

func TestRetentionDays(t *testing.T) {
	tests := []struct {
		now     time.Time
		monthly bool
		days    int
		due     bool
	}{
		{date(2026, time.August, 24, 0), false, 7, true},
		{date(2026, time.August, 3, 0), true, 33, true},
		{date(2026, time.August, 7, 0), true, 37, true},
		// Outside the first week of the month the pass skips.
		{date(2026, time.August, 8, 0), true, 0, false},
		{date(2026, time.August, 24, 0), true, 0, false},
	}

	for _, tt := range tests {
		days, due := retentionDays(tt.now, tt.monthly)
		if days != tt.days || due != tt.due {
			t.Errorf("retentionDays(%s, %v) = (%d, %v), want (%d, %v)",
				tt.now.Format("2006-01-02"), tt.monthly, days, due, tt.days, tt.due)
		}
	}
}

func TestNewArchiverRejectsPlainSink(t *testing.T) {
	if _, err := NewArchiver(openDummy(t), nil); err == nil {
		t.Fatal("want error for a sink without snapshot support")
	}
}

// archivingSink pretends to support snapshots so the schedule logic is
// testable without a database.
type archivingSink struct {
	*sink.Dummy
}

func (s *archivingSink) IsArchiver() bool { return true }

func TestArchiverSet(t *testing.T) {
	a, err := NewArchiver(&archivingSink{Dummy: openDummy(t)}, nil)
	if err != nil {
		t.Fatalf("NewArchiver: %v", err)
	}

	tests := []struct {
		dayOfWeek int
		interval  int
		monthly   bool
		wantErr   bool
	}{
		{0, 1, false, true},
		{8, 1, false, true},
		{1, 0, false, true},
		{1, 53, false, true},
		{1, 52, false, false},
		{1, 13, true, true},
		{1, 12, true, false},
	}

	for _, tt := range tests {
		err := a.Set(tt.dayOfWeek, tt.interval, tt.monthly)
		if (err != nil) != tt.wantErr {
			t.Errorf("Set(%d, %d, %v) error = %v, wantErr %v",
				tt.dayOfWeek, tt.interval, tt.monthly, err, tt.wantErr)
		}
	}

	if !a.IsSet() {
		t.Error("not IsSet after a successful Set")
	}
	a.Stop()
	if a.IsSet() {
		t.Error("IsSet after Stop")
	}
	a.Stop()
}
