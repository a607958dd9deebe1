package aggregation

import (
	"errors"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

var ErrUnknownRange = errors.New("unknown report range")

// Window is an inclusive range of calendar dates in one location.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow truncates start and end to calendar dates in loc.
func NewWindow(start, end time.Time, loc *time.Location) Window {
	return Window{Start: startOfDay(start.In(loc)), End: startOfDay(end.In(loc))}
}

// ParseWindow builds a window from two YYYY-MM-DD strings.
func ParseWindow(start, end string, loc *time.Location) (Window, error) {
	s, err := time.ParseInLocation(dateLayout, start, loc)
	if err != nil {
		return Window{}, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	e, err := time.ParseInLocation(dateLayout, end, loc)
	if err != nil {
		return Window{}, fmt.Errorf("invalid end date %q: %w", end, err)
	}
	if e.Before(s) {
		return Window{}, fmt.Errorf("end date %s is before start date %s", end, start)
	}
	return Window{Start: s, End: e}, nil
}

func (w Window) Location() *time.Location {
	return w.Start.Location()
}

func (w Window) StartDate() string { return w.Start.Format(dateLayout) }
func (w Window) EndDate() string   { return w.End.Format(dateLayout) }

// Contains reports whether the calendar date of v in the window's
// location falls inside the window. Values that are not dates are outside.
func (w Window) Contains(v any) bool {
	d, ok := CivilDate(v, w.Location())
	if !ok {
		return false
	}
	return d >= w.StartDate() && d <= w.EndDate()
}

// CivilDate renders v as YYYY-MM-DD in loc. Plain dates are taken as
// already local; timestamps are converted into loc first.
func CivilDate(v any, loc *time.Location) (string, bool) {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return "", false
		}
		return t.In(loc).Format(dateLayout), true
	case string:
		if len(t) == len(dateLayout) {
			if _, err := time.Parse(dateLayout, t); err == nil {
				return t, true
			}
			return "", false
		}
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts.In(loc).Format(dateLayout), true
		}
		if len(t) > len(dateLayout) {
			if _, err := time.Parse(dateLayout, t[:len(dateLayout)]); err == nil {
				return t[:len(dateLayout)], true
			}
		}
	}
	return "", false
}

// Preset resolves a named range relative to now. Weeks start on Sunday.
func Preset(name string, now time.Time, loc *time.Location) (Window, error) {
	today := startOfDay(now.In(loc))
	switch name {
	case "today", "":
		return Window{Start: today, End: today}, nil
	case "yesterday":
		y := today.AddDate(0, 0, -1)
		return Window{Start: y, End: y}, nil
	case "week":
		start := today.AddDate(0, 0, -int(today.Weekday()))
		return Window{Start: start, End: start.AddDate(0, 0, 6)}, nil
	case "last_week":
		start := today.AddDate(0, 0, -int(today.Weekday())-7)
		return Window{Start: start, End: start.AddDate(0, 0, 6)}, nil
	case "month":
		return MonthWindow(int(today.Month()), today.Year(), loc), nil
	case "last_month":
		first := time.Date(today.Year(), today.Month()-1, 1, 0, 0, 0, 0, loc)
		return MonthWindow(int(first.Month()), first.Year(), loc), nil
	case "quarter":
		q := (int(today.Month()) - 1) / 3
		return QuarterWindow(q+1, today.Year(), loc), nil
	case "year":
		return Window{
			Start: time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, loc),
			End:   time.Date(today.Year(), time.December, 31, 0, 0, 0, 0, loc),
		}, nil
	}
	return Window{}, fmt.Errorf("%w: %s", ErrUnknownRange, name)
}

func MonthWindow(month, year int, loc *time.Location) Window {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc)
	return Window{Start: start, End: start.AddDate(0, 1, -1)}
}

func QuarterWindow(quarter, year int, loc *time.Location) Window {
	start := time.Date(year, time.Month((quarter-1)*3+1), 1, 0, 0, 0, 0, loc)
	return Window{Start: start, End: start.AddDate(0, 3, -1)}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
