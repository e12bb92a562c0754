package queue

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule determines when a periodic message is due
type Schedule interface {
	Next(from time.Time) time.Time
	String() string
}

type interval time.Duration

func (d interval) Next(from time.Time) time.Time { return from.Add(time.Duration(d)) }
func (d interval) String() string                { return fmt.Sprintf("every %v", time.Duration(d)) }

type period int

const (
	perHour period = iota
	perDay
	perWeek
	perMonth
)

// calendar fires once per period at a wall-clock position in from's
// location. Fields outside the period are ignored.
type calendar struct {
	period  period
	weekday time.Weekday
	day     int
	hour    int
	minute  int
}

func (c calendar) Next(from time.Time) time.Time {
	loc := from.Location()
	y, m, d := from.Date()

	var next time.Time
	switch c.period {
	case perHour:
		next = time.Date(y, m, d, from.Hour(), c.minute, 0, 0, loc)
		if !next.After(from) {
			next = next.Add(time.Hour)
		}
	case perDay:
		next = time.Date(y, m, d, c.hour, c.minute, 0, 0, loc)
		if !next.After(from) {
			next = next.AddDate(0, 0, 1)
		}
	case perWeek:
		d += (int(c.weekday) - int(from.Weekday()) + 7) % 7
		next = time.Date(y, m, d, c.hour, c.minute, 0, 0, loc)
		if !next.After(from) {
			next = next.AddDate(0, 0, 7)
		}
	default:
		next = c.inMonth(y, m, loc)
		if !next.After(from) {
			next = c.inMonth(y, m+1, loc)
		}
	}
	return next
}

// inMonth clamps the day to the month length, so day 31 fires on the last
// day of shorter months.
func (c calendar) inMonth(y int, m time.Month, loc *time.Location) time.Time {
	first := time.Date(y, m, 1, 0, 0, 0, 0, loc)
	last := first.AddDate(0, 1, -1).Day()
	return time.Date(first.Year(), first.Month(), min(c.day, last), c.hour, c.minute, 0, 0, loc)
}

func (c calendar) String() string {
	switch c.period {
	case perHour:
		return fmt.Sprintf("hourly at :%02d", c.minute)
	case perDay:
		return fmt.Sprintf("daily at %02d:%02d", c.hour, c.minute)
	case perWeek:
		return fmt.Sprintf("weekly on %s at %02d:%02d", c.weekday, c.hour, c.minute)
	default:
		return fmt.Sprintf("monthly on day %d at %02d:%02d", c.day, c.hour, c.minute)
	}
}

// EveryInterval is due every d, counted from the previous occurrence.
func EveryInterval(d time.Duration) Schedule { return interval(d) }

// Hourly is due every hour after the previous occurrence.
func Hourly() Schedule { return interval(time.Hour) }

// HourlyAt is due every hour at the given minute.
func HourlyAt(minute int) Schedule { return calendar{period: perHour, minute: minute} }

// Daily is due every day at midnight.
func Daily() Schedule { return DailyAt(0, 0) }

// DailyAt is due every day at hour:minute.
func DailyAt(hour, minute int) Schedule {
	return calendar{period: perDay, hour: hour, minute: minute}
}

// Weekly is due every week on weekday at midnight.
func Weekly(weekday time.Weekday) Schedule { return WeeklyOn(weekday, 0, 0) }

// WeeklyOn is due every week on weekday at hour:minute.
func WeeklyOn(weekday time.Weekday, hour, minute int) Schedule {
	return calendar{period: perWeek, weekday: weekday, hour: hour, minute: minute}
}

// Monthly is due every month on day at midnight.
func Monthly(day int) Schedule { return MonthlyOn(day, 0, 0) }

// MonthlyOn is due every month on day at hour:minute.
func MonthlyOn(day, hour, minute int) Schedule {
	return calendar{period: perMonth, day: day, hour: hour, minute: minute}
}

// ParseSchedule parses the textual schedules accepted in configuration:
//
//	every 5m
//	hourly :15
//	daily 02:00
//	weekly mon 02:00
//	monthly 1 02:00
func ParseSchedule(s string) (Schedule, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty schedule", ErrInvalidSchedule)
	}

	bad := func(reason string) error {
		return fmt.Errorf("%w: %q: %s", ErrInvalidSchedule, s, reason)
	}

	switch fields[0] {
	case "every":
		if len(fields) != 2 {
			return nil, bad("want \"every <duration>\"")
		}
		d, err := time.ParseDuration(fields[1])
		if err != nil || d <= 0 {
			return nil, bad("invalid duration")
		}
		return EveryInterval(d), nil

	case "hourly":
		if len(fields) == 1 {
			return Hourly(), nil
		}
		m, err := strconv.Atoi(strings.TrimPrefix(fields[1], ":"))
		if len(fields) != 2 || err != nil || m < 0 || m > 59 {
			return nil, bad("want \"hourly :MM\"")
		}
		return HourlyAt(m), nil

	case "daily":
		if len(fields) == 1 {
			return Daily(), nil
		}
		h, m, err := parseClock(fields[1])
		if len(fields) != 2 || err != nil {
			return nil, bad("want \"daily HH:MM\"")
		}
		return DailyAt(h, m), nil

	case "weekly":
		if len(fields) < 2 || len(fields) > 3 {
			return nil, bad("want \"weekly <day> [HH:MM]\"")
		}
		day, ok := weekdays[fields[1]]
		if !ok {
			return nil, bad("unknown weekday")
		}
		if len(fields) == 2 {
			return Weekly(day), nil
		}
		h, m, err := parseClock(fields[2])
		if err != nil {
			return nil, bad("invalid time of day")
		}
		return WeeklyOn(day, h, m), nil

	case "monthly":
		if len(fields) < 2 || len(fields) > 3 {
			return nil, bad("want \"monthly <day> [HH:MM]\"")
		}
		day, err := strconv.Atoi(fields[1])
		if err != nil || day < 1 || day > 31 {
			return nil, bad("invalid day of month")
		}
		if len(fields) == 2 {
			return Monthly(day), nil
		}
		h, m, err := parseClock(fields[2])
		if err != nil {
			return nil, bad("invalid time of day")
		}
		return MonthlyOn(day, h, m), nil
	}

	return nil, bad("unknown schedule kind")
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

func parseClock(s string) (hour, minute int, err error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("missing colon in %q", s)
	}
	if hour, err = strconv.Atoi(hh); err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	if minute, err = strconv.Atoi(mm); err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}
