// Package timeslot holds the calendar value types shared by schedules and
// appointments: a minute-precision time-of-day interval and a naive date.
package timeslot

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidFormat is returned for user supplied slots that do not match HH:mm-HH:mm.
	ErrInvalidFormat = errors.New("time slot must be in HH:mm-HH:mm format")
	// ErrInvalidRange is returned when the slot does not start before it ends.
	ErrInvalidRange = errors.New("time slot start must be before its end")
	// ErrMalformed is returned for persisted slots that cannot be read back.
	ErrMalformed = errors.New("malformed time slot")
)

var slotPattern = regexp.MustCompile(`^([0-1][0-9]|2[0-3]):[0-5][0-9]-([0-1][0-9]|2[0-3]):[0-5][0-9]$`)

const minutesPerDay = 24 * 60

// Clock is a time of day in minutes since midnight.
type Clock int

func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// ParseClock reads HH:mm or HH:mm:ss, dropping seconds.
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: invalid hour in %q", ErrMalformed, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: invalid minute in %q", ErrMalformed, s)
	}
	return NewClock(h, m), nil
}

// Slot is the half-open interval [Start, End) within one day.
type Slot struct {
	Start Clock
	End   Clock
}

// New builds a slot and checks its bounds.
func New(start, end Clock) (Slot, error) {
	s := Slot{Start: start, End: end}
	if err := s.Validate(); err != nil {
		return Slot{}, err
	}
	return s, nil
}

// MustParse is for tests and constants.
func MustParse(s string) Slot {
	slot, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return slot
}

// Parse validates a user supplied slot strictly against HH:mm-HH:mm.
func Parse(s string) (Slot, error) {
	if !slotPattern.MatchString(s) {
		return Slot{}, ErrInvalidFormat
	}
	bounds := strings.Split(s, "-")
	start, _ := ParseClock(bounds[0])
	end, _ := ParseClock(bounds[1])
	return New(start, end)
}

// ParseStored reads a slot coming back from storage, which may carry seconds.
func ParseStored(s string) (Slot, error) {
	bounds := strings.Split(strings.TrimSpace(s), "-")
	if len(bounds) != 2 {
		return Slot{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	start, err := ParseClock(bounds[0])
	if err != nil {
		return Slot{}, err
	}
	end, err := ParseClock(bounds[1])
	if err != nil {
		return Slot{}, err
	}
	if start >= end {
		return Slot{}, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	return Slot{Start: start, End: end}, nil
}

func (s Slot) Validate() error {
	if s.Start < 0 || s.End > minutesPerDay {
		return ErrInvalidFormat
	}
	if s.Start >= s.End {
		return ErrInvalidRange
	}
	return nil
}

func (s Slot) IsZero() bool { return s.Start == 0 && s.End == 0 }

func (s Slot) String() string {
	return s.Start.String() + "-" + s.End.String()
}

func (s Slot) Duration() time.Duration {
	return time.Duration(s.End-s.Start) * time.Minute
}

// Overlaps reports whether the two intervals share any minute. Touching
// endpoints do not overlap.
func (s Slot) Overlaps(o Slot) bool {
	return o.Start < s.End && o.End > s.Start
}

func (s Slot) Contains(o Slot) bool {
	return s.Start <= o.Start && o.End <= s.End
}

func (s Slot) Equal(o Slot) bool {
	return s.Start == o.Start && s.End == o.End
}

// Subtract removes o from s and returns what is left on either side. Either
// result is nil when there is no remainder on that side.
func (s Slot) Subtract(o Slot) (left, right *Slot) {
	if !s.Overlaps(o) {
		whole := s
		return &whole, nil
	}
	if s.Start < o.Start {
		left = &Slot{Start: s.Start, End: o.Start}
	}
	if o.End < s.End {
		right = &Slot{Start: o.End, End: s.End}
	}
	return left, right
}

// On anchors the slot to a date in loc.
func (s Slot) On(d Date, loc *time.Location) (start, end time.Time) {
	midnight := d.In(loc)
	return midnight.Add(time.Duration(s.Start) * time.Minute), midnight.Add(time.Duration(s.End) * time.Minute)
}

// Overlap parses two stored slot strings and compares them.
func Overlap(a, b string) (bool, error) {
	sa, err := ParseStored(a)
	if err != nil {
		return false, err
	}
	sb, err := ParseStored(b)
	if err != nil {
		return false, err
	}
	return sa.Overlaps(sb), nil
}

func (s Slot) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Slot) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Free returns the parts of the available slots not covered by any busy slot,
// sorted by start.
func Free(available, busy []Slot) []Slot {
	var out []Slot
	for _, a := range available {
		pieces := []Slot{a}
		for _, b := range busy {
			var next []Slot
			for _, p := range pieces {
				if !p.Overlaps(b) {
					next = append(next, p)
					continue
				}
				left, right := p.Subtract(b)
				if left != nil {
					next = append(next, *left)
				}
				if right != nil {
					next = append(next, *right)
				}
			}
			pieces = next
		}
		out = append(out, pieces...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}
