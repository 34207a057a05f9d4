// Package slotkey parses storage paths of the form
// files/{device_id}/{date}/{time_block}/{filename} into slot keys.
package slotkey

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// Root is the first segment of every storage path.
	Root = "files"
	// DateLayout is the calendar date format used in paths and rows.
	DateLayout = "2006-01-02"
	// SlotLength is the wall-clock span of one time block.
	SlotLength = 30 * time.Minute

	segmentCount = 5
)

var timeBlockPattern = regexp.MustCompile(`^[0-2][0-9]-[0-5][0-9]$`)

// Key identifies one half-hour slot of one device, plus the file it came from.
type Key struct {
	DeviceID  string
	Date      time.Time
	TimeBlock string
	Filename  string
}

// MalformedPathError is returned when a path does not have the five expected segments.
type MalformedPathError struct {
	Path   string
	Reason string
}

func (e *MalformedPathError) Error() string {
	return fmt.Sprintf("malformed storage path %q: %s", e.Path, e.Reason)
}

// InvalidDateError is returned when the date segment is not a real calendar date.
type InvalidDateError struct {
	Path  string
	Value string
}

func (e *InvalidDateError) Error() string {
	return fmt.Sprintf("invalid date %q in %q: want YYYY-MM-DD", e.Value, e.Path)
}

// InvalidTimeBlockError is returned when the time block is not a half-hour aligned HH-MM.
type InvalidTimeBlockError struct {
	Path  string
	Value string
}

func (e *InvalidTimeBlockError) Error() string {
	return fmt.Sprintf("invalid time block %q in %q: want HH-00 or HH-30", e.Value, e.Path)
}

// Parse splits a storage path into a Key. It performs no I/O.
func Parse(path string) (Key, error) {
	parts := strings.Split(path, "/")
	if len(parts) != segmentCount {
		return Key{}, &MalformedPathError{Path: path, Reason: fmt.Sprintf("expected %d segments, got %d", segmentCount, len(parts))}
	}
	if parts[0] != Root {
		return Key{}, &MalformedPathError{Path: path, Reason: fmt.Sprintf("first segment must be %q", Root)}
	}
	for i, p := range parts {
		if strings.TrimSpace(p) == "" {
			return Key{}, &MalformedPathError{Path: path, Reason: fmt.Sprintf("segment %d is empty", i)}
		}
	}

	date, err := ParseDate(parts[2])
	if err != nil {
		return Key{}, &InvalidDateError{Path: path, Value: parts[2]}
	}
	if err := ValidateTimeBlock(parts[3]); err != nil {
		return Key{}, &InvalidTimeBlockError{Path: path, Value: parts[3]}
	}

	return Key{
		DeviceID:  parts[1],
		Date:      date,
		TimeBlock: parts[3],
		Filename:  parts[4],
	}, nil
}

// ParseDate parses a YYYY-MM-DD calendar date. Out-of-range days such as
// 2025-02-30 are rejected.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// ValidateTimeBlock checks the HH-MM format, hours 00-23 and minutes 00 or 30.
func ValidateTimeBlock(block string) error {
	if !timeBlockPattern.MatchString(block) {
		return fmt.Errorf("time block %q does not match HH-MM", block)
	}
	hour, _ := strconv.Atoi(block[:2])
	minute, _ := strconv.Atoi(block[3:])
	if hour > 23 {
		return fmt.Errorf("time block %q hour out of range", block)
	}
	if minute != 0 && minute != 30 {
		return fmt.Errorf("time block %q is not half-hour aligned", block)
	}
	return nil
}

// DateString renders the key's date as YYYY-MM-DD.
func (k Key) DateString() string {
	return k.Date.Format(DateLayout)
}

// String renders the canonical storage path.
func (k Key) String() string {
	return strings.Join([]string{Root, k.DeviceID, k.DateString(), k.TimeBlock, k.Filename}, "/")
}

// SlotStart returns the wall-clock start of the slot, in UTC.
func (k Key) SlotStart() time.Time {
	hour, _ := strconv.Atoi(k.TimeBlock[:2])
	minute, _ := strconv.Atoi(k.TimeBlock[3:])
	return k.Date.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// Prefix returns the listing prefix for one device-day, with a trailing slash.
func Prefix(deviceID, date string) string {
	return strings.Join([]string{Root, deviceID, date, ""}, "/")
}

// DayBlocks enumerates the 48 half-hour blocks of a day in order.
func DayBlocks() []string {
	blocks := make([]string, 0, 48)
	for hour := 0; hour < 24; hour++ {
		for _, minute := range []int{0, 30} {
			blocks = append(blocks, fmt.Sprintf("%02d-%02d", hour, minute))
		}
	}
	return blocks
}
