package lifecycle

import "time"

// ReferenceOffset is the fixed UTC offset that defines a canvas day. It is
// held at UTC-5 all year; daylight saving time is deliberately ignored.
const ReferenceOffset = -5 * time.Hour

const dateLayout = "2006-01-02"

// ReferenceZone is the fixed "EST" zone built from ReferenceOffset.
var ReferenceZone = time.FixedZone("EST", int(ReferenceOffset/time.Second))

// DateOf returns the YYYY-MM-DD reference date t falls on.
func DateOf(t time.Time) string {
	return t.In(ReferenceZone).Format(dateLayout)
}

// IsOnDate reports whether t falls on the given reference date.
func IsOnDate(t time.Time, date string) bool {
	return DateOf(t) == date
}

// ParseDate parses a YYYY-MM-DD reference date.
func ParseDate(date string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, date, ReferenceZone)
}

// NextDate returns the reference date following date.
func NextDate(date string) (string, error) {
	d, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return d.AddDate(0, 0, 1).Format(dateLayout), nil
}
