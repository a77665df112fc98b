package fat32

import "time"

// DateFromInt converts the on-disk representation of a date into a time.Time at
// midnight UTC.
//
//	Bits 0-4: day of month, 1-31
//	Bits 5-8: month, 1-12
//	Bits 9-15: years since 1980
//
// A zero day or month isn't a valid date; it's returned as the zero time so
// callers can use IsZero().
func DateFromInt(value uint16) time.Time {
	day := int(value & 0x001f)
	month := time.Month((value >> 5) & 0x000f)
	year := 1980 + int(value>>9)

	if day == 0 || month == 0 {
		return time.Time{}
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// TimestampFromParts combines a date, a time with 2-second resolution, and
// an optional count of tenths of a second (0-199) into one time.Time.
func TimestampFromParts(datePart uint16, timePart uint16, tenths uint8) time.Time {
	date := DateFromInt(datePart)
	if date.IsZero() {
		return date
	}

	seconds := int(timePart&0x001f) * 2
	minutes := int((timePart >> 5) & 0x003f)
	hours := int(timePart >> 11)
	nanoseconds := int(tenths) * int(100*time.Millisecond)

	return date.Add(
		time.Duration(hours)*time.Hour +
			time.Duration(minutes)*time.Minute +
			time.Duration(seconds)*time.Second +
			time.Duration(nanoseconds))
}

// DateToInt converts a time into the on-disk date format. Years outside of
// 1980-2107 are clamped.
func DateToInt(t time.Time) uint16 {
	year := t.Year()
	if year < 1980 {
		return (1 << 5) | 1
	}
	if year > 2107 {
		year = 2107
	}
	return uint16(year-1980)<<9 | uint16(t.Month())<<5 | uint16(t.Day())
}

// TimeToInt converts a time into the on-disk time format, rounding down to an
// even second.
func TimeToInt(t time.Time) uint16 {
	return uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
}

// TenthsToInt gives the tenths-of-a-second field that goes with TimeToInt.
func TenthsToInt(t time.Time) uint8 {
	return uint8((t.Second()%2)*10 + t.Nanosecond()/int(100*time.Millisecond))
}
