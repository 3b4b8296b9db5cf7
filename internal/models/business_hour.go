package models

import "time"

// BusinessHour is a per-device weekly availability schedule. Start/end
// are minutes from midnight in the record's timezone; a day with both
// nil is available all day.
type BusinessHour struct {
	PK       int64  `db:"pk_id"`
	DevicePK int64  `db:"device_id"`
	Message  string `db:"message"`
	TimeZone string `db:"time_zone"`

	MonStart *int `db:"mon_start"`
	MonEnd   *int `db:"mon_end"`
	TueStart *int `db:"tue_start"`
	TueEnd   *int `db:"tue_end"`
	WedStart *int `db:"wed_start"`
	WedEnd   *int `db:"wed_end"`
	ThuStart *int `db:"thu_start"`
	ThuEnd   *int `db:"thu_end"`
	FriStart *int `db:"fri_start"`
	FriEnd   *int `db:"fri_end"`
	SatStart *int `db:"sat_start"`
	SatEnd   *int `db:"sat_end"`
	SunStart *int `db:"sun_start"`
	SunEnd   *int `db:"sun_end"`

	CreatedAt time.Time `db:"created_at"`
}

// DayWindow returns the configured window for a weekday.
func (b *BusinessHour) DayWindow(day time.Weekday) (start, end *int) {
	switch day {
	case time.Monday:
		return b.MonStart, b.MonEnd
	case time.Tuesday:
		return b.TueStart, b.TueEnd
	case time.Wednesday:
		return b.WedStart, b.WedEnd
	case time.Thursday:
		return b.ThuStart, b.ThuEnd
	case time.Friday:
		return b.FriStart, b.FriEnd
	case time.Saturday:
		return b.SatStart, b.SatEnd
	default:
		return b.SunStart, b.SunEnd
	}
}

// Location resolves the record's IANA timezone, falling back to UTC on
// a bad or empty name.
func (b *BusinessHour) Location() *time.Location {
	if b.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(b.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
