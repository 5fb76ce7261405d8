package lunar

// MetonicCycle is the length in years of the leap cycle.
const MetonicCycle = 19

// leapPositions marks the positions (year mod 19) of the seven leap years in
// each cycle. With this table 2001, 2004, 2006, 2009, 2012, 2015 and 2017 are
// the leap years between 2000 and 2019.
var leapPositions = [MetonicCycle]bool{
	1: true, 3: true, 6: true, 9: true, 11: true, 14: true, 17: true,
}

// IsLunarLeapYear reports whether the lunar year has a 13th month.
func IsLunarLeapYear(year int) bool {
	pos := year % MetonicCycle
	if pos < 0 {
		pos += MetonicCycle
	}
	return leapPositions[pos]
}

// MonthsInYear returns 13 for leap years and 12 otherwise.
func MonthsInYear(year int) int {
	if IsLunarLeapYear(year) {
		return 13
	}
	return 12
}
