package restserver

import (
	"github.com/chrissnell/lunarcal/pkg/lunar"
)

// LunarDateResponse is returned by the date conversion endpoints.
type LunarDateResponse struct {
	Date       lunar.LunarDate `json:"date"`
	Concise    string          `json:"concise"`
	Time       string          `json:"time"`
	IsLeapYear bool            `json:"is_leap_year"`
}

// DatetimeResponse is returned by /lunar/datetime and /lunar/nisan1.
type DatetimeResponse struct {
	Time     string `json:"time"`
	Unix     int64  `json:"unix"`
	Timezone string `json:"timezone"`
}

// LeapYearResponse describes a year's place in the leap cycle.
type LeapYearResponse struct {
	Year   int  `json:"year"`
	IsLeap bool `json:"is_leap"`
	Months int  `json:"months"`
}

// YearResponse lists the month boundaries of a lunar year.
type YearResponse struct {
	Year        int      `json:"year"`
	IsLeap      bool     `json:"is_leap"`
	Months      int      `json:"months"`
	Lunations   int      `json:"lunations"`
	MonthStarts []string `json:"month_starts"`
	End         string   `json:"end"`
}

// PhaseResponse wraps a moon phase with the instant it describes.
type PhaseResponse struct {
	Time  string          `json:"time"`
	Phase lunar.MoonPhase `json:"phase"`
}

// AddRequest is the body of POST /lunar/add.
type AddRequest struct {
	Date  lunar.LunarDate      `json:"date"`
	Delta lunar.LunarTimeDelta `json:"delta"`
}

// AddResponse carries the result of date arithmetic.
type AddResponse struct {
	Date    lunar.LunarDate `json:"date"`
	Concise string          `json:"concise"`
}

// ErrorResponse is written for every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}
