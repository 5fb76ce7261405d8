package restserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/chrissnell/lunarcal/internal/metrics"
	"github.com/chrissnell/lunarcal/pkg/lunar"
	"github.com/chrissnell/lunarcal/pkg/responseformat"
	"github.com/gorilla/mux"
	"github.com/vmihailenco/msgpack/v5"
)

// Handlers contains all HTTP handlers for the REST server
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		formatter:  responseformat.NewFormatter(),
	}
}

// GetLunarDate converts ?time=RFC3339 (default now) to a lunar date.
func (h *Handlers) GetLunarDate(w http.ResponseWriter, req *http.Request) {
	ts, err := parseTime(req.URL.Query().Get("time"))
	if err != nil {
		h.writeError(w, req, err)
		return
	}

	start := time.Now()
	ld, err := h.controller.calendar.DatetimeToLunarDate(req.Context(), ts)
	metrics.ObserveConversion("datetime_to_lunar_date", start, err)
	if err != nil {
		h.writeError(w, req, err)
		return
	}

	h.write(w, req, LunarDateResponse{
		Date:       ld,
		Concise:    ld.ConciseString(),
		Time:       ts.Format(time.RFC3339Nano),
		IsLeapYear: ld.IsLeapYear(),
	})
}

// GetDatetime converts /lunar/datetime/{year}/{month}/{day} to an instant.
func (h *Handlers) GetDatetime(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	ld, err := parseLunarDate(vars["year"], vars["month"], vars["day"])
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	loc, err := h.location(req)
	if err != nil {
		h.writeError(w, req, err)
		return
	}

	start := time.Now()
	ts, err := h.controller.calendar.LunarDateToDatetime(req.Context(), ld, loc)
	metrics.ObserveConversion("lunar_date_to_datetime", start, err)
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	h.write(w, req, newDatetimeResponse(ts))
}

// GetNisan1 returns the instant lunar year {year} begins.
func (h *Handlers) GetNisan1(w http.ResponseWriter, req *http.Request) {
	year, err := parseYear(mux.Vars(req)["year"])
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	loc, err := h.location(req)
	if err != nil {
		h.writeError(w, req, err)
		return
	}

	start := time.Now()
	ts, err := h.controller.calendar.Nisan1(req.Context(), year, loc)
	metrics.ObserveConversion("nisan1", start, err)
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	h.write(w, req, newDatetimeResponse(ts))
}

// GetLeapYear reports the leap status of {year} in the 19-year cycle.
func (h *Handlers) GetLeapYear(w http.ResponseWriter, req *http.Request) {
	year, err := parseYear(mux.Vars(req)["year"])
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	h.write(w, req, LeapYearResponse{
		Year:   year,
		IsLeap: lunar.IsLunarLeapYear(year),
		Months: lunar.MonthsInYear(year),
	})
}

// GetYear lists the month starts of lunar year {year}.
func (h *Handlers) GetYear(w http.ResponseWriter, req *http.Request) {
	year, err := parseYear(mux.Vars(req)["year"])
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	loc, err := h.location(req)
	if err != nil {
		h.writeError(w, req, err)
		return
	}

	start := time.Now()
	tbl, err := h.controller.calendar.YearTable(req.Context(), year)
	metrics.ObserveConversion("year_table", start, err)
	if err != nil {
		h.writeError(w, req, err)
		return
	}

	resp := YearResponse{
		Year:      year,
		IsLeap:    lunar.IsLunarLeapYear(year),
		Months:    lunar.MonthsInYear(year),
		Lunations: tbl.Lunations(),
		End:       tbl.End.In(loc).Format(time.RFC3339),
	}
	for _, s := range tbl.Starts {
		resp.MonthStarts = append(resp.MonthStarts, s.In(loc).Format(time.RFC3339))
	}
	h.write(w, req, resp)
}

// GetPhase returns the moon phase at ?time=RFC3339 (default now).
func (h *Handlers) GetPhase(w http.ResponseWriter, req *http.Request) {
	ts, err := parseTime(req.URL.Query().Get("time"))
	if err != nil {
		h.writeError(w, req, err)
		return
	}

	start := time.Now()
	phase, err := h.controller.calendar.Phase(req.Context(), ts)
	metrics.ObserveConversion("phase", start, err)
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	h.write(w, req, PhaseResponse{Time: ts.Format(time.RFC3339Nano), Phase: phase})
}

// PostAdd applies a LunarTimeDelta to a LunarDate. The body is JSON, or
// MessagePack when sent with Content-Type application/x-msgpack.
func (h *Handlers) PostAdd(w http.ResponseWriter, req *http.Request) {
	var body AddRequest
	var err error
	if req.Header.Get("Content-Type") == "application/x-msgpack" {
		dec := msgpack.NewDecoder(req.Body)
		dec.SetCustomStructTag("json")
		err = dec.Decode(&body)
	} else {
		err = json.NewDecoder(req.Body).Decode(&body)
	}
	if err != nil {
		if !errors.Is(err, lunar.ErrInvalidArgument) {
			err = fmt.Errorf("%w: malformed request body: %v", lunar.ErrInvalidArgument, err)
		}
		h.writeError(w, req, err)
		return
	}

	ld, err := body.Date.Add(body.Delta)
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	h.write(w, req, AddResponse{Date: ld, Concise: ld.ConciseString()})
}

func (h *Handlers) write(w http.ResponseWriter, req *http.Request, data any) {
	if err := h.formatter.WriteResponse(w, req, data, nil); err != nil {
		h.controller.logger.Errorw("error encoding response", "path", req.URL.Path, "error", err)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, req *http.Request, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		h.controller.logger.Errorw("request failed", "path", req.URL.Path, "error", err)
	}
	if werr := h.formatter.WriteStatus(w, req, status, ErrorResponse{Error: err.Error()}, nil); werr != nil {
		h.controller.logger.Errorw("error encoding error response", "path", req.URL.Path, "error", werr)
	}
}

// statusForError maps calendar error kinds to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, lunar.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, lunar.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lunar.ErrAmbiguousResult):
		return http.StatusUnprocessableEntity
	case errors.Is(err, lunar.ErrEphemerisUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (h *Handlers) location(req *http.Request) (*time.Location, error) {
	tz := req.URL.Query().Get("tz")
	if tz == "" {
		return h.controller.location, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown time zone %q", lunar.ErrInvalidArgument, tz)
	}
	return loc, nil
}

func newDatetimeResponse(ts time.Time) DatetimeResponse {
	return DatetimeResponse{
		Time:     ts.Format(time.RFC3339Nano),
		Unix:     ts.Unix(),
		Timezone: ts.Location().String(),
	}
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: time %q is not RFC 3339", lunar.ErrInvalidArgument, s)
	}
	return ts, nil
}

func parseYear(s string) (int, error) {
	year, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: year %q is not an integer", lunar.ErrInvalidArgument, s)
	}
	return year, nil
}

func parseLunarDate(year, month, day string) (lunar.LunarDate, error) {
	y, err := parseYear(year)
	if err != nil {
		return lunar.LunarDate{}, err
	}
	m, err := strconv.Atoi(month)
	if err != nil {
		return lunar.LunarDate{}, fmt.Errorf("%w: month %q is not an integer", lunar.ErrInvalidArgument, month)
	}
	d, err := strconv.ParseFloat(day, 64)
	if err != nil {
		return lunar.LunarDate{}, fmt.Errorf("%w: day %q is not a number", lunar.ErrInvalidArgument, day)
	}
	return lunar.NewLunarDate(y, m, d)
}
