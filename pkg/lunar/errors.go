package lunar

import "github.com/chrissnell/lunarcal/pkg/ephemeris"

// The calendar reports the same error kinds as the ephemeris search it is
// built on, so callers can test either package's sentinels with errors.Is.
var (
	ErrInvalidArgument      = ephemeris.ErrInvalidArgument
	ErrNotFound             = ephemeris.ErrNotFound
	ErrAmbiguousResult      = ephemeris.ErrAmbiguousResult
	ErrConvergenceFailure   = ephemeris.ErrConvergenceFailure
	ErrEphemerisUnavailable = ephemeris.ErrEphemerisUnavailable
)
