package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chrissnell/lunarcal/internal/app"
	"github.com/chrissnell/lunarcal/pkg/config"
	"github.com/chrissnell/lunarcal/pkg/lunar"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type cli struct {
	cfg    *config.ConfigData
	logger *zap.SugaredLogger
	stdin  io.Reader
	stdout io.Writer
}

type command func(ctx context.Context, fs *flag.FlagSet, args []string) error

func (c *cli) commands() map[string]command {
	return map[string]command{
		"to-lunar":   c.toLunar,
		"from-lunar": c.fromLunar,
		"nisan1":     c.nisan1,
		"leap":       c.leap,
		"year":       c.year,
		"phase":      c.phase,
		"add":        c.add,
		"batch":      c.batch,
		"serve":      c.serve,
	}
}

func (c *cli) run(ctx context.Context, name string, args []string) error {
	cmd, ok := c.commands()[name]
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stdout)
	return cmd(ctx, fs, args)
}

// withCalendar builds a calendar from the loaded config and closes its cache
// once fn returns.
func (c *cli) withCalendar(fn func(cal *lunar.Calendar) error) error {
	cal, closer, err := app.NewCalendar(c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer closer.Close()
	return fn(cal)
}

func (c *cli) zone(tz string) (*time.Location, error) {
	if tz == "" {
		return c.cfg.TimeLocation()
	}
	return time.LoadLocation(tz)
}

func parseInstant(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("error parsing time: %w", err)
	}
	return t, nil
}

func parseYears(args []string) ([]int, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("at least one year is required")
	}
	years := make([]int, 0, len(args))
	for _, a := range args {
		y, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("invalid year %q", a)
		}
		years = append(years, y)
	}
	return years, nil
}

func (c *cli) toLunar(ctx context.Context, fs *flag.FlagSet, args []string) error {
	timeStr := fs.String("time", "", "Instant to convert (RFC3339 format, e.g., 2024-01-15T12:00:00Z); defaults to now")
	if err := fs.Parse(args); err != nil {
		return err
	}
	t, err := parseInstant(*timeStr)
	if err != nil {
		return err
	}

	return c.withCalendar(func(cal *lunar.Calendar) error {
		ld, err := cal.DatetimeToLunarDate(ctx, t)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.stdout, ld.ConciseString())
		return nil
	})
}

func (c *cli) fromLunar(ctx context.Context, fs *flag.FlagSet, args []string) error {
	tz := fs.String("tz", "", "Time zone for the result; defaults to the configured zone")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("expected one lunar date as YEAR,MONTH,DAY")
	}
	ld, err := lunar.ParseConcise(fs.Arg(0))
	if err != nil {
		return err
	}
	loc, err := c.zone(*tz)
	if err != nil {
		return err
	}

	return c.withCalendar(func(cal *lunar.Calendar) error {
		t, err := cal.LunarDateToDatetime(ctx, ld, loc)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.stdout, t.Format(time.RFC3339))
		return nil
	})
}

func (c *cli) nisan1(ctx context.Context, fs *flag.FlagSet, args []string) error {
	tz := fs.String("tz", "", "Time zone for the result; defaults to the configured zone")
	if err := fs.Parse(args); err != nil {
		return err
	}
	years, err := parseYears(fs.Args())
	if err != nil {
		return err
	}
	loc, err := c.zone(*tz)
	if err != nil {
		return err
	}

	return c.withCalendar(func(cal *lunar.Calendar) error {
		for _, y := range years {
			t, err := cal.Nisan1(ctx, y, loc)
			if err != nil {
				return fmt.Errorf("year %d: %w", y, err)
			}
			fmt.Fprintf(c.stdout, "%d\t%s\n", y, t.Format(time.RFC3339))
		}
		return nil
	})
}

func (c *cli) leap(_ context.Context, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	years, err := parseYears(fs.Args())
	if err != nil {
		return err
	}
	for _, y := range years {
		kind := "common"
		if lunar.IsLunarLeapYear(y) {
			kind = "leap"
		}
		fmt.Fprintf(c.stdout, "%d\t%s\t%d months\n", y, kind, lunar.MonthsInYear(y))
	}
	return nil
}

func (c *cli) year(ctx context.Context, fs *flag.FlagSet, args []string) error {
	tz := fs.String("tz", "", "Time zone for the result; defaults to the configured zone")
	if err := fs.Parse(args); err != nil {
		return err
	}
	years, err := parseYears(fs.Args())
	if err != nil {
		return err
	}
	if len(years) != 1 {
		return fmt.Errorf("expected exactly one year")
	}
	loc, err := c.zone(*tz)
	if err != nil {
		return err
	}

	return c.withCalendar(func(cal *lunar.Calendar) error {
		tbl, err := cal.YearTable(ctx, years[0])
		if err != nil {
			return err
		}
		for i, s := range tbl.Starts {
			fmt.Fprintf(c.stdout, "%2d\t%s\n", i+1, s.In(loc).Format(time.RFC3339))
		}
		fmt.Fprintf(c.stdout, "end\t%s\n", tbl.End.In(loc).Format(time.RFC3339))
		if tbl.Lunations() != lunar.MonthsInYear(tbl.Year) {
			fmt.Fprintf(c.stdout, "note\t%d lunations, leap cycle allows %d months\n", tbl.Lunations(), lunar.MonthsInYear(tbl.Year))
		}
		return nil
	})
}

func (c *cli) phase(ctx context.Context, fs *flag.FlagSet, args []string) error {
	timeStr := fs.String("time", "", "UTC time to calculate phase for (RFC3339 format, e.g., 2024-01-15T12:00:00Z)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	t, err := parseInstant(*timeStr)
	if err != nil {
		return err
	}

	return c.withCalendar(func(cal *lunar.Calendar) error {
		phase, err := cal.Phase(ctx, t)
		if err != nil {
			return err
		}

		fmt.Fprintf(c.stdout, "Moon Phase for %s\n", t.Format(time.RFC3339))
		fmt.Fprintf(c.stdout, "  Phase:        %.1f%% (%.4f)\n", phase.Phase*100, phase.Phase)
		fmt.Fprintf(c.stdout, "  Phase Name:   %s\n", phase.PhaseName)
		fmt.Fprintf(c.stdout, "  Illumination: %.1f%%\n", phase.Illumination*100)
		fmt.Fprintf(c.stdout, "  Age:          %.1f days\n", phase.AgeDays)
		fmt.Fprintf(c.stdout, "  Lunar Day:    %.2f\n", phase.LunarDay)
		fmt.Fprintf(c.stdout, "  Elongation:   %.1f°\n", phase.Elongation)
		if phase.IsWaxing {
			fmt.Fprintf(c.stdout, "  Direction:    Waxing\n")
		} else {
			fmt.Fprintf(c.stdout, "  Direction:    Waning\n")
		}
		return nil
	})
}

func (c *cli) add(_ context.Context, fs *flag.FlagSet, args []string) error {
	years := fs.Float64("years", 0, "Years to add")
	months := fs.Float64("months", 0, "Months to add")
	days := fs.Float64("days", 0, "Days to add")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("expected one lunar date as YEAR,MONTH,DAY")
	}
	ld, err := lunar.ParseConcise(fs.Arg(0))
	if err != nil {
		return err
	}

	res, err := ld.Add(lunar.NewLunarTimeDelta(*years, *months, *days))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, res.ConciseString())
	return nil
}

// batch converts each input line independently. Results keep input order and
// a failed line is reported in place without stopping the others.
func (c *cli) batch(ctx context.Context, fs *flag.FlagSet, args []string) error {
	workers := fs.Int("workers", 4, "Number of concurrent conversions")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *workers < 1 {
		return fmt.Errorf("-workers must be at least 1")
	}

	var lines []string
	scanner := bufio.NewScanner(c.stdin)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}

	return c.withCalendar(func(cal *lunar.Calendar) error {
		results := make([]string, len(lines))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(*workers)
		for i, line := range lines {
			i, line := i, line
			g.Go(func() error {
				t, err := time.Parse(time.RFC3339, line)
				if err != nil {
					results[i] = "error: not an RFC 3339 instant"
					return nil
				}
				ld, err := cal.DatetimeToLunarDate(gctx, t)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					results[i] = "error: " + err.Error()
					return nil
				}
				results[i] = ld.ConciseString()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		c.logger.Debugw("batch complete", "lines", len(lines), "workers", *workers)
		for i, line := range lines {
			fmt.Fprintf(c.stdout, "%s\t%s\n", line, results[i])
		}
		return nil
	})
}

func (c *cli) serve(ctx context.Context, fs *flag.FlagSet, args []string) error {
	listen := fs.String("listen", "", "Override rest.listen_addr")
	port := fs.Int("port", 0, "Override rest.http_port")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if c.cfg.REST == nil {
		c.cfg.REST = &config.RESTServerData{}
	}
	if *listen != "" {
		c.cfg.REST.ListenAddr = *listen
	}
	if *port != 0 {
		c.cfg.REST.HTTPPort = *port
	}
	if err := c.cfg.Validate(); err != nil {
		return err
	}

	return app.New(c.cfg, c.logger).Run(ctx)
}
