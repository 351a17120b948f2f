package api

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	msgEndAfterStart = "Validation error: end should be greater than start."
	msgOrder         = `Failed to parse value for parameter: order. Should be "first" or "last".`
	msgNoData        = "No data was found for your request period."
	msgNotReady      = "Model results are not available yet."
)

// Naive layouts are read in the installation time zone.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
}

// ParseDateTime reads an ISO 8601 date or date-time. Values without a UTC
// offset are taken to be local to loc.
func ParseDateTime(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.In(loc), nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as an ISO 8601 date-time", s)
}

// ParseDate reads a YYYY-MM-DD date as local midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", s, loc)
}

// params reads query parameters and collects every problem found.
type params struct {
	c    *gin.Context
	loc  *time.Location
	errs []string
}

func newParams(c *gin.Context, loc *time.Location) *params {
	return &params{c: c, loc: loc}
}

func (p *params) fail(name string) {
	p.errs = append(p.errs, fmt.Sprintf("Failed to parse value for parameter: %s.", name))
}

func (p *params) add(msg string) {
	p.errs = append(p.errs, msg)
}

func (p *params) ok() bool {
	return len(p.errs) == 0
}

// datetime returns the parsed parameter, def when absent. A nil def makes the
// parameter required.
func (p *params) datetime(name string, def *time.Time) *time.Time {
	raw, present := p.c.GetQuery(name)
	if !present || raw == "" {
		if def == nil {
			p.fail(name)
		}
		return def
	}
	t, err := ParseDateTime(raw, p.loc)
	if err != nil {
		p.fail(name)
		return nil
	}
	return &t
}

func (p *params) date(name string, def time.Time) *time.Time {
	raw, present := p.c.GetQuery(name)
	if !present || raw == "" {
		return &def
	}
	t, err := ParseDate(raw, p.loc)
	if err != nil {
		p.fail(name)
		return nil
	}
	return &t
}

// float returns nil when the parameter is absent or invalid.
func (p *params) float(name string) *float64 {
	raw, present := p.c.GetQuery(name)
	if !present || raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(name)
		return nil
	}
	return &v
}

func (p *params) requiredInt(name string) *int {
	v, err := strconv.Atoi(p.c.Query(name))
	if err != nil {
		p.fail(name)
		return nil
	}
	return &v
}

// window validates that end follows start when both parsed.
func (p *params) window(start, end *time.Time) {
	if start != nil && end != nil && !end.After(*start) {
		p.add(msgEndAfterStart)
	}
}
