package lstio

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/interp"
)

// PointingSource interpolates the drive reports of a run to the trigger
// time of each event. The drive system logs its position about once per
// second, linear interpolation between the reports is enough at the
// tracking speeds involved.
type PointingSource struct {
	firstTime, lastTime float64

	azimuth  interp.PiecewiseLinear
	altitude interp.PiecewiseLinear
	ra       interp.PiecewiseLinear
	dec      interp.PiecewiseLinear

	hasICRS   bool
	targetRA  float64
	targetDec float64
	hasTarget bool
}

// LoadDriveReport parses a drive report file: one line per report with
// unix time [s], azimuth [deg], altitude [deg] and optionally the target
// ra and dec [deg]. Lines starting with # are skipped.
func LoadDriveReport(filename string) (*PointingSource, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, ErrOpenFile{Filename: filename, Err: err}
	}
	defer f.Close()

	var times, az, alt, ra, dec []float64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			return nil, fmt.Errorf("%s: malformed drive report line %q", filename, line)
		}
		values := make([]float64, len(fields))
		for i, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: bad value in line %q", filename, line)
			}
			values[i] = v
		}
		// reports are not guaranteed strictly ordered, drop stale ones
		if len(times) > 0 && values[0] <= times[len(times)-1] {
			continue
		}
		times = append(times, values[0])
		az = append(az, values[1])
		alt = append(alt, values[2])
		if len(values) >= 5 {
			ra = append(ra, values[3])
			dec = append(dec, values[4])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(times) < 2 {
		return nil, fmt.Errorf("%s: not enough drive reports", filename)
	}

	p := &PointingSource{firstTime: times[0], lastTime: times[len(times)-1]}
	if err := p.azimuth.Fit(times, az); err != nil {
		return nil, err
	}
	if err := p.altitude.Fit(times, alt); err != nil {
		return nil, err
	}
	if len(ra) == len(times) {
		if err := p.ra.Fit(times, ra); err != nil {
			return nil, err
		}
		if err := p.dec.Fit(times, dec); err != nil {
			return nil, err
		}
		p.hasICRS = true
		p.targetRA = ra[len(ra)/2]
		p.targetDec = dec[len(dec)/2]
		p.hasTarget = true
	}

	logger.Info(fmt.Sprintf("Loaded %d drive reports from %s", len(times), filename), "pointing")
	return p, nil
}

func (p *PointingSource) clamp(t float64) float64 {
	// PiecewiseLinear only covers the fitted range, hold the edges for
	// events slightly outside it.
	return math.Min(math.Max(t, p.firstTime), p.lastTime)
}

// PointingAltAz returns the interpolated pointing in radians at the given
// unix time.
func (p *PointingSource) PointingAltAz(t float64) (altRad, azRad float64) {
	t = p.clamp(t)
	altRad = p.altitude.Predict(t) * math.Pi / 180
	azRad = p.azimuth.Predict(t) * math.Pi / 180
	return altRad, azRad
}

// PointingICRS returns the interpolated sky coordinates in degrees at the
// given unix time. ok is false when the drive report has no sky
// coordinates.
func (p *PointingSource) PointingICRS(t float64) (raDeg, decDeg float64, ok bool) {
	if !p.hasICRS {
		return 0, 0, false
	}
	t = p.clamp(t)
	return p.ra.Predict(t), p.dec.Predict(t), true
}

// Target returns the tracked sky position of the run.
func (p *PointingSource) Target() (raDeg, decDeg float64, ok bool) {
	return p.targetRA, p.targetDec, p.hasTarget
}
