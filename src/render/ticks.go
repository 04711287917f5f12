package render

import (
	"time"
)

// timeTick is one labelled position on the time axis.
type timeTick struct {
	At    time.Time
	Label string
}

// pickTimeStep selects a readable step and label format for a given time span.
func pickTimeStep(span time.Duration) (time.Duration, string) {
	switch {
	case span <= 2*time.Minute:
		return 10 * time.Second, "15:04:05"
	case span <= 10*time.Minute:
		return 1 * time.Minute, "15:04"
	case span <= 30*time.Minute:
		return 5 * time.Minute, "15:04"
	case span <= 2*time.Hour:
		return 15 * time.Minute, "15:04"
	case span <= 6*time.Hour:
		return 30 * time.Minute, "15:04"
	case span <= 24*time.Hour:
		return 2 * time.Hour, "15:04"
	case span <= 3*24*time.Hour:
		return 6 * time.Hour, "Jan 2 15h"
	case span <= 14*24*time.Hour:
		return 24 * time.Hour, "Jan 2"
	default:
		return 7 * 24 * time.Hour, "Jan 2"
	}
}

// makeTimeTicks returns step-aligned ticks inside [minT, maxT]. Alignment is done
// in UTC to avoid DST anomalies; labels use loc.
func makeTimeTicks(minT, maxT time.Time, loc *time.Location) []timeTick {
	if !maxT.After(minT) {
		return nil
	}
	if loc == nil {
		loc = time.Local
	}
	step, labelFmt := pickTimeStep(maxT.Sub(minT))
	st := int64(step.Seconds())
	if st <= 0 {
		st = 1
	}
	s := minT.UTC().Unix()
	aligned := time.Unix((s/st)*st, 0).UTC()
	if aligned.Before(minT) {
		aligned = aligned.Add(step)
	}
	var ticks []timeTick
	for t := aligned; !t.After(maxT); t = t.Add(step) {
		ticks = append(ticks, timeTick{At: t, Label: t.In(loc).Format(labelFmt)})
		// keep it readable
		if len(ticks) > 20 {
			break
		}
	}
	return ticks
}
