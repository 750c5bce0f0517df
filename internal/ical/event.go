package ical

import (
	"fmt"
	"time"

	"postgang/internal/postal"
)

// Norwegian weekday names as used in event summaries.
func weekdayName(t time.Time) string {
	switch t.Weekday() {
	case time.Monday:
		return "mandag"
	case time.Tuesday:
		return "tirsdag"
	case time.Wednesday:
		return "onsdag"
	case time.Thursday:
		return "torsdag"
	case time.Friday:
		return "fredag"
	case time.Saturday:
		return "lørdag"
	default:
		return "søndag"
	}
}

func formatDate(t time.Time) string {
	return t.Format("20060102")
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

// eventStep enumerates the lines of one VEVENT block, in emission order.
type eventStep int

const (
	evBegin eventStep = iota
	evDtEnd
	evDtStamp
	evDtStart
	evSummary
	evTransp
	evUID
	evURL
	evEnd
	evDone
)

// eventLines lazily produces the logical content lines of a single
// VEVENT, one per call to next, in the fixed order evBegin..evEnd.
// A sequencer is single-use: once it reaches evDone it stays there.
type eventLines struct {
	delivery postal.DeliveryDate
	created  *time.Time
	step     eventStep
}

func newEventLines(delivery postal.DeliveryDate, created *time.Time) *eventLines {
	return &eventLines{delivery: delivery, created: created}
}

// next returns the logical line for the current step and advances the
// sequencer. It returns false once all nine lines have been produced.
func (e *eventLines) next() (string, bool) {
	step := e.step
	if step == evDone {
		return "", false
	}
	e.step++

	date := e.delivery.Date
	switch step {
	case evBegin:
		return "BEGIN:VEVENT", true
	case evDtEnd:
		return "DTEND;VALUE=DATE:" + formatDate(date.AddDate(0, 0, 1)), true
	case evDtStamp:
		stamp := time.Now().UTC()
		if e.created != nil {
			stamp = *e.created
		}
		return "DTSTAMP:" + formatTimestamp(stamp), true
	case evDtStart:
		return "DTSTART;VALUE=DATE:" + formatDate(date), true
	case evSummary:
		line := fmt.Sprintf("SUMMARY:%s: Posten kommer %s %d.",
			e.delivery.Code, weekdayName(date), date.Day())
		return escapeNewlines(line), true
	case evTransp:
		return "TRANSP:TRANSPARENT", true
	case evUID:
		return fmt.Sprintf("UID:postgang-%s-%s", e.delivery.Code, date.Format("2006-01-02")), true
	case evURL:
		return "URL:https://www.posten.no/levering-av-post/", true
	default: // evEnd
		return "END:VEVENT", true
	}
}
