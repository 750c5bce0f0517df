// Package ical renders mailbox delivery dates as an RFC 5545 iCalendar
// document: one all-day VEVENT per delivery date, CRLF line endings, and
// content lines folded to the 75-octet limit.
//
// The generator is a pull-based state machine. Calendar lines and the
// lines of each embedded event are produced lazily, so a document can be
// streamed without being materialized first.
package ical

import (
	"io"
	"strings"
	"time"

	"postgang/internal/postal"
)

// Calendar is an ordered set of delivery dates together with an optional
// fixed creation instant. It is immutable after construction; rendering
// never mutates it, so a Calendar may be rendered concurrently.
//
// When created is nil, every rendering reads the wall clock for the
// DTSTAMP lines, so two renderings of the same Calendar may differ. Pass
// a fixed instant for reproducible output.
type Calendar struct {
	dates   []postal.DeliveryDate
	created *time.Time
}

// New builds a Calendar from delivery dates in emission order. The
// created instant, if non-nil, is used verbatim (in UTC) for every
// DTSTAMP line; otherwise rendering reads the current time.
func New(dates []postal.DeliveryDate, created *time.Time) *Calendar {
	return &Calendar{dates: dates, created: created}
}

// calStep enumerates the top-level document states.
type calStep int

const (
	calBegin calStep = iota
	calVersion
	calProdID
	calScale
	calMethod
	calEvents
	calDone
)

// calendarLines produces the logical lines of a whole document: the
// five-line preamble, each event block in insertion order, and the
// terminator. calDone is terminal.
type calendarLines struct {
	cal   *Calendar
	step  calStep
	index int
	event *eventLines
}

func (c *calendarLines) next() (string, bool) {
	switch c.step {
	case calBegin:
		c.step = calVersion
		return "BEGIN:VCALENDAR", true
	case calVersion:
		c.step = calProdID
		return "VERSION:2.0", true
	case calProdID:
		c.step = calScale
		return "PRODID:-//Aasan//Aasan Postgang//EN", true
	case calScale:
		c.step = calMethod
		return "CALSCALE:GREGORIAN", true
	case calMethod:
		c.step = calEvents
		return "METHOD:PUBLISH", true
	case calEvents:
		for c.index < len(c.cal.dates) {
			if c.event == nil {
				c.event = newEventLines(c.cal.dates[c.index], c.cal.created)
			}
			if line, ok := c.event.next(); ok {
				return line, true
			}
			c.event = nil
			c.index++
		}
		c.step = calDone
		return "END:VCALENDAR", true
	default:
		return "", false
	}
}

// Render writes the complete folded document to w. Logical lines are
// produced lazily and folded one at a time, so the document is never
// buffered as a whole.
func (c *Calendar) Render(w io.Writer) error {
	seq := &calendarLines{cal: c}
	buf := make([]byte, 0, 128)
	for {
		line, ok := seq.next()
		if !ok {
			return nil
		}
		buf = appendFolded(buf[:0], line)
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
}

// String renders the document into memory.
func (c *Calendar) String() string {
	var b strings.Builder
	// strings.Builder never returns a write error.
	_ = c.Render(&b)
	return b.String()
}
