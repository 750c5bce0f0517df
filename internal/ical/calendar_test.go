package ical

import (
	"bytes"
	"regexp"
	"strings"
	"testing"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postgang/internal/postal"
)

func mustCode(t *testing.T, s string) postal.Code {
	t.Helper()
	code, err := postal.ParseCode(s)
	require.NoError(t, err)
	return code
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestRenderEmptyCalendar(t *testing.T) {
	want := "BEGIN:VCALENDAR\r\n" +
		"VERSION:2.0\r\n" +
		"PRODID:-//Aasan//Aasan Postgang//EN\r\n" +
		"CALSCALE:GREGORIAN\r\n" +
		"METHOD:PUBLISH\r\n" +
		"END:VCALENDAR\r\n"

	assert.Equal(t, want, New(nil, nil).String())
	assert.Equal(t, want, New([]postal.DeliveryDate{}, nil).String())
}

func TestRenderSingleEvent(t *testing.T) {
	created := time.Date(1970, time.August, 13, 0, 0, 0, 0, time.UTC)
	cal := New([]postal.DeliveryDate{
		postal.NewDeliveryDate(mustCode(t, "7800"), date(1970, time.August, 13)),
	}, &created)

	want := "BEGIN:VCALENDAR\r\n" +
		"VERSION:2.0\r\n" +
		"PRODID:-//Aasan//Aasan Postgang//EN\r\n" +
		"CALSCALE:GREGORIAN\r\n" +
		"METHOD:PUBLISH\r\n" +
		"BEGIN:VEVENT\r\n" +
		"DTEND;VALUE=DATE:19700814\r\n" +
		"DTSTAMP:19700813T000000Z\r\n" +
		"DTSTART;VALUE=DATE:19700813\r\n" +
		"SUMMARY:7800: Posten kommer torsdag 13.\r\n" +
		"TRANSP:TRANSPARENT\r\n" +
		"UID:postgang-7800-1970-08-13\r\n" +
		"URL:https://www.posten.no/levering-av-post/\r\n" +
		"END:VEVENT\r\n" +
		"END:VCALENDAR\r\n"

	assert.Equal(t, want, cal.String())
}

func TestRenderPreservesInsertionOrder(t *testing.T) {
	created := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	cal := New([]postal.DeliveryDate{
		postal.NewDeliveryDate(mustCode(t, "7800"), date(2024, time.June, 7)),
		postal.NewDeliveryDate(mustCode(t, "7800"), date(2024, time.June, 3)),
		postal.NewDeliveryDate(mustCode(t, "0150"), date(2024, time.June, 5)),
	}, &created)

	out := cal.String()
	first := strings.Index(out, "UID:postgang-7800-2024-06-07")
	second := strings.Index(out, "UID:postgang-7800-2024-06-03")
	third := strings.Index(out, "UID:postgang-0150-2024-06-05")
	require.NotEqual(t, -1, first)
	require.NotEqual(t, -1, second)
	require.NotEqual(t, -1, third)
	assert.Less(t, first, second)
	assert.Less(t, second, third)
}

func TestRenderFixedTimestampIsDeterministic(t *testing.T) {
	created := time.Date(2024, time.February, 29, 23, 59, 59, 0, time.UTC)
	dates := []postal.DeliveryDate{
		postal.NewDeliveryDate(mustCode(t, "0001"), date(2024, time.February, 29)),
	}
	assert.Equal(t, New(dates, &created).String(), New(dates, &created).String())
}

func TestRenderWallClockTimestamp(t *testing.T) {
	before := time.Now().UTC().Add(-time.Second)
	out := New([]postal.DeliveryDate{
		postal.NewDeliveryDate(mustCode(t, "7800"), date(2030, time.January, 2)),
	}, nil).String()
	after := time.Now().UTC().Add(time.Second)

	m := regexp.MustCompile(`DTSTAMP:(\d{8}T\d{6}Z)\r\n`).FindStringSubmatch(out)
	require.Len(t, m, 2)
	stamp, err := time.Parse("20060102T150405Z", m[1])
	require.NoError(t, err)
	assert.False(t, stamp.Before(before.Truncate(time.Second)))
	assert.False(t, stamp.After(after))
}

func TestRenderCrossesMonthAndYearBoundaries(t *testing.T) {
	created := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	cal := New([]postal.DeliveryDate{
		// DTEND is the day after DTSTART, across month and year ends.
		postal.NewDeliveryDate(mustCode(t, "7800"), date(2024, time.January, 31)),
		postal.NewDeliveryDate(mustCode(t, "7800"), date(2024, time.December, 31)),
	}, &created)

	out := cal.String()
	assert.Contains(t, out, "DTSTART;VALUE=DATE:20240131\r\nSUMMARY")
	assert.Contains(t, out, "DTEND;VALUE=DATE:20240201\r\n")
	assert.Contains(t, out, "DTSTART;VALUE=DATE:20241231\r\nSUMMARY")
	assert.Contains(t, out, "DTEND;VALUE=DATE:20250101\r\n")
}

func TestWeekdayNames(t *testing.T) {
	// 2024-01-01 is a Monday.
	want := []string{"mandag", "tirsdag", "onsdag", "torsdag", "fredag", "lørdag", "søndag"}
	for i, name := range want {
		assert.Equal(t, name, weekdayName(date(2024, time.January, 1+i)))
	}
}

func TestEventSequencerProducesNineLinesThenStops(t *testing.T) {
	created := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	seq := newEventLines(postal.NewDeliveryDate(mustCode(t, "7800"), date(2024, time.June, 3)), &created)

	var lines []string
	for {
		line, ok := seq.next()
		if !ok {
			break
		}
		lines = append(lines, line)
	}
	require.Len(t, lines, 9)
	assert.Equal(t, "BEGIN:VEVENT", lines[0])
	assert.Equal(t, "END:VEVENT", lines[8])

	// Exhausted sequencers stay exhausted.
	for i := 0; i < 3; i++ {
		_, ok := seq.next()
		assert.False(t, ok)
	}
}

func TestCalendarSequencerDoneIsTerminal(t *testing.T) {
	seq := &calendarLines{cal: New(nil, nil)}
	count := 0
	for {
		_, ok := seq.next()
		if !ok {
			break
		}
		count++
	}
	assert.Equal(t, 6, count) // preamble plus terminator
	for i := 0; i < 3; i++ {
		_, ok := seq.next()
		assert.False(t, ok)
	}
}

func TestRenderStreamsToWriter(t *testing.T) {
	created := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	cal := New([]postal.DeliveryDate{
		postal.NewDeliveryDate(mustCode(t, "7800"), date(2024, time.June, 3)),
	}, &created)

	var buf bytes.Buffer
	require.NoError(t, cal.Render(&buf))
	assert.Equal(t, cal.String(), buf.String())
}

func TestRenderedDocumentParses(t *testing.T) {
	created := time.Date(2024, time.June, 1, 6, 30, 0, 0, time.UTC)
	cal := New([]postal.DeliveryDate{
		postal.NewDeliveryDate(mustCode(t, "7800"), date(2024, time.June, 3)),
		postal.NewDeliveryDate(mustCode(t, "0150"), date(2024, time.June, 4)),
	}, &created)

	parsed, err := ics.ParseCalendar(strings.NewReader(cal.String()))
	require.NoError(t, err)

	events := parsed.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "postgang-7800-2024-06-03", events[0].GetProperty(ics.ComponentPropertyUniqueId).Value)
	assert.Equal(t, "postgang-0150-2024-06-04", events[1].GetProperty(ics.ComponentPropertyUniqueId).Value)
	assert.Equal(t, "7800: Posten kommer mandag 3.", events[0].GetProperty(ics.ComponentPropertySummary).Value)
}
