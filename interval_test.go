package timewarrior

import (
	"testing"
	"time"
)

func mustTime(t testing.TB, s string) time.Time {
	t.Helper()
	tm, err := time.Parse(timeLayout, s)
	ensure(t, err)
	return tm
}

func TestFormatParseLine_roundTrip(t *testing.T) {
	iv := Interval{
		Range: Range{
			Start: mustTime(t, "20180602T010000Z"),
			End:   mustTime(t, "20180602T020000Z"),
		},
		Annotation: "wrote the spec",
		Tags:       []string{"b", "tag two", "a"},
	}
	line := FormatLine(iv)
	eq(t, line, `inc 20180602T010000Z - 20180602T020000Z # a b "tag two" : wrote the spec`)

	got := must(t, ParseLine(line))
	eq(t, got.Start, iv.Start)
	eq(t, got.End, iv.End)
	eq(t, got.Annotation, iv.Annotation)
	eq(t, got.Tags, []string{"a", "b", "tag two"})
}

func TestFormatLine_open(t *testing.T) {
	iv := Interval{Range: Range{Start: mustTime(t, "20180602T010000Z")}, Tags: []string{"x"}}
	line := FormatLine(iv)
	eq(t, line, "inc 20180602T010000Z # x")

	got := must(t, ParseLine(line))
	ok(t, got.IsOpen(), "expected open interval")
}

func TestQuoteTag_embeddedQuote(t *testing.T) {
	iv := Interval{Range: Range{Start: mustTime(t, "20180602T010000Z")}, Tags: []string{`say "hi"`}}
	line := FormatLine(iv)
	got := must(t, ParseLine(line))
	eq(t, got.Tags, []string{`say "hi"`})
}

func TestRange_startsWithin(t *testing.T) {
	month := Range{Start: mustTime(t, "20180601T000000Z"), End: mustTime(t, "20180701T000000Z")}
	ok(t, (Range{Start: mustTime(t, "20180602T010000Z")}).startsWithin(month), "mid-month start")
	ok(t, !(Range{Start: mustTime(t, "20180701T000000Z")}).startsWithin(month), "next month boundary excluded")
	ok(t, (Range{Start: mustTime(t, "20180601T000000Z")}).startsWithin(month), "month boundary included")
}

func TestRange_intersects_open(t *testing.T) {
	open := Range{Start: mustTime(t, "20180601T000000Z")}
	later := Range{Start: mustTime(t, "20300101T000000Z"), End: mustTime(t, "20300102T000000Z")}
	ok(t, open.intersects(later), "open range should intersect anything after its start")
}

func TestCompareLines_tieBreaks(t *testing.T) {
	closed := FormatLine(Interval{Range: Range{Start: mustTime(t, "20180601T000000Z"), End: mustTime(t, "20180601T010000Z")}})
	open := FormatLine(Interval{Range: Range{Start: mustTime(t, "20180601T000000Z")}})
	ok(t, compareLines(closed, open) < 0, "closed interval should sort before open interval with same start")
}
