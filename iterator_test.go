package timewarrior

import "testing"

func TestIterator_forwardIsReverseChronological(t *testing.T) {
	s := newTestStore(t)
	iv1 := Interval{Range: Range{Start: mustTime(t, "20180601T010000Z"), End: mustTime(t, "20180601T020000Z")}}
	iv2 := Interval{Range: Range{Start: mustTime(t, "20180602T010000Z"), End: mustTime(t, "20180602T020000Z")}}
	must(t, s.AddInterval(iv1, false))
	must(t, s.AddInterval(iv2, false))

	it := s.Begin()
	defer it.Close()
	ok(t, it.Next(), "expected a first line")
	eq(t, it.Line(), FormatLine(iv2))
	ok(t, it.Next(), "expected a second line")
	eq(t, it.Line(), FormatLine(iv1))
	ok(t, !it.Next(), "iterator should be exhausted")
	ensure(t, it.Err())
}

func TestIterator_reverseIsChronological(t *testing.T) {
	s := newTestStore(t)
	iv1 := Interval{Range: Range{Start: mustTime(t, "20180601T010000Z"), End: mustTime(t, "20180601T020000Z")}}
	iv2 := Interval{Range: Range{Start: mustTime(t, "20180602T010000Z"), End: mustTime(t, "20180602T020000Z")}}
	must(t, s.AddInterval(iv1, false))
	must(t, s.AddInterval(iv2, false))

	it := s.RBegin()
	defer it.Close()
	ok(t, it.Next(), "expected a first line")
	eq(t, it.Line(), FormatLine(iv1))
	ok(t, it.Next(), "expected a second line")
	eq(t, it.Line(), FormatLine(iv2))
	ok(t, !it.Next(), "iterator should be exhausted")
}

func TestIterator_skipsEmptyMonths(t *testing.T) {
	s := newTestStore(t)
	// Force creation of an empty Datafile ahead of the occupied one by
	// deleting an interval after adding it: its month's file remains in
	// s.files but carries zero lines.
	empty := Interval{Range: Range{Start: mustTime(t, "20180515T010000Z"), End: mustTime(t, "20180515T020000Z")}}
	must(t, s.AddInterval(empty, false))
	ensure(t, s.DeleteInterval(empty))

	iv := Interval{Range: Range{Start: mustTime(t, "20180602T010000Z"), End: mustTime(t, "20180602T020000Z")}}
	must(t, s.AddInterval(iv, false))

	it := s.Begin()
	defer it.Close()
	ok(t, it.Next(), "expected the one surviving line")
	eq(t, it.Line(), FormatLine(iv))
	ok(t, !it.Next(), "empty month's file should be skipped entirely")
}

func TestIterator_emptyStore(t *testing.T) {
	s := newTestStore(t)
	it := s.Begin()
	defer it.Close()
	ok(t, !it.Next(), "empty store should yield no lines")
	ensure(t, it.Err())
}

func TestIterator_globalOrderAcrossManyDatafiles(t *testing.T) {
	s := newTestStore(t)
	// Mirrors the out-of-order, multi-year insertion scenario: intervals
	// land in several distinct months (each its own Datafile), inserted
	// in scrambled order, and must still merge into one globally sorted
	// sequence across files.
	iv2016 := Interval{Range: Range{Start: mustTime(t, "20160315T010000Z"), End: mustTime(t, "20160315T020000Z")}}
	iv2017a := Interval{Range: Range{Start: mustTime(t, "20170110T010000Z"), End: mustTime(t, "20170110T020000Z")}}
	iv2017b := Interval{Range: Range{Start: mustTime(t, "20170822T010000Z"), End: mustTime(t, "20170822T020000Z")}}
	iv2018 := Interval{Range: Range{Start: mustTime(t, "20180604T010000Z"), End: mustTime(t, "20180604T020000Z")}}
	iv2019 := Interval{Range: Range{Start: mustTime(t, "20190701T010000Z"), End: mustTime(t, "20190701T020000Z")}}

	// Insertion order is deliberately not chronological, and not grouped
	// by month, so the test can't pass by accident of insertion order.
	for _, iv := range []Interval{iv2018, iv2016, iv2019, iv2017b, iv2017a} {
		must(t, s.AddInterval(iv, false))
	}

	// Five distinct months means five distinct Datafiles.
	eq(t, s.Files(), []string{"2016-03.data", "2017-01.data", "2017-08.data", "2018-06.data", "2019-07.data"})

	forward := s.Begin()
	defer forward.Close()
	var forwardLines []string
	for forward.Next() {
		forwardLines = append(forwardLines, forward.Line())
	}
	ensure(t, forward.Err())
	eq(t, forwardLines, []string{
		FormatLine(iv2019),
		FormatLine(iv2018),
		FormatLine(iv2017b),
		FormatLine(iv2017a),
		FormatLine(iv2016),
	})

	reverse := s.RBegin()
	defer reverse.Close()
	var reverseLines []string
	for reverse.Next() {
		reverseLines = append(reverseLines, reverse.Line())
	}
	ensure(t, reverse.Err())
	eq(t, reverseLines, []string{
		FormatLine(iv2016),
		FormatLine(iv2017a),
		FormatLine(iv2017b),
		FormatLine(iv2018),
		FormatLine(iv2019),
	})
}

func TestIterator_endEqualsExhaustedBegin(t *testing.T) {
	s := newTestStore(t)
	it := s.Begin()
	defer it.Close()
	for it.Next() {
	}
	end := s.End()
	ok(t, it.Equal(end), "exhausted Begin() iterator should equal End()")
}
