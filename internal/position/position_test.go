package position

import "testing"

func TestPositionIsValid(t *testing.T) {
	valid := Position{Filename: "a.orz", Line: 1, Column: 1, Offset: 0}
	if !valid.IsValid() {
		t.Fatalf("expected valid position")
	}

	invalid := Position{Line: 0, Column: 1, Offset: 0}
	if invalid.IsValid() {
		t.Fatalf("expected line 0 to be invalid")
	}
}

func TestPositionString(t *testing.T) {
	p := Position{Filename: "dir/a.orz", Line: 3, Column: 5}
	if got, want := p.String(), "a.orz:3:5"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	p.Filename = ""
	if got, want := p.String(), "3:5"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSpanIsValid(t *testing.T) {
	start := Position{Filename: "a.orz", Line: 1, Column: 1, Offset: 0}
	end := Position{Filename: "a.orz", Line: 1, Column: 5, Offset: 4}

	if !(Span{Start: start, End: end}).IsValid() {
		t.Fatalf("expected valid span")
	}

	mismatched := Span{Start: start, End: Position{Filename: "b.orz", Line: 1, Column: 5, Offset: 4}}
	if mismatched.IsValid() {
		t.Fatalf("expected cross-file span to be invalid")
	}

	backwards := Span{Start: end, End: start}
	if backwards.IsValid() {
		t.Fatalf("expected end-before-start span to be invalid")
	}
}

func TestSpanString(t *testing.T) {
	start := Position{Filename: "a.orz", Line: 2, Column: 1}
	end := Position{Filename: "a.orz", Line: 2, Column: 10}
	single := Span{Start: start, End: end}

	if got, want := single.String(), "a.orz:2:1-10"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	multi := Span{Start: start, End: Position{Filename: "a.orz", Line: 4, Column: 3}}
	if got, want := multi.String(), "a.orz:2:1-4:3"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
