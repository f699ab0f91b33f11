package pkgname

import "testing"

func TestParseVersionComponents(t *testing.T) {
	v := ParseVersion("1.2.3nb4")
	want := []Component{
		Digits{N: 1, Width: 1},
		Modifier{Kind: ModDot, Literal: "."},
		Digits{N: 2, Width: 1},
		Modifier{Kind: ModDot, Literal: "."},
		Digits{N: 3, Width: 1},
	}
	if len(v.Components) != len(want) {
		t.Fatalf("got %d components, want %d: %+v", len(v.Components), len(want), v.Components)
	}
	for i := range want {
		if v.Components[i] != want[i] {
			t.Errorf("component %d = %+v, want %+v", i, v.Components[i], want[i])
		}
	}
	if v.Revision != 4 {
		t.Errorf("revision = %d, want 4", v.Revision)
	}
	if got := ParseVersion(v.Format()); Compare(got, v) != 0 {
		t.Errorf("round-trip mismatch: %q -> %+v", v.Format(), got)
	}
}

func TestRCBeforeDot(t *testing.T) {
	rc := ParseVersion("1.0rc2")
	dot := ParseVersion("1.0")
	if !Less(rc, dot) {
		t.Errorf("expected 1.0rc2 < 1.0")
	}
}

func TestRevisionOnlyEqualsZeroRevision(t *testing.T) {
	a := ParseVersion("nb5")
	b := ParseVersion("0nb5")
	if !Equal(a, b) {
		t.Errorf("nb5 should compare equal to 0nb5, got a=%+v b=%+v", a, b)
	}
}

func TestZeroValueIsNegativeInfinity(t *testing.T) {
	var zero Version
	other := ParseVersion("0")
	if !Less(zero, other) {
		t.Errorf("zero value should be less than any parsed version")
	}
}

func TestTotalOrder(t *testing.T) {
	cases := []string{"1.0", "1.0.1", "1.1", "2.0alpha", "2.0beta", "2.0rc1", "2.0", "2.0pl1", "2.0nb1"}
	for i := 0; i < len(cases); i++ {
		for j := 0; j < len(cases); j++ {
			a := ParseVersion(cases[i])
			b := ParseVersion(cases[j])
			lt := Less(a, b)
			eq := Equal(a, b)
			gt := Greater(a, b)
			n := 0
			if lt {
				n++
			}
			if eq {
				n++
			}
			if gt {
				n++
			}
			if n != 1 {
				t.Errorf("exactly one of lt/eq/gt must hold for %q vs %q, got lt=%v eq=%v gt=%v", cases[i], cases[j], lt, eq, gt)
			}
		}
	}
}

func TestParseVersionTotalAndIdempotent(t *testing.T) {
	inputs := []string{"", "1", "1.2.3", "nb5", "1.0_1", "weird$$chars1.2", "1.0pl1nb2", "a"}
	for _, in := range inputs {
		v := ParseVersion(in)
		again := ParseVersion(v.Format())
		if Compare(v, again) != 0 {
			t.Errorf("format not idempotent for %q: formatted %q reparsed to different value", in, v.Format())
		}
	}
}
