package resolver

import (
	"errors"
	"strings"
	"testing"

	"github.com/bayleafwalker/pinresolve/internal/marker"
	"github.com/bayleafwalker/pinresolve/internal/requirement"
)

func testEvaluator() marker.Evaluator {
	return marker.NewEvaluator(marker.DefaultEnvironment("3.11"))
}

func entry(line string, constraint, weak bool) requirement.Entry {
	return requirement.Entry{Requirement: requirement.MustParse(line), Constraint: constraint, Weak: weak}
}

func plain(line string) requirement.Entry { return entry(line, false, false) }

func mustMerge(t *testing.T, a, b requirement.Entry) requirement.Entry {
	t.Helper()
	got, err := Merge(a, b, testEvaluator())
	if err != nil {
		t.Fatalf("Merge(%s, %s) error: %v", a, b, err)
	}
	return got
}

func assertEntry(t *testing.T, want, got requirement.Entry) {
	t.Helper()
	if !want.Equal(got) {
		t.Fatalf("unexpected merge result\nwant: %s\ngot:  %s", want, got)
	}
}

func TestMerge_Simple(t *testing.T) {
	got := mustMerge(t,
		plain(`requests [security,tests] >= 2.8.1, == 2.8.* ; python_version >= "2.7"`),
		plain(`requests [security,foo] >= 2.7`),
	)
	assertEntry(t, plain(`requests[foo,security,tests]>=2.7,>=2.8.1,==2.8.*; python_version >= "2.7"`), got)
}

func TestMerge_ConstraintFlag(t *testing.T) {
	got := mustMerge(t, entry("foo >= 2.8", true, false), entry("foo [test] < 3.0", true, false))
	assertEntry(t, entry("foo[test]>=2.8,<3.0", true, false), got)

	got = mustMerge(t, entry("foo >= 2.8", false, false), entry("foo [test] < 3.0", true, false))
	assertEntry(t, entry("foo[test]>=2.8,<3.0", false, false), got)
}

func TestMerge_IsCommutativeForEqualWeakness(t *testing.T) {
	pairs := [][2]requirement.Entry{
		{plain("foo[a]>=1.0"), plain("foo[b]<3.0")},
		{entry("foo==1.0", true, true), entry("foo>=0.5", true, true)},
		{plain("foo>=1.0"), plain("foo @ https://example.com/foo.zip")},
	}
	for _, p := range pairs {
		ab := mustMerge(t, p[0], p[1])
		ba := mustMerge(t, p[1], p[0])
		assertEntry(t, ab, ba)
	}
}

func TestMerge_MixedWeaknessIsCanonicalized(t *testing.T) {
	weak := entry("foo==2.0", true, true)
	strong := plain("foo[test]>=1.0")
	assertEntry(t, mustMerge(t, weak, strong), mustMerge(t, strong, weak))
}

func TestMerge_Markers(t *testing.T) {
	want := plain(`foo >= 1.0 ; python_version >= "2.7"`)
	got := mustMerge(t, plain(`foo >= 1.0 ; python_version >= "2.7"`), plain(`foo < 1.0 ; python_version < "2.7"`))
	assertEntry(t, want, got)

	got = mustMerge(t, plain(`foo < 1.0 ; python_version < "2.7"`), plain(`foo >= 1.0 ; python_version >= "2.7"`))
	assertEntry(t, want, got)
}

func TestMerge_LocatorAndSpecifier(t *testing.T) {
	got := mustMerge(t, plain("foo[bar] >= 2.0"), plain("foo @ https://invalid.com"))
	assertEntry(t, plain("foo[bar] @ https://invalid.com"), got)

	_, err := Merge(plain("foo[bar] == 2.0"), plain("foo @ https://invalid.com"), testEvaluator())
	if !errors.Is(err, ErrLocatorConstraint) {
		t.Fatalf("expected ErrLocatorConstraint, got %v", err)
	}
	if !strings.Contains(err.Error(), "==2.0") {
		t.Fatalf("expected error to name the specifier, got %q", err)
	}
}

func TestMerge_LocatorAdmitsOpenEndedSpecifiers(t *testing.T) {
	// A locator counts as LocatorVersion, so only clauses that version
	// satisfies may sit next to it.
	tests := []struct {
		spec string
		ok   bool
	}{
		{"!= 2.0", true},
		{"> 2.0", true},
		{">= 1.0, != 1.5", true},
		{"< 3.0", false},
		{"<= 2.0", false},
		{"~= 2.0", false},
		{"== 2.*", false},
	}
	for _, tt := range tests {
		got, err := Merge(plain("foo "+tt.spec), plain("foo @ https://invalid.com"), testEvaluator())
		if !tt.ok {
			if !errors.Is(err, ErrLocatorConstraint) {
				t.Fatalf("%s: expected ErrLocatorConstraint, got %v", tt.spec, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.spec, err)
		}
		assertEntry(t, plain("foo @ https://invalid.com"), got)
	}
}

func TestMerge_OverrideDefault(t *testing.T) {
	got := mustMerge(t, entry("foo == 2.0", true, true), plain("foo[test] == 2.1"))
	assertEntry(t, plain("foo[test]==2.1"), got)

	// A default survives unless the strong side pins exactly.
	got = mustMerge(t, entry("foo == 2.0", true, true), plain("foo[test] >= 1.0"))
	assertEntry(t, plain("foo[test]>=1.0,==2.0"), got)
}

func TestMerge_WeakDefaultsIntersect(t *testing.T) {
	got := mustMerge(t, entry("foo==1.0", true, true), entry("foo==2.0", true, true))
	assertEntry(t, entry("foo==1.0,==2.0", true, true), got)
}

func TestMerge_MixedNames(t *testing.T) {
	_, err := Merge(plain("foo==0.1"), plain("bar==0.2"), testEvaluator())
	if !errors.Is(err, ErrNameMismatch) {
		t.Fatalf("expected ErrNameMismatch, got %v", err)
	}
}

func TestMerge_Locators(t *testing.T) {
	_, err := Merge(plain("foo @ http://url1"), plain("foo @ http://url2"), testEvaluator())
	if !errors.Is(err, ErrInconsistentLocator) {
		t.Fatalf("expected ErrInconsistentLocator, got %v", err)
	}

	got := mustMerge(t, entry("foo @ http://url1", true, true), plain("foo[x] @ http://url2"))
	assertEntry(t, plain("foo[x] @ http://url2"), got)
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	a := plain("foo[a]>=1.0")
	b := plain("foo[b]<2.0")
	_ = mustMerge(t, a, b)
	assertEntry(t, plain("foo[a]>=1.0"), a)
	assertEntry(t, plain("foo[b]<2.0"), b)
}
