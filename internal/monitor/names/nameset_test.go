package names

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputCandidates(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want []string
	}{
		{"absent", Input{}, nil},
		{"mixed delimiters", FromText("chrome, python; notepad\npython"), []string{"chrome", "python", "notepad", "python"}},
		{"blank pieces", FromText(" ,; \n ,"), []string{}},
		{"list items are not split", FromList([]string{" a,b ", "", "  ", "c"}), []string{"a,b", "c"}},
		{"empty list", FromList(nil), []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Candidates())
		})
	}
}

func TestInputGiven(t *testing.T) {
	assert.False(t, Input{}.Given())
	assert.True(t, FromText("").Given())
	assert.True(t, FromList(nil).Given())
}

func TestMerge(t *testing.T) {
	t.Run("splits, trims and de-duplicates in first-seen order", func(t *testing.T) {
		s := NewSet()
		require.NoError(t, s.Merge(FromText("chrome, python; notepad\npython"), true))
		assert.Equal(t, []string{"chrome", "python", "notepad"}, s.List())
	})

	t.Run("keeps the casing of the first occurrence", func(t *testing.T) {
		s := NewSet("Python.exe", "Chrome.exe")
		require.NoError(t, s.Merge(FromList([]string{"pYtHon.Exe", "beta"}), true))
		assert.Equal(t, []string{"Python.exe", "Chrome.exe", "beta"}, s.List())
	})

	t.Run("names string with repeated entry", func(t *testing.T) {
		s := NewSet()
		require.NoError(t, s.Merge(FromText(" Alpha.exe; beta.exe,\nAlpha.exe "), true))
		assert.Equal(t, []string{"Alpha.exe", "beta.exe"}, s.List())
	})

	t.Run("rejects input without usable names when one is required", func(t *testing.T) {
		s := NewSet("a")
		for _, in := range []Input{FromList([]string{"", "   "}), FromList(nil), FromText(" ; "), {}} {
			err := s.Merge(in, true)
			assert.IsType(t, ErrNoNames{}, err)
		}
		assert.Equal(t, []string{"a"}, s.List())
	})

	t.Run("empty input is fine when nothing is required", func(t *testing.T) {
		s := NewSet("a")
		assert.NoError(t, s.Merge(FromText(""), false))
		assert.Equal(t, []string{"a"}, s.List())
	})

	t.Run("re-adding an existing name is a no-op", func(t *testing.T) {
		s := NewSet("a", "b")
		assert.NoError(t, s.Merge(FromList([]string{"A"}), true))
		assert.Equal(t, []string{"a", "b"}, s.List())
	})
}

func TestReplace(t *testing.T) {
	s := NewSet("a", "b")

	assert.False(t, s.Replace(Input{}))
	assert.Equal(t, []string{"a", "b"}, s.List())

	assert.False(t, s.Replace(FromList([]string{" "})))
	assert.Equal(t, []string{"a", "b"}, s.List())

	assert.True(t, s.Replace(FromText("C;c;d")))
	assert.Equal(t, []string{"C", "d"}, s.List())
	assert.False(t, s.Contains("a"))
	assert.True(t, s.Contains("c"))
}

func TestRemove(t *testing.T) {
	s := NewSet("Python.exe", "test1", "test2")

	removed, err := s.Remove("  PYTHON.EXE ")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, []string{"test1", "test2"}, s.List())

	removed, err = s.Remove("nonexistent_process")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, []string{"test1", "test2"}, s.List())

	_, err = s.Remove("   ")
	assert.IsType(t, ErrBlankName{}, err)
	assert.Equal(t, 2, s.Len())

	// the name can be added back after removal
	require.NoError(t, s.Merge(FromText("python.exe"), true))
	assert.Equal(t, []string{"test1", "test2", "python.exe"}, s.List())
}

func TestListIsACopy(t *testing.T) {
	s := NewSet("a")
	l := s.List()
	l[0] = "mutated"
	assert.Equal(t, []string{"a"}, s.List())
}

func TestNoCaseInsensitiveDuplicates(t *testing.T) {
	inputs := []Input{
		FromText("x,X, x ;y\nY"),
		FromList([]string{"Zed", "zed", "ZED", "q"}),
		FromText("Q;z"),
	}
	s := NewSet()
	for _, in := range inputs {
		_ = s.Merge(in, false)
	}
	seen := map[string]bool{}
	for _, n := range s.List() {
		k := strings.ToLower(n)
		assert.False(t, seen[k], "duplicate %q", n)
		seen[k] = true
	}
	assert.Equal(t, []string{"x", "y", "Zed", "q", "z"}, s.List())
}
