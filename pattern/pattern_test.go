package pattern_test

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/jt05610/sandtable/errors"
	"github.com/jt05610/sandtable/pattern"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCases = []struct {
	name   string
	input  string
	expect []pattern.Coordinate
}{
	{
		name:  "normalized",
		input: "1.5 0\n2.5 0.5\n4.0 1.0\n",
		expect: []pattern.Coordinate{
			{Theta: 0, Rho: 0},
			{Theta: 1, Rho: 0.5},
			{Theta: 2.5, Rho: 1},
		},
	},
	{
		name:  "comments and blanks",
		input: "# header\n\n0 0\n   \n# mid\n3.14 1\n",
		expect: []pattern.Coordinate{
			{Theta: 0, Rho: 0},
			{Theta: 3.14, Rho: 1},
		},
	},
	{
		name:  "malformed lines skipped",
		input: "0 0\n1 2 3\nabc 0.5\n0.5\n1 x\n2 0.25\n",
		expect: []pattern.Coordinate{
			{Theta: 0, Rho: 0},
			{Theta: 2, Rho: 0.25},
		},
	},
	{
		name:  "non-finite values skipped",
		input: "0 0.5\ninf 0.5\n1 NaN\n-Inf 0.2\n1e400 0.3\n2 0.75\n",
		expect: []pattern.Coordinate{
			{Theta: 0, Rho: 0.5},
			{Theta: 2, Rho: 0.75},
		},
	},
	{
		name:   "empty",
		input:  "# nothing here\n\n",
		expect: []pattern.Coordinate{},
	},
	{
		name:  "negative start",
		input: "-6.28 0.1\n-3.14 0.2\n",
		expect: []pattern.Coordinate{
			{Theta: 0, Rho: 0.1},
			{Theta: 3.14, Rho: 0.2},
		},
	},
}

func TestParse(t *testing.T) {
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			coords, err := pattern.Parse(strings.NewReader(tc.input), nil)
			require.NoError(t, err)
			require.Len(t, coords, len(tc.expect))
			for i, c := range coords {
				assert.InDelta(t, tc.expect[i].Theta, c.Theta, 1e-9, "theta %d", i)
				assert.InDelta(t, tc.expect[i].Rho, c.Rho, 1e-9, "rho %d", i)
			}
		})
	}
}

func TestNormalizeProperty(t *testing.T) {
	raw := []pattern.Coordinate{{Theta: 12.3, Rho: 0.2}, {Theta: -4, Rho: 0.3}, {Theta: 100, Rho: 0.9}}
	orig := append([]pattern.Coordinate(nil), raw...)
	norm := pattern.Normalize(raw)
	require.Len(t, norm, 3)
	assert.Equal(t, 0.0, norm[0].Theta)
	for i := range norm {
		assert.InDelta(t, orig[i].Theta-orig[0].Theta, norm[i].Theta, 1e-12)
		assert.Equal(t, orig[i].Rho, norm[i].Rho)
	}
}

func testLibrary() *pattern.Library {
	return pattern.NewLibrary(fstest.MapFS{
		"star.thr":              {Data: []byte("0 0\n1 1\n")},
		"custom/spiral.thr":     {Data: []byte("0 0.9\n1 0.8\n")},
		"clear_from_in.thr":     {Data: []byte("0 0\n1 1\n")},
		"clear_from_out.thr":    {Data: []byte("0 1\n1 0\n")},
		"clear_sideway.thr":     {Data: []byte("0 0\n1 1\n")},
		"inner.thr":             {Data: []byte("0 0.2\n1 0.9\n")},
		"outer.thr":             {Data: []byte("0 0.8\n1 0.1\n")},
		"empty.thr":             {Data: []byte("# nothing\n")},
		"custom/nested/dot.thr": {Data: []byte("0 0\n")},
	}, nil)
}

func TestLibraryList(t *testing.T) {
	files, err := testLibrary().List()
	require.NoError(t, err)
	assert.Contains(t, files, "custom/spiral.thr")
	assert.Contains(t, files, "custom/nested/dot.thr")
	assert.IsIncreasing(t, files)
}

func TestLibraryOpenMissing(t *testing.T) {
	lib := testLibrary()
	_, err := lib.Open("missing.thr")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))

	_, err = lib.Open("custom")
	assert.True(t, errors.IsCode(err, errors.ErrNotFound))
}

func TestLoad(t *testing.T) {
	coords, err := pattern.Load(testLibrary(), "custom/spiral.thr", nil)
	require.NoError(t, err)
	require.Len(t, coords, 2)
	assert.Equal(t, 0.9, coords[0].Rho)
}
