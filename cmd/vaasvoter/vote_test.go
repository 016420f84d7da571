package main

import (
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"

	"go.vocdoni.io/vaas/api"
	"go.vocdoni.io/vaas/types"
)

func TestParseChoices(t *testing.T) {
	c := qt.New(t)
	choices, err := parseChoices("0, 2,1")
	c.Assert(err, qt.IsNil)
	c.Assert(choices, qt.DeepEquals, []int{0, 2, 1})

	for _, s := range []string{"", "a", "1,,2", "-1"} {
		_, err := parseChoices(s)
		c.Assert(err, qt.ErrorIs, api.ErrConfig, qt.Commentf("%q", s))
	}
}

func TestParseElectionID(t *testing.T) {
	c := qt.New(t)
	hex := strings.Repeat("ab", types.ElectionIDLength)
	id, err := parseElectionID("0x" + hex)
	c.Assert(err, qt.IsNil)
	c.Assert(id.String(), qt.Equals, hex)

	_, err = parseElectionID("abcd")
	c.Assert(err, qt.ErrorIs, api.ErrConfig)
	_, err = parseElectionID("zz")
	c.Assert(err, qt.ErrorIs, api.ErrConfig)
}

func TestPromptWithoutQuestions(t *testing.T) {
	_, err := promptChoices(nil)
	qt.Assert(t, err, qt.ErrorIs, api.ErrConfig)
}

func TestRunExitCode(t *testing.T) {
	c := qt.New(t)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	rootCmd.SetArgs([]string{"--version"})
	c.Assert(run(), qt.Equals, 0)

	rootCmd.SetArgs([]string{"wait-tx", "zz", "--dataDir", t.TempDir(), "--apiUrl", "http://127.0.0.1:1"})
	c.Assert(run(), qt.Equals, 1)
}
