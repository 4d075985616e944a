package main

import (
	"flag"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	newFS := func() (*flag.FlagSet, *string) {
		fs := flag.NewFlagSet("add", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		return fs, fs.String("artist", "", "")
	}

	t.Run("positional before flags", func(t *testing.T) {
		fs, artist := newFS()
		args, err := parseCommand(fs, []string{"a.json", "b.json", "-artist", "AR1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"a.json", "b.json"}, args)
		assert.Equal(t, "AR1", *artist)
	})

	t.Run("flags first", func(t *testing.T) {
		fs, artist := newFS()
		args, err := parseCommand(fs, []string{"-artist", "AR2", "c.json"})
		require.NoError(t, err)
		assert.Equal(t, []string{"c.json"}, args)
		assert.Equal(t, "AR2", *artist)
	})

	t.Run("unknown flag", func(t *testing.T) {
		fs, _ := newFS()
		_, err := parseCommand(fs, []string{"a.json", "-loud"})
		assert.Error(t, err)
	})
}

func TestParseTrackID(t *testing.T) {
	id, err := parseTrackID(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)

	for _, bad := range []string{"", "0", "-3", "abc", "4.5"} {
		_, err := parseTrackID(bad)
		assert.Error(t, err, bad)
	}
}

func TestCommandTable(t *testing.T) {
	seen := map[string]bool{}
	for _, c := range commands {
		assert.False(t, seen[c.name], "duplicate command %s", c.name)
		seen[c.name] = true
		assert.NotNil(t, c.run, c.name)
	}
	for _, want := range []string{"add", "match", "get", "find", "list", "rename", "delete", "delete-name", "ingest", "watch", "init-config"} {
		assert.True(t, seen[want], want)
	}
}
