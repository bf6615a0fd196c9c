package viewer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/revview/internal/invoke"
)

func TestScripts_Register(t *testing.T) {
	doc := NewDocument("", []string{"a"})
	s := NewScripts(func() *Document { return doc }, nil)
	defer s.Close()

	require.NoError(t, s.DoString(upperScript))
	assert.Equal(t, []int{1, 2, 3}, s.Slots())
	assert.Equal(t, map[int]string{1: "Upper", 2: "Noop", 3: "Broken"}, s.Names())

	_, err := s.Action(4, 0, doc)
	assert.ErrorIs(t, err, ErrNoScript)
	_, err = s.Action(0, 0, doc)
	assert.ErrorIs(t, err, ErrNoScript)

	err = s.DoString(`revview.action(10, "x", function() end)`)
	assert.ErrorIs(t, err, ErrScriptLoad)

	err = s.DoString(`this is not lua`)
	assert.ErrorIs(t, err, ErrScriptLoad)
}

func TestScripts_DocumentAPI(t *testing.T) {
	doc := NewDocument("", []string{"one", "two"})
	var status []string
	s := NewScripts(func() *Document { return doc }, func(msg string) { status = append(status, msg) })
	defer s.Close()

	require.NoError(t, s.DoString(`
revview.action(5, "Shuffle", function(n)
	local count = revview.line_count()
	revview.insert_line(count + 1, "tail " .. count)
	revview.delete_line(1)
	revview.status("cursor " .. n)
end)
revview.action(6, "OutOfRange", function(n)
	revview.set_line(99, "x")
end)
`))

	action, err := s.Action(5, 1, doc)
	require.NoError(t, err)
	assert.Equal(t, "Shuffle", action.Name())
	assert.Same(t, doc, action.Target())

	_, err = invoke.Call(context.Background(), action)
	require.NoError(t, err)
	assert.Equal(t, []string{"two", "tail 2"}, doc.Lines())
	assert.Equal(t, []string{"cursor 2"}, status)

	bad, err := s.Action(6, 0, doc)
	require.NoError(t, err)
	_, err = invoke.Call(context.Background(), bad)
	assert.ErrorIs(t, err, invoke.ErrTargetFailed)
	assert.Contains(t, err.Error(), "line out of range")
}

func TestLoadScripts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actions.lua")
	require.NoError(t, os.WriteFile(path, []byte(upperScript), 0o644))

	s, err := LoadScripts(path, func() *Document { return nil }, nil)
	require.NoError(t, err)
	defer s.Close()
	assert.Len(t, s.Slots(), 3)

	_, err = LoadScripts(filepath.Join(t.TempDir(), "missing.lua"), func() *Document { return nil }, nil)
	assert.ErrorIs(t, err, ErrScriptLoad)
}
