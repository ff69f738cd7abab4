package timeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rvfs/internal/collab"
	"rvfs/internal/common"
	"rvfs/internal/config"
)

var workedExample = []string{
	"1 1000 1 aaa _ 0 -1",
	"1 1001 0 bbb _ 1 326",
	"0 1002 0 ccc _ 0 652",
	"1 1003 0 ddd _ 1 978",
}

type env struct {
	settings *config.Settings
	source   string
	base     string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	root := t.TempDir()
	s := config.Defaults()
	s.TempDir = filepath.Join(root, "rvfs")
	s.CollaboratorWaitMS = 2000
	require.NoError(t, os.MkdirAll(s.TempDir, 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "mountdir", "docs"), 0755))
	return &env{
		settings: s,
		source:   filepath.Join(root, "mountdir", "docs", "notes.txt"),
		base:     filepath.Join(s.TempDir, "notes.txt"),
	}
}

func (e *env) writeLedgers(t *testing.T, head string, lines ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(e.base+".tree", []byte(strings.Join(lines, "\n")+"\n"), 0644))
	require.NoError(t, os.WriteFile(e.base+".head", []byte(head+"\n"), 0644))
}

func fixedClock() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

func TestLoad(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e := newEnv(t)
	e.writeLedgers(t, "v1003 /somewhere", workedExample...)

	l := NewLoader(e.settings, WithRefresh(false), WithClock(fixedClock))
	assert.Nil(t, l.Last())

	snap, err := l.Load(ctx, e.source)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", snap.Name)
	assert.Equal(t, int64(1003), snap.Head)
	assert.Equal(t, fixedClock(), snap.LoadedAt)
	assert.Equal(t, 3, snap.Tree.Len())
	assert.Equal(t, "ddd", snap.Tree.Current().Hash())
	require.Len(t, snap.Layout.Positions, 3)
	assert.Same(t, snap, l.Last())
}

func TestLoadKeepsLastGood(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e := newEnv(t)
	e.writeLedgers(t, "1003", workedExample...)
	l := NewLoader(e.settings, WithRefresh(false))

	good, err := l.Load(ctx, e.source)
	require.NoError(t, err)

	tests := []struct {
		name  string
		lines []string
		want  error
	}{
		{"malformed line", []string{"1 1000 1 aaa _ 0"}, common.ErrParse},
		{"two roots", []string{"1 1000 1 aaa _ 0 -1", "1 1001 1 bbb _ 0 -1"}, common.ErrMultipleRoots},
		{"dangling parent", []string{"1 1000 1 aaa _ 0 -1", "1 1001 1 bbb _ 0 9999"}, common.ErrDanglingParent},
		{"no root", []string{"0 1000 1 aaa _ 0 -1"}, common.ErrNoRoot},
	}
	for _, tt := range tests {
		e.writeLedgers(t, "1003", tt.lines...)
		snap, err := l.Load(ctx, e.source)
		assert.ErrorIs(t, err, tt.want, tt.name)
		assert.Nil(t, snap, tt.name)
		assert.Same(t, good, l.Last(), tt.name)
	}
}

func TestLoadMissingLedger(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	l := NewLoader(e.settings, WithRefresh(false))
	_, err := l.Load(context.Background(), e.source)
	assert.ErrorIs(t, err, common.ErrIO)
	assert.Nil(t, l.Last())
}

func TestLoadWithRefresh(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("fake collaborators are shell scripts")
	}

	e := newEnv(t)
	script := filepath.Join(t.TempDir(), "guidata")
	body := fmt.Sprintf("#!/bin/sh\nprintf '%%s\\n%%s\\n' '%s' '%s' > %q\nprintf '1001\\n' > %q\n",
		workedExample[0], workedExample[1], e.base+".tree", e.base+".head")
	require.NoError(t, os.WriteFile(script, []byte(body), 0755))
	e.settings.RefreshCommand = script

	snap, err := NewLoader(e.settings).Load(context.Background(), e.source)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Tree.Len())
	assert.Equal(t, "bbb", snap.Tree.Current().Hash())
}

func TestShowAndCompare(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("fake collaborators are shell scripts")
	}
	ctx := context.Background()

	e := newEnv(t)
	e.writeLedgers(t, "1003", workedExample...)
	script := filepath.Join(t.TempDir(), "guiswitch")
	body := fmt.Sprintf("#!/bin/sh\nout=%[1]q/switch1\n[ -e \"$out\" ] && out=%[1]q/switch2\nprintf '%%s@%%s' \"$2\" \"$3\" > \"$out\"\n", e.settings.TempDir)
	require.NoError(t, os.WriteFile(script, []byte(body), 0755))
	runner := collab.NewRunner(e.settings)
	runner.MaterializeCommand = script

	l := NewLoader(e.settings, WithRefresh(false), WithRunner(runner))

	_, err := l.Show(ctx, 0)
	assert.ErrorIs(t, err, common.ErrNotFound, "nothing loaded yet")

	_, err = l.Load(ctx, e.source)
	require.NoError(t, err)

	content, err := l.Show(ctx, 978)
	require.NoError(t, err)
	assert.Equal(t, "978@978", string(content))

	left, right, err := l.Compare(ctx, 0, 326)
	require.NoError(t, err)
	assert.Equal(t, "0@326", string(left), "root inherits the anchor of its LO descendant")
	assert.Equal(t, "326@326", string(right))

	_, err = l.Show(ctx, 652)
	assert.ErrorIs(t, err, common.ErrNotFound, "invalid records have no node")
}

func TestVersionLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "notes.txt (created on 12:00:00 AM, 1 Jan, 1970)", versionLabelIn("notes.txt", 0, time.UTC))
	assert.Equal(t, "a.md (created on 01:46:40 AM, 9 Sep, 2001)", versionLabelIn("a.md", 1_000_000_000, time.UTC))
	assert.Contains(t, VersionLabel("x", 1000), "x (created on ")
}
