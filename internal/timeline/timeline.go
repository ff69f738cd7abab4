// Copyright 2024 RVFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package timeline loads the version timeline of one tracked file: it asks
// the refresh collaborator for fresh ledgers, decodes them, builds the tree
// and lays it out. The last snapshot that loaded cleanly is kept so a
// presenter can keep showing it when a later load fails.
package timeline

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"rvfs/internal/collab"
	"rvfs/internal/common"
	"rvfs/internal/config"
	"rvfs/internal/layout"
	"rvfs/internal/record"
	"rvfs/internal/vtree"
)

// labelLayout is the timestamp format used in version labels.
const labelLayout = "03:04:05 PM, 2 Jan, 2006"

// Snapshot is an immutable, fully built timeline.
type Snapshot struct {
	Name       string // base name of the tracked file
	SourcePath string
	Head       int64
	Tree       *vtree.Tree
	Layout     *layout.Layout
	LoadedAt   time.Time
}

// Label returns the display label of n.
func (s *Snapshot) Label(n *vtree.Node) string {
	return VersionLabel(s.Name, n.Timestamp())
}

// Loader builds snapshots for tracked files.
type Loader struct {
	settings *config.Settings
	runner   *collab.Runner
	refresh  bool
	now      func() time.Time

	mu   sync.Mutex
	last *Snapshot
}

// Option configures a Loader.
type Option func(*Loader)

// WithRefresh controls whether Load runs the refresh collaborator first.
func WithRefresh(enabled bool) Option {
	return func(l *Loader) { l.refresh = enabled }
}

// WithRunner replaces the collaborator runner derived from the settings.
func WithRunner(r *collab.Runner) Option {
	return func(l *Loader) { l.runner = r }
}

// WithClock sets the time source for Snapshot.LoadedAt.
func WithClock(now func() time.Time) Option {
	return func(l *Loader) { l.now = now }
}

// NewLoader creates a Loader. Refresh is enabled by default.
func NewLoader(s *config.Settings, opts ...Option) *Loader {
	l := &Loader{
		settings: s,
		runner:   collab.NewRunner(s),
		refresh:  true,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load builds a fresh snapshot of sourcePath. On failure the previous
// snapshot stays current and the error is returned as is.
func (l *Loader) Load(ctx context.Context, sourcePath string) (*Snapshot, error) {
	snap, err := l.load(ctx, sourcePath)
	if err != nil {
		log.Warnf("[Timeline] Load: %s: %v", sourcePath, err)
		return nil, err
	}

	l.mu.Lock()
	l.last = snap
	l.mu.Unlock()
	return snap, nil
}

func (l *Loader) load(ctx context.Context, sourcePath string) (*Snapshot, error) {
	if l.refresh {
		if err := l.runner.Refresh(ctx, sourcePath); err != nil {
			return nil, err
		}
	}

	base := l.runner.LedgerBase(sourcePath)
	opts := l.settings.RecordOptions()

	var records []record.Record
	err := readFile(record.TreePath(base), func(f *os.File) (err error) {
		records, err = record.ReadTree(f, opts)
		return err
	})
	if err != nil {
		return nil, err
	}

	var head int64
	err = readFile(record.HeadPath(base), func(f *os.File) (err error) {
		head, err = record.ReadHead(f)
		return err
	})
	if err != nil {
		return nil, err
	}

	tree, err := vtree.Build(records, head, l.settings.TreeOptions())
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", record.TreePath(base), err)
	}
	if tree.Current() == nil {
		log.Debugf("[Timeline] load: head %d matches no valid record", head)
	}

	snap := &Snapshot{
		Name:       common.BaseName(sourcePath),
		SourcePath: sourcePath,
		Head:       head,
		Tree:       tree,
		Layout:     layout.Apply(tree, l.settings.Layout),
		LoadedAt:   l.now(),
	}
	log.Debugf("[Timeline] load: %s nodes=%d scale=%g", snap.Name, tree.Len(), snap.Layout.Scale)
	return snap, nil
}

// Last returns the last snapshot that loaded cleanly, or nil.
func (l *Loader) Last() *Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// Show materializes the content of the version at offset in the last
// snapshot.
func (l *Loader) Show(ctx context.Context, offset int64) ([]byte, error) {
	snap, versions, err := l.versions(offset)
	if err != nil {
		return nil, err
	}
	contents, err := l.runner.Materialize(ctx, snap.SourcePath, versions...)
	if err != nil {
		return nil, err
	}
	return contents[0], nil
}

// Compare materializes two versions of the last snapshot for a side by side
// view. Diffing is left to the caller.
func (l *Loader) Compare(ctx context.Context, a, b int64) (left, right []byte, err error) {
	snap, versions, err := l.versions(a, b)
	if err != nil {
		return nil, nil, err
	}
	contents, err := l.runner.Materialize(ctx, snap.SourcePath, versions...)
	if err != nil {
		return nil, nil, err
	}
	return contents[0], contents[1], nil
}

func (l *Loader) versions(offsets ...int64) (*Snapshot, []collab.Version, error) {
	snap := l.Last()
	if snap == nil {
		return nil, nil, fmt.Errorf("%w: no timeline loaded", common.ErrNotFound)
	}
	versions := make([]collab.Version, 0, len(offsets))
	for _, off := range offsets {
		n, ok := snap.Tree.Lookup(off)
		if !ok {
			return nil, nil, fmt.Errorf("%w: no version at offset %d in %s", common.ErrNotFound, off, snap.Name)
		}
		v := collab.Version{Offset: n.Offset()}
		v.Anchor, v.HasAnchor = n.Anchor()
		versions = append(versions, v)
	}
	return snap, versions, nil
}

// VersionLabel formats the label shown for a version of name created at ts
// (Unix seconds, local time).
func VersionLabel(name string, ts int64) string {
	return versionLabelIn(name, ts, time.Local)
}

func versionLabelIn(name string, ts int64, loc *time.Location) string {
	return fmt.Sprintf("%s (created on %s)", name, time.Unix(ts, 0).In(loc).Format(labelLayout))
}

func readFile(path string, fn func(*os.File) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrIO, err)
	}
	defer f.Close()
	if err := fn(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
