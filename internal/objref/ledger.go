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

// Package objref maintains the object reference ledger: a text file of
// "<hexdigest> <count>" lines counting how many live version records point
// at each content object. Objects whose count reaches zero are collectable.
//
// Every mutation is one read-modify-write transaction under an exclusive
// file lock on a sidecar lock file, so concurrent processes creating and
// retiring versions never lose updates. The ledger is rewritten through a
// temporary file and an atomic rename.
package objref

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"rvfs/internal/common"
)

const lockRetryDelay = 10 * time.Millisecond

// Entry is one ledger line.
type Entry struct {
	Hash  string
	Count int64
}

// LedgerError describes an unreadable ledger line.
type LedgerError struct {
	Path string
	Line int
	Text string
	Err  error
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("%s: %s line %d %q: %v", common.ErrCorruptLedger, e.Path, e.Line, e.Text, e.Err)
}

func (e *LedgerError) Unwrap() error { return common.ErrCorruptLedger }

// Ledger is a handle on one reference ledger file. It is safe for concurrent
// use; separate handles (or processes) on the same path serialize through
// the lock file.
type Ledger struct {
	path      string
	lockPath  string
	digestLen int

	mu sync.Mutex
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithDigestLength requires hashes to be hex digests of exactly n characters.
// Zero accepts any non-empty token.
func WithDigestLength(n int) Option {
	return func(l *Ledger) { l.digestLen = n }
}

// Open returns a handle for the ledger at path. The file does not need to
// exist; it is created by the first insert.
func Open(path string, opts ...Option) *Ledger {
	l := &Ledger{
		path:     path,
		lockPath: path + ".lock",
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the ledger file path.
func (l *Ledger) Path() string { return l.path }

// InsertOrBump applies delta (+1 or -1) to the count of hash and returns the
// new count. A missing hash is appended with count 1 on +1; on -1 it fails
// with common.ErrNotFound. A count is never driven below zero.
func (l *Ledger) InsertOrBump(ctx context.Context, hash string, delta int) (int64, error) {
	if delta != 1 && delta != -1 {
		return 0, fmt.Errorf("%w: %d", common.ErrInvalidDelta, delta)
	}
	if err := l.checkHash(hash); err != nil {
		return 0, err
	}

	var count int64
	err := l.withLock(ctx, true, func() error {
		entries, err := l.load()
		if err != nil {
			return err
		}

		idx := indexOf(entries, hash)
		switch {
		case idx >= 0:
			next := entries[idx].Count + int64(delta)
			if next < 0 {
				return fmt.Errorf("%w: %s has count %d", common.ErrNegativeRefCount, hash, entries[idx].Count)
			}
			entries[idx].Count = next
			count = next
		case delta > 0:
			entries = append(entries, Entry{Hash: hash, Count: 1})
			count = 1
		default:
			return fmt.Errorf("%w: object %s in %s", common.ErrNotFound, hash, l.path)
		}
		return l.write(entries)
	})
	if err != nil {
		return 0, err
	}

	log.Debugf("[ObjRef] InsertOrBump: hash=%s delta=%+d count=%d", hash, delta, count)
	return count, nil
}

// Bump records one more reference to hash.
func (l *Ledger) Bump(ctx context.Context, hash string) (int64, error) {
	return l.InsertOrBump(ctx, hash, 1)
}

// Drop releases one reference to hash.
func (l *Ledger) Drop(ctx context.Context, hash string) (int64, error) {
	return l.InsertOrBump(ctx, hash, -1)
}

// Get returns the current count of hash.
func (l *Ledger) Get(ctx context.Context, hash string) (int64, error) {
	entries, err := l.Entries(ctx)
	if err != nil {
		return 0, err
	}
	idx := indexOf(entries, hash)
	if idx < 0 {
		return 0, fmt.Errorf("%w: object %s in %s", common.ErrNotFound, hash, l.path)
	}
	return entries[idx].Count, nil
}

// Entries returns every ledger entry in file order.
func (l *Ledger) Entries(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	err := l.withLock(ctx, false, func() error {
		var err error
		entries, err = l.load()
		return err
	})
	return entries, err
}

// Unreferenced lists hashes whose count is zero, in file order.
func (l *Ledger) Unreferenced(ctx context.Context) ([]string, error) {
	entries, err := l.Entries(ctx)
	if err != nil {
		return nil, err
	}
	return zeroHashes(entries), nil
}

// Sweep removes zero-count entries in one transaction and returns the hashes
// it removed, so the caller can delete their objects.
func (l *Ledger) Sweep(ctx context.Context) ([]string, error) {
	var removed []string
	err := l.withLock(ctx, true, func() error {
		entries, err := l.load()
		if err != nil {
			return err
		}
		removed = zeroHashes(entries)
		if len(removed) == 0 {
			return nil
		}
		kept := entries[:0]
		for _, e := range entries {
			if e.Count > 0 {
				kept = append(kept, e)
			}
		}
		return l.write(kept)
	})
	if err != nil {
		return nil, err
	}
	log.Debugf("[ObjRef] Sweep: removed %d unreferenced entries from %s", len(removed), l.path)
	return removed, nil
}

// withLock runs fn under the in-process mutex and the file lock. Both are
// released on every return path.
func (l *Ledger) withLock(ctx context.Context, exclusive bool, fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	fl := flock.New(l.lockPath)
	var (
		locked bool
		err    error
	)
	if exclusive {
		locked, err = fl.TryLockContext(ctx, lockRetryDelay)
	} else {
		locked, err = fl.TryRLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		return fmt.Errorf("%w: lock %s: %v", common.ErrIO, l.lockPath, err)
	}
	if !locked {
		return fmt.Errorf("%w: lock %s not acquired", common.ErrIO, l.lockPath)
	}
	defer func() {
		if err := fl.Unlock(); err != nil {
			log.Warnf("[ObjRef] unlock %s: %v", l.lockPath, err)
		}
	}()

	return fn()
}

func (l *Ledger) load() ([]Entry, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: open %s: %v", common.ErrIO, l.path, err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, &LedgerError{Path: l.path, Line: line, Text: text, Err: fmt.Errorf("want 2 fields, got %d", len(fields))}
		}
		count, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, &LedgerError{Path: l.path, Line: line, Text: text, Err: err}
		}
		if count < 0 {
			return nil, &LedgerError{Path: l.path, Line: line, Text: text, Err: common.ErrNegativeRefCount}
		}
		entries = append(entries, Entry{Hash: fields[0], Count: count})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", common.ErrIO, l.path, err)
	}
	return entries, nil
}

// write replaces the ledger with entries via a temp file in the same
// directory and a rename.
func (l *Ledger) write(entries []Entry) (err error) {
	dir := filepath.Dir(l.path)
	tmpPath := filepath.Join(dir, "."+filepath.Base(l.path)+"."+uuid.New().String()+".tmp")

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", common.ErrIO, tmpPath, err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmpPath)
		}
	}()

	w := bufio.NewWriter(f)
	for _, e := range entries {
		if _, err = fmt.Fprintf(w, "%s %d\n", e.Hash, e.Count); err != nil {
			return fmt.Errorf("%w: write %s: %v", common.ErrIO, tmpPath, err)
		}
	}
	if err = w.Flush(); err != nil {
		return fmt.Errorf("%w: write %s: %v", common.ErrIO, tmpPath, err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %v", common.ErrIO, tmpPath, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", common.ErrIO, tmpPath, err)
	}
	if err = os.Rename(tmpPath, l.path); err != nil {
		return fmt.Errorf("%w: replace %s: %v", common.ErrIO, l.path, err)
	}
	return nil
}

func (l *Ledger) checkHash(hash string) error {
	if hash == "" || strings.ContainsFunc(hash, notHex) {
		return fmt.Errorf("%w: %q is not a hex digest", common.ErrInvalidHash, hash)
	}
	if l.digestLen > 0 && len(hash) != l.digestLen {
		return fmt.Errorf("%w: %q is not a %d-char hex digest", common.ErrInvalidHash, hash, l.digestLen)
	}
	return nil
}

func indexOf(entries []Entry, hash string) int {
	for i, e := range entries {
		if e.Hash == hash {
			return i
		}
	}
	return -1
}

func zeroHashes(entries []Entry) []string {
	var hashes []string
	for _, e := range entries {
		if e.Count == 0 {
			hashes = append(hashes, e.Hash)
		}
	}
	return hashes
}

func notHex(r rune) bool {
	return !('0' <= r && r <= '9' || 'a' <= r && r <= 'f' || 'A' <= r && r <= 'F')
}
