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

// Package record decodes the version ledger files written by the rvfs
// producer: the per-file .tree ledger (one version record per line) and the
// .head pointer naming the checked-out version.
package record

import (
	"fmt"
	"strconv"
	"strings"

	"rvfs/internal/common"
)

// Lopo marks a record as a latest-offset anchor (LO) or a plain continuation (PO).
type Lopo uint8

const (
	PO Lopo = iota
	LO
)

func (l Lopo) String() string {
	if l == LO {
		return "LO"
	}
	return "PO"
}

const (
	// RootParent is the parent offset sentinel of the root record.
	RootParent int64 = -1

	// EmptyTag is the on-disk encoding of an empty tag.
	EmptyTag = "_"

	fieldCount = 7
)

// Field names, in ledger order. Used in ParseError.
var fieldNames = [fieldCount]string{"valid", "timestamp", "lopo", "hash", "tag", "diff_lines", "parent_offset"}

// Record is one decoded .tree ledger line.
type Record struct {
	Valid        bool
	Timestamp    int64 // seconds since epoch
	Lopo         Lopo
	Hash         string
	Tag          string // empty when the ledger carries "_"
	DiffLines    int
	ParentOffset int64 // RootParent for the root
}

// IsRoot reports whether the record carries the root sentinel.
func (r Record) IsRoot() bool {
	return r.ParentOffset == RootParent
}

// Options controls how the lopo column is interpreted.
type Options struct {
	// LOFlag is the lopo token the producer writes for LO records.
	// The literal tokens "LO" and "PO" are always understood.
	LOFlag string
}

// DefaultOptions matches the producer's "lo=0/po" encoding.
func DefaultOptions() Options {
	return Options{LOFlag: "0"}
}

// ParseError describes a malformed ledger line.
type ParseError struct {
	Line  int // 1-based, 0 when unknown
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString(common.ErrParse.Error())
	if e.Line > 0 {
		fmt.Fprintf(&b, " at line %d", e.Line)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, ": field %s=%q", e.Field, e.Value)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ParseError) Unwrap() error { return common.ErrParse }

// Parse decodes one ledger line:
//
//	<valid> <timestamp> <lopo> <hash> <tag> <diffLineCount> <parentOffset>
func Parse(line string, opts Options) (Record, error) {
	fields := strings.Fields(line)
	if len(fields) != fieldCount {
		return Record{}, &ParseError{Err: fmt.Errorf("want %d fields, got %d", fieldCount, len(fields))}
	}

	var rec Record
	switch fields[0] {
	case "1":
		rec.Valid = true
	case "0":
	default:
		return Record{}, fieldError(0, fields[0], nil)
	}

	ts, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return Record{}, fieldError(1, fields[1], err)
	}
	rec.Timestamp = ts

	rec.Lopo = parseLopo(fields[2], opts)
	rec.Hash = fields[3]
	if fields[4] != EmptyTag {
		rec.Tag = fields[4]
	}

	diff, err := strconv.Atoi(fields[5])
	if err != nil || diff < 0 {
		return Record{}, fieldError(5, fields[5], err)
	}
	rec.DiffLines = diff

	parent, err := strconv.ParseInt(fields[6], 10, 64)
	if err != nil || parent < RootParent {
		return Record{}, fieldError(6, fields[6], err)
	}
	rec.ParentOffset = parent

	return rec, nil
}

// Format encodes a record back into ledger form.
func Format(rec Record, opts Options) string {
	valid := "0"
	if rec.Valid {
		valid = "1"
	}
	tag := rec.Tag
	if tag == "" {
		tag = EmptyTag
	}
	return strings.Join([]string{
		valid,
		strconv.FormatInt(rec.Timestamp, 10),
		formatLopo(rec.Lopo, opts),
		rec.Hash,
		tag,
		strconv.Itoa(rec.DiffLines),
		strconv.FormatInt(rec.ParentOffset, 10),
	}, " ")
}

func parseLopo(tok string, opts Options) Lopo {
	switch {
	case strings.EqualFold(tok, "LO"):
		return LO
	case strings.EqualFold(tok, "PO"):
		return PO
	case opts.LOFlag != "" && tok == opts.LOFlag:
		return LO
	}
	return PO
}

// formatLopo writes the producer's numeric encoding when the LO flag is
// numeric, otherwise the literal names.
func formatLopo(l Lopo, opts Options) string {
	n, err := strconv.Atoi(opts.LOFlag)
	if err != nil {
		return l.String()
	}
	if l == LO {
		return opts.LOFlag
	}
	if n == 0 {
		return "1"
	}
	return "0"
}

func fieldError(idx int, value string, err error) *ParseError {
	return &ParseError{Field: fieldNames[idx], Value: value, Err: err}
}
