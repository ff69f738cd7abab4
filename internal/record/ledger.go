package record

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"rvfs/internal/common"
)

// TreePath returns the .tree ledger path for a ledger base path.
func TreePath(base string) string { return base + ".tree" }

// HeadPath returns the .head pointer path for a ledger base path.
func HeadPath(base string) string { return base + ".head" }

// ReadTree decodes a .tree ledger in file order. Reading stops at the first
// empty line; a line holding only whitespace is malformed. Any malformed line
// aborts the read and no records are returned.
func ReadTree(r io.Reader, opts Options) ([]Record, error) {
	var records []Record
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if text == "" {
			break
		}
		rec, err := Parse(text, opts)
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				pe.Line = line
			}
			return nil, err
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read tree ledger: %v", common.ErrIO, err)
	}
	return records, nil
}

// ReadHead decodes a .head pointer. The trailing digits of the first
// whitespace-delimited token on the first line are the checked-out timestamp.
func ReadHead(r io.Reader) (int64, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return 0, fmt.Errorf("%w: read head pointer: %v", common.ErrIO, err)
		}
		return 0, &ParseError{Line: 1, Field: "head", Err: errors.New("empty head pointer")}
	}

	fields := strings.Fields(scanner.Text())
	if len(fields) == 0 {
		return 0, &ParseError{Line: 1, Field: "head", Err: errors.New("empty head pointer")}
	}
	tok := fields[0]
	start := len(tok)
	for start > 0 && unicode.IsDigit(rune(tok[start-1])) {
		start--
	}
	digits := tok[start:]
	if digits == "" {
		return 0, &ParseError{Line: 1, Field: "head", Value: tok, Err: errors.New("no trailing digits")}
	}
	ts, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, &ParseError{Line: 1, Field: "head", Value: tok, Err: err}
	}
	return ts, nil
}
