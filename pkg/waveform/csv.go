package waveform

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// MalformedRowError identifies the first unparseable line of a delimited
// waveform file. Line numbers are 1-based file line numbers. The whole
// parse aborts on the first bad row: a corrupt sample silently included
// would miscalibrate the physical output.
type MalformedRowError struct {
	Line   int
	Reason string
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// ErrNoData is returned for a file with no data-bearing rows.
var ErrNoData = fmt.Errorf("no data rows found")

type csvRow struct {
	line int
	text string
}

// ParseCSV reads a delimited amplitude file and returns the sample
// sequence and its point count.
//
// Supported layouts, detected from the first data-bearing line:
//
//	1 column:  amplitude
//	2 columns: time, amplitude (time is metadata only; samples keep file order)
//
// The delimiter is comma, semicolon or whitespace, tried in that order.
// A leading header line is discarded when its tokens do not parse as
// numbers. Rows with a different column count than the first data row,
// non-numeric tokens, or more than two columns abort with a
// MalformedRowError. A point count above maxPoints aborts with a
// CapacityError (maxPoints <= 0 disables the check). The result is
// passed through Normalize with the caller's flag.
func ParseCSV(r io.Reader, maxPoints int, normalize bool) ([]float64, int, error) {
	var rows []csvRow
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		rows = append(rows, csvRow{line: line, text: text})
	}
	if err := sc.Err(); err != nil {
		return nil, 0, fmt.Errorf("reading waveform file: %w", err)
	}
	if len(rows) == 0 {
		return nil, 0, ErrNoData
	}

	delim := detectDelimiter(rows[0].text)

	// Header detection: a first line with any non-numeric token is a
	// header and is discarded.
	if !allNumeric(splitRow(rows[0].text, delim)) {
		rows = rows[1:]
		if len(rows) == 0 {
			return nil, 0, ErrNoData
		}
		delim = detectDelimiter(rows[0].text)
	}

	width := len(splitRow(rows[0].text, delim))
	if width > 2 {
		return nil, 0, &MalformedRowError{
			Line:   rows[0].line,
			Reason: fmt.Sprintf("ambiguous format: %d columns, expected 1 (amplitude) or 2 (time, amplitude)", width),
		}
	}

	samples := make([]float64, 0, len(rows))
	for _, row := range rows {
		tokens := splitRow(row.text, delim)
		if len(tokens) != width {
			return nil, 0, &MalformedRowError{
				Line:   row.line,
				Reason: fmt.Sprintf("expected %d columns, got %d", width, len(tokens)),
			}
		}
		for _, tok := range tokens {
			if _, err := strconv.ParseFloat(tok, 64); err != nil {
				return nil, 0, &MalformedRowError{
					Line:   row.line,
					Reason: fmt.Sprintf("bad numeric value %q", tok),
				}
			}
		}
		// Amplitude is the last column; a leading time column is kept
		// only implicitly through file order.
		v, _ := strconv.ParseFloat(tokens[width-1], 64)
		samples = append(samples, v)
	}

	if maxPoints > 0 && len(samples) > maxPoints {
		return nil, 0, &CapacityError{Points: len(samples), Max: maxPoints}
	}

	out, err := Normalize(samples, normalize)
	if err != nil {
		return nil, 0, err
	}
	return out, len(out), nil
}

// detectDelimiter picks the delimiter from a data-bearing line: comma
// first, then semicolon, then whitespace.
func detectDelimiter(line string) rune {
	if strings.ContainsRune(line, ',') {
		return ','
	}
	if strings.ContainsRune(line, ';') {
		return ';'
	}
	return ' '
}

// splitRow splits a line into its non-empty tokens under the chosen
// delimiter.
func splitRow(line string, delim rune) []string {
	var parts []string
	if delim == ' ' {
		parts = strings.Fields(line)
	} else {
		parts = strings.Split(line, string(delim))
	}
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			tokens = append(tokens, p)
		}
	}
	return tokens
}

func allNumeric(tokens []string) bool {
	if len(tokens) == 0 {
		return false
	}
	for _, tok := range tokens {
		if _, err := strconv.ParseFloat(tok, 64); err != nil {
			return false
		}
	}
	return true
}
