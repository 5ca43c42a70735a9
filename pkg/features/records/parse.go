package records

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"regexp"
	"strings"
	"time"

	pkgerrors "github.com/pihlajus/bday-wisher/pkg/features/errors"
)

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

var phoneSeparators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")

// Parse reads the dataset line by line. Columns are
// name, birthday, phone_number[, interests[, reply_prompt]].
// A malformed line is reported in skipped and does not stop the parse.
func Parse(data []byte) (recs []Record, skipped []*pkgerrors.ParseError) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if line == "" {
			continue
		}

		rec, err := parseLine(lineNo, line)
		if err != nil {
			if lineNo == 1 && isHeader(line) {
				continue
			}
			skipped = append(skipped, err)
			continue
		}
		recs = append(recs, rec)
	}
	if err := scanner.Err(); err != nil {
		skipped = append(skipped, &pkgerrors.ParseError{Line: lineNo + 1, Reason: err.Error()})
	}

	return recs, skipped
}

func isHeader(line string) bool {
	first, _, _ := strings.Cut(line, ",")
	return strings.EqualFold(strings.Trim(strings.TrimSpace(first), `"`), "name")
}

func parseLine(lineNo int, line string) (Record, *pkgerrors.ParseError) {
	reader := csv.NewReader(strings.NewReader(line))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	fields, err := reader.Read()
	if err != nil {
		return Record{}, &pkgerrors.ParseError{Line: lineNo, Reason: err.Error()}
	}
	if len(fields) < 3 || len(fields) > 5 {
		return Record{}, &pkgerrors.ParseError{Line: lineNo, Reason: "expected 3 to 5 fields"}
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	rec := Record{Name: fields[0], Line: lineNo}
	if rec.Name == "" {
		return Record{}, &pkgerrors.ParseError{Line: lineNo, Reason: "missing name"}
	}

	year, month, day, ok := parseBirthday(fields[1])
	if !ok {
		return Record{}, &pkgerrors.ParseError{Line: lineNo, Reason: "invalid birthday " + quote(fields[1])}
	}
	rec.Year, rec.Month, rec.Day = year, month, day

	phone, ok := NormalizePhone(fields[2])
	if !ok {
		return Record{}, &pkgerrors.ParseError{Line: lineNo, Reason: "invalid phone number " + quote(fields[2])}
	}
	rec.PhoneNumber = phone

	if len(fields) > 3 {
		rec.Interests = fields[3]
	}
	if len(fields) > 4 {
		rec.ReplyPrompt = fields[4]
	}
	return rec, nil
}

// parseBirthday accepts YYYY-MM-DD, MM-DD and --MM-DD.
func parseBirthday(s string) (year int, month time.Month, day int, ok bool) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.Year(), t.Month(), t.Day(), true
	}
	s = strings.TrimPrefix(s, "--")
	// Parsed against a leap year so 02-29 is accepted.
	t, err := time.Parse("2006-01-02", "2000-"+s)
	if err != nil {
		return 0, 0, 0, false
	}
	return 0, t.Month(), t.Day(), true
}

// NormalizePhone strips common separators and checks the result is E.164.
func NormalizePhone(s string) (string, bool) {
	s = phoneSeparators.Replace(strings.TrimSpace(s))
	return s, e164.MatchString(s)
}

func quote(s string) string {
	return `"` + s + `"`
}
