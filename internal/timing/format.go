package timing

import (
	"cmp"
	"encoding/csv"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/yourusername/kart-timing/internal/models"
)

// zeroTimes are the literals the decoder uses for "no time"
var zeroTimes = map[string]bool{
	"0":            true,
	"00:00.000":    true,
	"00:00:00":     true,
	"00:00:00.000": true,
}

// ParseTime parses mm:ss.mmm, hh:mm:ss.mmm or plain seconds.
// It reports false for empty, zero or unparseable values.
func ParseTime(s string) (time.Duration, bool) {
	s = strings.Trim(strings.TrimSpace(s), `"`)
	if s == "" || zeroTimes[s] {
		return 0, false
	}

	parts := strings.Split(s, ":")
	var hours, minutes int
	var err error
	switch len(parts) {
	case 3:
		if hours, err = strconv.Atoi(parts[0]); err != nil {
			return 0, false
		}
		if minutes, err = strconv.Atoi(parts[1]); err != nil {
			return 0, false
		}
	case 2:
		if minutes, err = strconv.Atoi(parts[0]); err != nil {
			return 0, false
		}
	case 1:
	default:
		return 0, false
	}

	seconds, err := strconv.ParseFloat(parts[len(parts)-1], 64)
	if err != nil || seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return 0, false
	}

	ms := int64(hours)*3600000 + int64(minutes)*60000 + int64(math.Round(seconds*1000))
	if ms <= 0 {
		return 0, false
	}
	return time.Duration(ms) * time.Millisecond, true
}

// splitRecord splits one comma-delimited record, honouring quoted fields
func splitRecord(line string) ([]string, bool) {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	fields, err := r.Read()
	if err != nil || len(fields) < 2 {
		return nil, false
	}
	return fields, true
}

// field returns the trimmed, unquoted field at i or ""
func field(f []string, i int) string {
	if i >= len(f) {
		return ""
	}
	return strings.Trim(strings.TrimSpace(f[i]), `"`)
}

func intField(f []string, i int) (int, bool) {
	n, err := strconv.Atoi(field(f, i))
	return n, err == nil
}

// InferSessionType maps a session name to its type by keyword, defaulting to Practice
func InferSessionType(name string) models.SessionType {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "qual"):
		return models.SessionTypeQualifying
	case strings.Contains(n, "heat"):
		return models.SessionTypeHeat
	case strings.Contains(n, "prefinal"), strings.Contains(n, "pre-final"), strings.Contains(n, "pre final"):
		return models.SessionTypePrefinal
	case strings.Contains(n, "final"):
		return models.SessionTypeFinal
	default:
		return models.SessionTypePractice
	}
}

var checkeredFlags = map[string]bool{
	"finish":         true,
	"finished":       true,
	"checkered":      true,
	"chequered":      true,
	"checkered flag": true,
	"chequered flag": true,
}

// IsCheckered reports whether a flag text means the session has finished
func IsCheckered(flag string) bool {
	return checkeredFlags[strings.ToLower(strings.TrimSpace(flag))]
}

// compareNumbers orders kart numbers numerically when both are numeric
func compareNumbers(a, b string) int {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return cmp.Compare(na, nb)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
