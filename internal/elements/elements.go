// Package elements holds the orbital element record (a parsed three-line TLE
// group) and the lookup that extracts one record for a catalog id out of a
// multi-record TLE text dump.
package elements

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Set is one parsed TLE record. It is a value type: a reload produces a new
// Set rather than mutating an existing one.
type Set struct {
	CatalogID int
	Name      string
	Line1     string
	Line2     string
	Epoch     time.Time
	Valid     bool
}

// Missing returns the record used when no TLE was found for id.
func Missing(id int) Set {
	return Set{CatalogID: id}
}

// Lines returns name, line 1 and line 2, or nil for an invalid record.
func (s Set) Lines() []string {
	if !s.Valid {
		return nil
	}
	return []string{s.Name, s.Line1, s.Line2}
}

// Text renders the record as a CRLF-terminated three-line group, the same
// layout the TLE cache files use.
func (s Set) Text() string {
	if !s.Valid {
		return ""
	}
	return s.Name + "\r\n" + s.Line1 + "\r\n" + s.Line2 + "\r\n"
}

// Age reports how far t is from the record's epoch.
func (s Set) Age(t time.Time) time.Duration {
	d := t.Sub(s.Epoch)
	if d < 0 {
		return -d
	}
	return d
}

// Lookup finds the record for catalogID in a flat TLE text blob. Line 2
// columns 3-7 must decode to the id; when line 1 carries a classification
// character after the id it must be U, C or S. The first match in document
// order wins. A miss returns Missing(catalogID), never an error.
func Lookup(text string, catalogID int) Set {
	lines := splitLines(text)
	for i := 0; i+2 < len(lines); i++ {
		set, ok := parseGroup(lines[i], lines[i+1], lines[i+2])
		if !ok || set.CatalogID != catalogID {
			continue
		}
		return set
	}
	return Missing(catalogID)
}

// Split returns every well-formed record in text, in document order.
func Split(text string) []Set {
	lines := splitLines(text)
	var out []Set
	for i := 0; i+2 < len(lines); {
		set, ok := parseGroup(lines[i], lines[i+1], lines[i+2])
		if !ok {
			i++
			continue
		}
		out = append(out, set)
		i += 3
	}
	return out
}

// Index resolves many ids in one scan of text. Each id maps to what Lookup
// would return for it; ids without a record map to Missing.
func Index(text string, ids []int) map[int]Set {
	want := make(map[int]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make(map[int]Set, len(ids))
	lines := splitLines(text)
	for i := 0; i+2 < len(lines) && len(out) < len(want); i++ {
		set, ok := parseGroup(lines[i], lines[i+1], lines[i+2])
		if !ok || !want[set.CatalogID] {
			continue
		}
		if _, seen := out[set.CatalogID]; !seen {
			out[set.CatalogID] = set
		}
	}
	for id := range want {
		if _, ok := out[id]; !ok {
			out[id] = Missing(id)
		}
	}
	return out
}

// CatalogIDFromLine2 decodes the NORAD id in columns 3-7 of line 2.
func CatalogIDFromLine2(line2 string) (int, error) {
	if len(line2) < 7 || !strings.HasPrefix(line2, "2 ") {
		return 0, fmt.Errorf("line 2 too short or malformed: %q", line2)
	}
	field := strings.TrimLeft(strings.TrimSpace(line2[2:7]), "0")
	if field == "" {
		return 0, fmt.Errorf("line 2 has an empty catalog number")
	}
	id, err := strconv.Atoi(field)
	if err != nil {
		return 0, fmt.Errorf("line 2 catalog number %q: %w", line2[2:7], err)
	}
	return id, nil
}

// parseGroup validates one candidate name/line1/line2 triple.
func parseGroup(name, line1, line2 string) (Set, bool) {
	if isElementLine(name) || !strings.HasPrefix(line1, "1 ") || !strings.HasPrefix(line2, "2 ") {
		return Set{}, false
	}
	if len(line1) > 7 {
		switch line1[7] {
		case 'U', 'C', 'S':
		default:
			return Set{}, false
		}
	}

	id, err := CatalogIDFromLine2(line2)
	if err != nil {
		return Set{}, false
	}
	epoch, err := ParseEpoch(line1)
	if err != nil {
		return Set{}, false
	}

	return Set{
		CatalogID: id,
		Name:      strings.TrimSpace(name),
		Line1:     line1,
		Line2:     line2,
		Epoch:     epoch,
		Valid:     true,
	}, true
}

func isElementLine(s string) bool {
	return strings.HasPrefix(s, "1 ") || strings.HasPrefix(s, "2 ")
}

// splitLines normalizes CRLF and drops blank lines and trailing whitespace.
func splitLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimRight(l, "\r ")
		if l == "" {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}
