package elements

import (
	"strings"
	"testing"
	"time"
)

const sampleTLE = `ISS (ZARYA)
1 25544U 98067A   25138.37048074  .00007749  00000+0  14567-3 0  9994
2 25544  51.6369  94.7823 0002558 120.7586  15.7840 15.49587957510533
NOAA 19
1 33591U 09005A   25138.50000000  .00000030  00000+0  40000-4 0  9999
2 33591  99.1900 180.0000 0013000 250.0000 110.0000 14.12500000 85009
ODDCLASS
1 40000X 14001A   25138.50000000  .00000030  00000+0  40000-4 0  9994
2 40000  98.0000 100.0000 0010000  90.0000 270.0000 14.50000000 10004
OLDBIRD
1 00042U 62001A   25138.50000000  .00000030  00000+0  40000-4 0  9999
2 00042  65.0000 100.0000 0010000  90.0000 270.0000 13.50000000 10009
`

func TestLookupHit(t *testing.T) {
	set := Lookup(sampleTLE, 33591)
	if !set.Valid {
		t.Fatal("expected NOAA 19 to be found")
	}
	if set.Name != "NOAA 19" {
		t.Errorf("name = %q, want NOAA 19", set.Name)
	}
	if !strings.HasPrefix(set.Line1, "1 33591U") || !strings.HasPrefix(set.Line2, "2 33591") {
		t.Errorf("unexpected lines: %q / %q", set.Line1, set.Line2)
	}
	want := time.Date(2025, 5, 18, 12, 0, 0, 0, time.UTC)
	if !set.Epoch.Equal(want) {
		t.Errorf("epoch = %v, want %v", set.Epoch, want)
	}
	if got := len(set.Lines()); got != 3 {
		t.Errorf("Lines() returned %d lines, want 3", got)
	}
}

func TestLookupStripsLeadingZeros(t *testing.T) {
	set := Lookup(sampleTLE, 42)
	if !set.Valid || set.Name != "OLDBIRD" {
		t.Fatalf("lookup of zero-padded id failed: %+v", set)
	}
}

func TestLookupMiss(t *testing.T) {
	set := Lookup(sampleTLE, 99998)
	if set.Valid {
		t.Fatal("expected miss")
	}
	if set.CatalogID != 99998 {
		t.Errorf("catalog id = %d, want 99998", set.CatalogID)
	}
	if len(set.Lines()) != 0 || set.Line1 != "" || set.Line2 != "" {
		t.Errorf("miss should carry no lines: %+v", set)
	}
	if set.Text() != "" {
		t.Errorf("miss Text() = %q, want empty", set.Text())
	}
}

func TestLookupEmptyText(t *testing.T) {
	if Lookup("", 25544).Valid {
		t.Fatal("lookup in empty text must miss")
	}
}

func TestLookupRejectsUnknownClassification(t *testing.T) {
	if Lookup(sampleTLE, 40000).Valid {
		t.Fatal("record with classification X must not match")
	}
}

func TestLookupFirstMatchWins(t *testing.T) {
	dup := sampleTLE + `ISS DUPLICATE
1 25544U 98067A   25139.37048074  .00007749  00000+0  14567-3 0  9995
2 25544  51.6369  94.7823 0002558 120.7586  15.7840 15.49587957510533
`
	set := Lookup(dup, 25544)
	if set.Name != "ISS (ZARYA)" {
		t.Errorf("name = %q, want first record ISS (ZARYA)", set.Name)
	}
}

func TestLookupCRLF(t *testing.T) {
	crlf := strings.ReplaceAll(sampleTLE, "\n", "\r\n")
	set := Lookup(crlf, 25544)
	if !set.Valid {
		t.Fatal("CRLF text should parse")
	}
	if strings.ContainsAny(set.Line2, "\r\n") {
		t.Errorf("line 2 kept line ending: %q", set.Line2)
	}
}

func TestTextRoundTripsThroughLookup(t *testing.T) {
	set := Lookup(sampleTLE, 25544)
	again := Lookup(set.Text(), 25544)
	if again != set {
		t.Errorf("Lookup(Text()) = %+v, want %+v", again, set)
	}
}

func TestSplit(t *testing.T) {
	sets := Split("garbage line\n" + sampleTLE)
	var ids []int
	for _, s := range sets {
		ids = append(ids, s.CatalogID)
	}
	want := []int{25544, 33591, 42}
	if len(ids) != len(want) {
		t.Fatalf("Split ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("Split ids = %v, want %v", ids, want)
			break
		}
	}
}

func TestIndexMatchesLookup(t *testing.T) {
	ids := []int{25544, 33591, 40000, 42, 99998}
	idx := Index(sampleTLE, ids)
	if len(idx) != len(ids) {
		t.Fatalf("Index returned %d entries, want %d", len(idx), len(ids))
	}
	for _, id := range ids {
		if got, want := idx[id], Lookup(sampleTLE, id); got != want {
			t.Errorf("Index[%d] = %+v, Lookup = %+v", id, got, want)
		}
	}
}

func TestCatalogIDFromLine2(t *testing.T) {
	tests := []struct {
		line    string
		want    int
		wantErr bool
	}{
		{"2 25544  51.6369", 25544, false},
		{"2 00042  65.0000", 42, false},
		{"2 00000  65.0000", 0, true},
		{"1 25544U", 0, true},
		{"2 25", 0, true},
	}
	for _, tt := range tests {
		got, err := CatalogIDFromLine2(tt.line)
		if (err != nil) != tt.wantErr {
			t.Errorf("CatalogIDFromLine2(%q) err = %v, wantErr %v", tt.line, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("CatalogIDFromLine2(%q) = %d, want %d", tt.line, got, tt.want)
		}
	}
}

func TestParseEpochCenturyPivot(t *testing.T) {
	line1 := "1 00005U 58002B   98001.00000000  .00000023  00000-0  28098-4 0  4753"
	epoch, err := ParseEpoch(line1)
	if err != nil {
		t.Fatalf("ParseEpoch: %v", err)
	}
	if epoch.Year() != 1998 || epoch.YearDay() != 1 {
		t.Errorf("epoch = %v, want 1998-01-01", epoch)
	}

	if _, err := ParseEpoch("1 00005U"); err == nil {
		t.Error("expected error for short line")
	}
}

func TestAge(t *testing.T) {
	set := Lookup(sampleTLE, 33591)
	if got := set.Age(set.Epoch.Add(-2 * time.Hour)); got != 2*time.Hour {
		t.Errorf("Age = %v, want 2h", got)
	}
}
