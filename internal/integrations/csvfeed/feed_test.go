package csvfeed

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sample = `id,origin,destination,pickup_earliest,pickup_latest,dropoff_earliest,dropoff_latest,direct_time,persons
r1,A,B,0,600,100,1200,100,alice;bob
r2,B,C,60,900,120,1500,50,
`

func TestParse(t *testing.T) {
	items, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("items = %d", len(items))
	}
	r1 := items[0]
	if r1.ID != "r1" || r1.Origin != "A" || r1.Destination != "B" {
		t.Fatalf("r1 = %+v", r1)
	}
	if r1.Pickup.Latest != 600 || r1.Dropoff.Earliest != 100 || r1.DirectTimeSec != 100 {
		t.Fatalf("r1 windows = %+v", r1)
	}
	if len(r1.Persons) != 2 || r1.Persons[0] != "alice" {
		t.Fatalf("r1 persons = %v", r1.Persons)
	}
	if len(items[1].Persons) != 0 {
		t.Fatalf("r2 persons = %v", items[1].Persons)
	}
}

func TestParseRejectsBadNumbers(t *testing.T) {
	_, err := Parse(strings.NewReader("r1,A,B,zero,600,100,1200,100\n"))
	if err == nil {
		t.Fatal("expected error for malformed number")
	}
}

func TestFeedCursorAdvancesPerFile(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002.csv", "0001.csv"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(sample), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	f := Feed{Dir: dir}

	b1, err := f.FetchReservations("", "")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if b1.Cursor != "0001.csv" || len(b1.Reservations) != 2 {
		t.Fatalf("batch 1 = cursor %q items %d", b1.Cursor, len(b1.Reservations))
	}
	b2, err := f.FetchReservations("", b1.Cursor)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if b2.Cursor != "0002.csv" {
		t.Fatalf("batch 2 cursor = %q", b2.Cursor)
	}
	b3, err := f.FetchReservations("", b2.Cursor)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(b3.Reservations) != 0 || b3.Cursor != "0002.csv" {
		t.Fatalf("exhausted feed = %+v", b3)
	}
}
