package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"partsmatch/internal"
	"partsmatch/internal/storage"
	"partsmatch/internal/util"
)

func testParts() []internal.PartRecord {
	return []internal.PartRecord{
		{SKU: "SP-1", MPN: util.StringPtr("RC0603FR-074K7L"), Value: util.StringPtr("4.7k"), Footprint: util.StringPtr("0603"), Description: util.StringPtr("RES SMD 4.7K 1%")},
		{SKU: "SP-2", MPN: util.StringPtr("RC0805FR-0710KL"), Value: util.StringPtr("10k"), Footprint: util.StringPtr("0805")},
		{SKU: "SP-3", MPN: util.StringPtr("LM358DR"), Footprint: util.StringPtr("SOIC-8"), Description: util.StringPtr("Dual op amp")},
	}
}

func TestIndexSearchByCode(t *testing.T) {
	idx := BuildIndex(testParts())
	got := idx.Search("lm358dr", 5)
	if len(got) == 0 {
		t.Fatal("no results")
	}
	if sku, _ := got[0].Text("sku"); sku != "SP-3" {
		t.Fatalf("first=%v", got[0])
	}
}

func TestIndexSearchByValueSpelling(t *testing.T) {
	idx := BuildIndex(testParts())
	got := idx.Search("4k7 0603", 5)
	if len(got) == 0 {
		t.Fatal("no results")
	}
	if sku, _ := got[0].Text("sku"); sku != "SP-1" {
		t.Fatalf("first=%v", got[0])
	}
	for _, r := range got {
		if sku, _ := r.Text("sku"); sku == "SP-3" {
			t.Fatal("unrelated part returned")
		}
	}
}

func TestIndexSearchBreaksTiesByCloseness(t *testing.T) {
	idx := BuildIndex([]internal.PartRecord{
		{SKU: "A", MPN: util.StringPtr("RC0805FR-0710KL"), Value: util.StringPtr("10k")},
		{SKU: "B", MPN: util.StringPtr("ERJ-10K"), Value: util.StringPtr("10k")},
	})
	got := idx.Search("10k", 5)
	if len(got) != 2 {
		t.Fatalf("len=%d", len(got))
	}
	if sku, _ := got[0].Text("sku"); sku != "B" {
		t.Fatalf("first=%v", got[0])
	}
}

func TestIndexSearchFuncHonoursContext(t *testing.T) {
	idx := BuildIndex(testParts())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := idx.SearchFunc(5)(ctx, "10k"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}

type fakeSearcher struct {
	calls int
	err   error
	parts []internal.Record
}

func (f *fakeSearcher) SearchParts(ctx context.Context, query string, limit int) (SearchResult, error) {
	f.calls++
	if f.err != nil {
		return SearchResult{}, f.err
	}
	return SearchResult{Parts: f.parts, Total: len(f.parts)}, nil
}

func openDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCachedSearcher(t *testing.T) {
	db := openDB(t)
	remote := &fakeSearcher{parts: []internal.Record{{"sku": "SP-9", "mpn": "GRM188R71H104KA93D", "value": "100nF"}}}
	s := NewCachedSearcher(db, remote, 20, time.Hour, nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		parts, err := s.Search(context.Background(), "  100nF   0603 ")
		if err != nil {
			t.Fatal(err)
		}
		if len(parts) != 1 {
			t.Fatalf("len=%d", len(parts))
		}
	}
	if remote.calls != 1 {
		t.Fatalf("remote calls=%d", remote.calls)
	}

	now = now.Add(2 * time.Hour)
	if _, err := s.Search(context.Background(), "100nF 0603"); err != nil {
		t.Fatal(err)
	}
	if remote.calls != 2 {
		t.Fatalf("expired entry not refreshed, calls=%d", remote.calls)
	}

	stored, err := db.GetPart("SP-9")
	if err != nil || stored == nil || stored.Value == nil || *stored.Value != "100nF" {
		t.Fatalf("stored=%+v err=%v", stored, err)
	}
}

func TestSyncService(t *testing.T) {
	db := openDB(t)
	remote := &fakeSearcher{parts: []internal.Record{{"mpn": "NE555DR"}, {"description": "no key"}}}
	res, err := NewSyncService(db, remote, 10, nil).Sync(context.Background(), []string{"ne555", "timer"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Queries != 2 || res.Parts != 2 || res.Failed != 0 {
		t.Fatalf("res=%+v", res)
	}
	idx, err := LoadIndex(db)
	if err != nil {
		t.Fatal(err)
	}
	if idx.Len() != 1 {
		t.Fatalf("index len=%d", idx.Len())
	}
	if v, _ := db.GetMetadata("catalog.last_sync"); v == nil {
		t.Fatal("last sync not recorded")
	}

	remote.err = errors.New("down")
	res, err = NewSyncService(db, remote, 10, nil).Sync(context.Background(), []string{"x"})
	if err != nil || res.Failed != 1 {
		t.Fatalf("res=%+v err=%v", res, err)
	}
}
