package document

import (
	"slices"
	"testing"
)

func TestKey(t *testing.T) {
	d := New("shop.Book", "42")
	if d.Key() != "shop.Book.42" {
		t.Errorf("Key() = %q", d.Key())
	}
}

func TestParseKey(t *testing.T) {
	tag, natural, err := ParseKey("shop.Book.42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tag != "shop.Book" || natural != "42" {
		t.Errorf("ParseKey = %q, %q", tag, natural)
	}
}

func TestParseKey_DottedNaturalKey(t *testing.T) {
	tag, natural, err := ParseKey("shop.File.report.v2.pdf")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tag != "shop.File" || natural != "report.v2.pdf" {
		t.Errorf("ParseKey = %q, %q", tag, natural)
	}
}

func TestParseKey_Garbled(t *testing.T) {
	for _, key := range []string{"", "shop", "shop.Book", "shop.Book.", ".Book.1", "shop..1"} {
		if _, _, err := ParseKey(key); err == nil {
			t.Errorf("ParseKey(%q): expected error", key)
		}
	}
}

func TestNaturalKey(t *testing.T) {
	if k, ok := NaturalKey("book.12", "book"); !ok || k != "12" {
		t.Errorf("NaturalKey = %q, %v", k, ok)
	}
	if _, ok := NaturalKey("shop.Author.12", "shop.Book"); ok {
		t.Error("expected mismatch for another type")
	}
	if _, ok := NaturalKey("shop.Book.", "shop.Book"); ok {
		t.Error("expected empty natural key to be rejected")
	}
}

func TestFieldNames_Sorted(t *testing.T) {
	d := New("shop.Book", "1")
	d.Fields["title"] = []string{"Dune"}
	d.Fields["date"] = []string{"2024-03-01"}
	if got := d.FieldNames(); !slices.Equal(got, []string{"date", "title"}) {
		t.Errorf("FieldNames = %v", got)
	}
}
