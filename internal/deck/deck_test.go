package deck

import (
	"testing"

	"github.com/ranielm/planning-poker-sub000/internal/models"
)

func TestIsValid(t *testing.T) {
	tests := []struct {
		scheme models.Scheme
		value  string
		want   bool
	}{
		{models.SchemeFibonacci, "0", true},
		{models.SchemeFibonacci, "5", true},
		{models.SchemeFibonacci, "89", true},
		{models.SchemeFibonacci, "4", false},
		{models.SchemeFibonacci, "M", false},
		{models.SchemeFibonacci, "?", true},
		{models.SchemeFibonacci, "coffee", true},
		{models.SchemeTShirt, "M", true},
		{models.SchemeTShirt, "xl", true},
		{models.SchemeTShirt, "XXL", true},
		{models.SchemeTShirt, "5", false},
		{models.SchemeTShirt, "XXXL", false},
		{models.SchemeTShirt, "?", true},
	}
	for _, tt := range tests {
		if got := IsValid(tt.scheme, tt.value); got != tt.want {
			t.Errorf("IsValid(%s, %q) = %v, want %v", tt.scheme, tt.value, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize(models.SchemeTShirt, "xl"); got != "XL" {
		t.Errorf("Normalize(tshirt, xl) = %q, want XL", got)
	}
	if got := Normalize(models.SchemeFibonacci, "5"); got != "5" {
		t.Errorf("Normalize(fibonacci, 5) = %q, want 5", got)
	}
	if got := Normalize(models.SchemeTShirt, "bogus"); got != "bogus" {
		t.Errorf("Normalize(tshirt, bogus) = %q, want unchanged", got)
	}
}

func TestCards(t *testing.T) {
	fib := Cards(models.SchemeFibonacci)
	if len(fib) != 13 {
		t.Errorf("Cards(fibonacci) has %d cards, want 13", len(fib))
	}
	ts := Cards(models.SchemeTShirt)
	if len(ts) != 8 {
		t.Errorf("Cards(tshirt) has %d cards, want 8", len(ts))
	}
	for _, cards := range [][]string{fib, ts} {
		seenUnknown, seenCoffee := false, false
		for _, c := range cards {
			seenUnknown = seenUnknown || c == CardUnknown
			seenCoffee = seenCoffee || c == CardCoffee
		}
		if !seenUnknown || !seenCoffee {
			t.Errorf("Cards() = %v, missing sentinel cards", cards)
		}
	}
}
