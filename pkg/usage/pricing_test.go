package usage

import (
	"math"
	"testing"

	"teclab/bitgate/pkg/config"
)

func TestPriceBook(t *testing.T) {
	pb := NewPriceBook(map[string]config.ModelConfig{
		"ibit":        {Name: "iBit", Pricing: config.PricingConfig{Input: 4, Output: 16}},
		"deepseek-r1": {Pricing: config.PricingConfig{Input: 2, Output: 8}},
	})

	got := pb.Price("ibit", 1_000_000, 500_000)
	if math.Abs(got-12) > 1e-9 {
		t.Errorf("Price(ibit) = %v, want 12", got)
	}

	if got := pb.Price("unknown", 1000, 1000); got != 0 {
		t.Errorf("Price(unknown) = %v, want 0", got)
	}

	e, ok := pb.Lookup("deepseek-r1")
	if !ok || e.Name != "deepseek-r1" {
		t.Errorf("Lookup(deepseek-r1) = %+v, %v; want name defaulted to id", e, ok)
	}

	pb.Update(map[string]config.ModelConfig{
		"ibit": {Name: "iBit", Pricing: config.PricingConfig{Input: 1, Output: 1}},
	})
	if got := pb.Price("ibit", 1_000_000, 1_000_000); math.Abs(got-2) > 1e-9 {
		t.Errorf("Price after update = %v, want 2", got)
	}
	if _, ok := pb.Lookup("deepseek-r1"); ok {
		t.Error("Update should replace all entries")
	}
}
