package usage

import (
	"sync"

	"teclab/bitgate/pkg/config"
)

// PriceEntry is the display name and prices of one model.
type PriceEntry struct {
	Name    string
	Pricing config.PricingConfig
}

// PriceBook holds per-model prices keyed by model id. It is swapped
// wholesale when the configuration file is reloaded.
type PriceBook struct {
	mu      sync.RWMutex
	entries map[string]PriceEntry
}

// NewPriceBook builds a price book from configured models.
func NewPriceBook(models map[string]config.ModelConfig) *PriceBook {
	pb := &PriceBook{}
	pb.Update(models)
	return pb
}

// Update replaces all entries.
func (pb *PriceBook) Update(models map[string]config.ModelConfig) {
	entries := make(map[string]PriceEntry, len(models))
	for id, m := range models {
		name := m.Name
		if name == "" {
			name = id
		}
		entries[id] = PriceEntry{Name: name, Pricing: m.Pricing}
	}
	pb.mu.Lock()
	pb.entries = entries
	pb.mu.Unlock()
}

// Lookup returns the entry of model.
func (pb *PriceBook) Lookup(model string) (PriceEntry, bool) {
	pb.mu.RLock()
	defer pb.mu.RUnlock()
	e, ok := pb.entries[model]
	return e, ok
}

// Price computes the cost of a turn: tokens / 1e6 * price per million,
// for input and output separately. Unknown models cost nothing.
func (pb *PriceBook) Price(model string, inputTokens, outputTokens int) float64 {
	e, ok := pb.Lookup(model)
	if !ok {
		return 0
	}
	return float64(inputTokens)/1e6*e.Pricing.Input + float64(outputTokens)/1e6*e.Pricing.Output
}
