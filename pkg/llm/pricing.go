package llm

import "strings"

// Price is a model's cost in USD per million tokens.
type Price struct {
	Input  float64
	Output float64
}

// prices is keyed by model name prefix. The longest matching prefix wins,
// so "gpt-4o-mini" is not billed as "gpt-4o".
var prices = map[string]Price{
	"gpt-4o":           {Input: 2.50, Output: 10.00},
	"gpt-4o-mini":      {Input: 0.15, Output: 0.60},
	"gpt-4-turbo":      {Input: 10.00, Output: 30.00},
	"gpt-4":            {Input: 30.00, Output: 60.00},
	"gpt-3.5-turbo":    {Input: 0.50, Output: 1.50},
	"o1":               {Input: 15.00, Output: 60.00},
	"o1-mini":          {Input: 3.00, Output: 12.00},
	"gemini-1.5-flash": {Input: 0.075, Output: 0.30},
	"gemini-1.5-pro":   {Input: 1.25, Output: 5.00},
	"gemini-2.0-flash": {Input: 0.10, Output: 0.40},
	"gemini-2.5-flash": {Input: 0.30, Output: 2.50},
	"gemini-2.5-pro":   {Input: 1.25, Output: 10.00},
}

// PriceFor returns the price of model. Unknown models, including every
// locally served Ollama model, are free.
func PriceFor(model string) (Price, bool) {
	best := ""
	for prefix := range prices {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return Price{}, false
	}
	return prices[best], true
}

// EstimateCost returns the USD cost of usage on model.
func EstimateCost(model string, usage TokenUsage) float64 {
	p, ok := PriceFor(model)
	if !ok {
		return 0
	}
	return (float64(usage.InputTokens)*p.Input + float64(usage.OutputTokens)*p.Output) / 1_000_000
}
