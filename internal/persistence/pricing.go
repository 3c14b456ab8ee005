package persistence

import "strings"

// USD per 1000 tokens.
type tokenRate struct {
	Input  float64
	Output float64
}

var thousandTokenRates = map[string]tokenRate{
	"gpt-4o":        {Input: 0.005, Output: 0.015},
	"gpt-4o-mini":   {Input: 0.00015, Output: 0.0006},
	"gpt-4-turbo":   {Input: 0.01, Output: 0.03},
	"gpt-3.5-turbo": {Input: 0.0005, Output: 0.0015},
}

// EstimateCost returns the estimated USD cost of a call and whether the
// model has a known rate. Dated snapshots such as gpt-4o-2024-08-06 use the
// rate of their base model.
func EstimateCost(model string, promptTokens int64, completionTokens int64) (float64, bool) {
	r, ok := lookupRate(model)
	if !ok {
		return 0, false
	}

	return (float64(promptTokens)*r.Input + float64(completionTokens)*r.Output) / 1000, true
}

func lookupRate(model string) (tokenRate, bool) {
	if r, ok := thousandTokenRates[model]; ok {
		return r, true
	}

	best := ""
	for name := range thousandTokenRates {
		if strings.HasPrefix(model, name+"-") && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return tokenRate{}, false
	}

	return thousandTokenRates[best], true
}
