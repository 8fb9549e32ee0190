package costs

import "strings"

const perMillion = 1_000_000.0

type price struct {
	inputPerMillion  float64
	outputPerMillion float64
}

func (p price) usd(inputTokens, outputTokens int) float64 {
	return (float64(inputTokens)/perMillion)*p.inputPerMillion + (float64(outputTokens)/perMillion)*p.outputPerMillion
}

// EstimateUSD returns fallback estimated USD cost for a provider/model pair.
// Returns ok=false when no pricing is known; local providers are free.
func EstimateUSD(providerName, model string, inputTokens, outputTokens int) (usd float64, ok bool) {
	modelName := strings.ToLower(strings.TrimSpace(model))

	var p price
	switch strings.ToLower(strings.TrimSpace(providerName)) {
	case "ollama":
		return 0, true
	case "anthropic":
		switch {
		case strings.Contains(modelName, "haiku"):
			p = price{0.80, 4.00}
		case strings.Contains(modelName, "sonnet"):
			p = price{3.00, 15.00}
		case strings.Contains(modelName, "opus"):
			p = price{15.00, 75.00}
		default:
			return 0, false
		}
	case "xai":
		switch {
		case strings.Contains(modelName, "mini"):
			p = price{0.30, 0.50}
		case strings.HasPrefix(modelName, "grok"):
			p = price{5.00, 15.00}
		default:
			return 0, false
		}
	case "openai":
		switch {
		case strings.Contains(modelName, "mini"):
			p = price{0.15, 0.60}
		case strings.HasPrefix(modelName, "gpt-4o"):
			p = price{2.50, 10.00}
		default:
			return 0, false
		}
	default:
		return 0, false
	}
	return p.usd(inputTokens, outputTokens), true
}
