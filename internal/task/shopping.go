package task

import (
	"strings"

	"github.com/Sathursan-S/Browser.AI-sub001/internal/engine"
)

// Shopping keyword classes. Match is case-insensitive substring (or
// whole phrase for multi-word entries, which substring covers).
var (
	transactionVerbs = []string{
		"buy", "purchase", "shop", "order", "get me", "find me",
	}
	priceTerms = []string{
		"price", "cost", "best deal", "cheapest",
	}
	productNouns = []string{
		"laptop", "phone", "headphones", "camera", "watch", "shoes",
		"clothes", "tablet", "monitor", "keyboard", "mouse", "speaker",
	}
	marketplaceTerms = []string{
		"ecommerce", "e-commerce", "online store", "marketplace",
	}
)

// isShoppingTask reports whether the task description matches the
// shopping keyword set.
func isShoppingTask(task string) bool {
	lowered := strings.ToLower(task)
	for _, class := range [][]string{transactionVerbs, priceTerms, productNouns, marketplaceTerms} {
		for _, keyword := range class {
			if containsKeyword(lowered, keyword) {
				return true
			}
		}
	}
	return false
}

// containsKeyword matches multi-word keywords by substring and single
// words on word boundaries, so "shop" does not match "workshop".
func containsKeyword(text, keyword string) bool {
	if strings.Contains(keyword, " ") || strings.Contains(keyword, "-") {
		return strings.Contains(text, keyword)
	}
	for _, word := range strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if word == keyword {
			return true
		}
	}
	return false
}

// initialActions returns the actions prepended to the engine plan for
// task. Shopping tasks get a location check followed by site selection.
func initialActions(task string) []engine.Action {
	if !isShoppingTask(task) {
		return nil
	}
	return []engine.Action{
		engine.DetectLocation(),
		engine.FindBestWebsite(task, "shopping"),
	}
}
