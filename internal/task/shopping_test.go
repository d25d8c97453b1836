package task

import (
	"testing"

	"github.com/Sathursan-S/Browser.AI-sub001/internal/engine"
)

func TestIsShoppingTask(t *testing.T) {
	shopping := []string{
		"buy a new laptop",
		"Purchase concert tickets",
		"order groceries for the week",
		"compare the PRICE of these phones",
		"find the cheapest flight home",
		"best deal on running shoes",
		"browse an online store for gifts",
		"search the marketplace for used bikes",
		"get me some headphones",
	}
	for _, task := range shopping {
		if !isShoppingTask(task) {
			t.Errorf("Expected %q to be a shopping task", task)
		}
	}

	nonShopping := []string{
		"summarize this article",
		"log into my email and archive everything",
		"sign up for the workshop",   // "shop" must not match inside "workshop"
		"take a screenshot of the dashboard",
		"fill out the contact form",
	}
	for _, task := range nonShopping {
		if isShoppingTask(task) {
			t.Errorf("Expected %q not to be a shopping task", task)
		}
	}
}

func TestInitialActions(t *testing.T) {
	actions := initialActions("buy wireless headphones")
	if len(actions) != 2 {
		t.Fatalf("Expected 2 actions, got %d", len(actions))
	}
	if actions[0].Name != engine.ActionDetectLocation {
		t.Errorf("Expected %s first, got %s", engine.ActionDetectLocation, actions[0].Name)
	}
	if actions[1].Name != engine.ActionFindBestWebsite {
		t.Errorf("Expected %s second, got %s", engine.ActionFindBestWebsite, actions[1].Name)
	}
	if actions[1].Params["category"] != "shopping" {
		t.Errorf("Expected shopping category, got %v", actions[1].Params["category"])
	}

	if got := initialActions("summarize the news"); got != nil {
		t.Errorf("Expected no actions for a non-shopping task, got %v", got)
	}
}
