package recommend

import "testing"

func testEngine() *Engine {
	return NewEngine(DefaultCatalog())
}

func TestRecommendRanksTitleHitsFirst(t *testing.T) {
	matches := testEngine().Recommend("riverside apartment", 0, 0)
	if len(matches) == 0 {
		t.Fatal("expected matches")
	}
	if matches[0].Project.ID != "p-001" {
		t.Fatalf("expected Riverside Towers first, got %s", matches[0].Project.ID)
	}
}

func TestRecommendBudgetFilter(t *testing.T) {
	matches := testEngine().Recommend("apartment", 200000, 0)
	for _, m := range matches {
		if m.Project.Price > 200000 {
			t.Fatalf("project %s exceeds budget: %v", m.Project.ID, m.Project.Price)
		}
	}
	if len(matches) != 1 || matches[0].Project.ID != "p-004" {
		t.Fatalf("expected only Maple Court, got %+v", matches)
	}
}

func TestRecommendNoTokensReturnsBudgetSlice(t *testing.T) {
	matches := testEngine().Recommend("", 300000, 0)
	if len(matches) != 2 {
		t.Fatalf("expected 2 projects under budget, got %d", len(matches))
	}
	// Ties on zero score break by ascending price.
	if matches[0].Project.Price > matches[1].Project.Price {
		t.Fatal("expected cheapest first on score ties")
	}
}

func TestRecommendLimit(t *testing.T) {
	matches := testEngine().Recommend("apartment loft villa", 0, 2)
	if len(matches) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(matches))
	}
}

func TestRecommendNoMatches(t *testing.T) {
	if matches := testEngine().Recommend("zzz-nothing", 0, 0); len(matches) != 0 {
		t.Fatalf("expected no matches, got %d", len(matches))
	}
}
