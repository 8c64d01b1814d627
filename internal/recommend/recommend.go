// Package recommend ranks property projects against a free-text query.
package recommend

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Project is one property development record in the catalog.
type Project struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Location     string   `json:"location"`
	PropertyType string   `json:"property_type"`
	Price        float64  `json:"price"`
	Tags         []string `json:"tags"`
}

// Match pairs a project with its relevance score.
type Match struct {
	Project Project `json:"project"`
	Score   int     `json:"score"`
}

// Field weights for keyword hits. Title hits dominate; description hits are
// tie-breakers.
const (
	weightTitle    = 3
	weightLocation = 2
	weightType     = 2
	weightTag      = 2
	weightDesc     = 1
)

// Engine scores an in-memory catalog. It is immutable after construction and
// safe for concurrent use.
type Engine struct {
	projects []Project
}

func NewEngine(projects []Project) *Engine {
	return &Engine{projects: projects}
}

// LoadFile builds an engine from a JSON array of projects on disk.
func LoadFile(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var projects []Project
	if err := json.Unmarshal(data, &projects); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return NewEngine(projects), nil
}

// Recommend returns projects matching query, best first. A positive maxBudget
// filters out projects priced above it; limit caps the result count (0 means
// no cap). Ties break on lower price, then catalog order.
func (e *Engine) Recommend(query string, maxBudget float64, limit int) []Match {
	tokens := tokenize(query)
	matches := make([]Match, 0, len(e.projects))
	for _, p := range e.projects {
		if maxBudget > 0 && p.Price > maxBudget {
			continue
		}
		score := scoreProject(p, tokens)
		if len(tokens) > 0 && score == 0 {
			continue
		}
		matches = append(matches, Match{Project: p, Score: score})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Project.Price < matches[j].Project.Price
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

func scoreProject(p Project, tokens []string) int {
	title := strings.ToLower(p.Title)
	desc := strings.ToLower(p.Description)
	location := strings.ToLower(p.Location)
	ptype := strings.ToLower(p.PropertyType)

	score := 0
	for _, tok := range tokens {
		if strings.Contains(title, tok) {
			score += weightTitle
		}
		if strings.Contains(location, tok) {
			score += weightLocation
		}
		if strings.Contains(ptype, tok) {
			score += weightType
		}
		for _, tag := range p.Tags {
			if strings.Contains(strings.ToLower(tag), tok) {
				score += weightTag
				break
			}
		}
		if strings.Contains(desc, tok) {
			score += weightDesc
		}
	}
	return score
}

func tokenize(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	tokens := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'()")
		if len(f) < 2 {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// DefaultCatalog is a small built-in catalog used when no external catalog
// file is configured.
func DefaultCatalog() []Project {
	return []Project{
		{
			ID:           "p-001",
			Title:        "Riverside Towers",
			Description:  "High-rise apartments with river views and a rooftop gym",
			Location:     "Downtown",
			PropertyType: "apartment",
			Price:        320000,
			Tags:         []string{"river", "gym", "luxury"},
		},
		{
			ID:           "p-002",
			Title:        "Greenfield Villas",
			Description:  "Family villas with private gardens near the new school",
			Location:     "Greenfield",
			PropertyType: "villa",
			Price:        540000,
			Tags:         []string{"family", "garden", "quiet"},
		},
		{
			ID:           "p-003",
			Title:        "Harbor Lofts",
			Description:  "Converted warehouse lofts by the harbor, pet friendly",
			Location:     "Harborfront",
			PropertyType: "loft",
			Price:        275000,
			Tags:         []string{"harbor", "loft", "pets"},
		},
		{
			ID:           "p-004",
			Title:        "Maple Court",
			Description:  "Affordable starter apartments close to transit",
			Location:     "Maple District",
			PropertyType: "apartment",
			Price:        185000,
			Tags:         []string{"starter", "transit", "affordable"},
		},
	}
}
