// Package billing provides cost computation, affordability enforcement, and
// charge commitment against an external billing processor.
package billing

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/skillgate/skillgate/internal/models"
)

// PricingTable maps billable action ids to base costs in minor currency
// units. Cost computation is pure: repeated calls with the same inputs yield
// identical results.
type PricingTable struct {
	// BaseCosts maps an action id to its base cost in pence.
	BaseCosts map[string]int64 `yaml:"base_costs"`
	// DefaultCost applies to action ids with no explicit mapping.
	DefaultCost int64 `yaml:"default_cost"`
	// DailyCaps maps a plan to its daily spend cap in pence. Zero means no cap.
	DailyCaps map[models.Plan]int64 `yaml:"daily_caps"`
	// Currency is the ISO 4217 code for all costs.
	Currency string `yaml:"currency"`
}

// DefaultPricingTable returns the built-in pricing table.
func DefaultPricingTable() *PricingTable {
	return &PricingTable{
		BaseCosts: map[string]int64{
			"skill.summarize":  100,
			"skill.translate":  150,
			"skill.classify":   50,
			"skill.generate":   600,
			"skill.transcribe": 400,
		},
		DefaultCost: 200,
		DailyCaps: map[models.Plan]int64{
			models.PlanFree:         500,
			models.PlanStarter:      2000,
			models.PlanProfessional: 5000,
			models.PlanEnterprise:   0,
		},
		Currency: "GBP",
	}
}

// LoadPricingTable reads a pricing table from a YAML file. Missing fields
// fall back to the defaults so a partial override file is valid.
func LoadPricingTable(path string) (*PricingTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing table: %w", err)
	}

	table := DefaultPricingTable()
	if err := yaml.Unmarshal(data, table); err != nil {
		return nil, fmt.Errorf("parse pricing table: %w", err)
	}
	if table.Currency == "" {
		table.Currency = "GBP"
	}
	return table, nil
}

// planDiscount returns the cost multiplier for a plan. Enterprise actions are
// free; professional actions are half price.
func planDiscount(plan models.Plan) float64 {
	switch plan {
	case models.PlanEnterprise:
		return 0
	case models.PlanProfessional:
		return 0.5
	default:
		return 1
	}
}

// Cost computes the charge for an action under a plan:
// floor(baseCost(actionID) * planDiscount(plan)). Unmapped actions use the
// default cost.
func (t *PricingTable) Cost(actionID string, plan models.Plan) int64 {
	base, ok := t.BaseCosts[actionID]
	if !ok {
		base = t.DefaultCost
	}
	return int64(float64(base) * planDiscount(plan))
}

// DailyCap returns the daily spend cap in pence for a plan. Zero means no cap.
func (t *PricingTable) DailyCap(plan models.Plan) int64 {
	return t.DailyCaps[plan]
}

// FormatAmount renders a minor-unit amount for human-readable reasons,
// e.g. 5000 pence of GBP as "£50". Whole amounts drop the fraction.
func FormatAmount(minorUnits int64, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return fmt.Sprintf("%d %s", minorUnits, code)
	}
	amount := unit.Amount(float64(minorUnits) / 100)
	formatted := message.NewPrinter(language.English).Sprint(currency.NarrowSymbol(amount))
	return strings.TrimSuffix(formatted, ".00")
}
