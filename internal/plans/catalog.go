// Package plans holds the purchasable plan catalog used when creating
// payments. Durations applied to subscriptions live in models.Plan; the
// catalog only carries presentation and pricing.
package plans

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/umit144/license-sync/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed plans.yaml
var defaultCatalog []byte

type Offer struct {
	Plan     models.Plan
	Name     string
	Duration string
	Price    decimal.Decimal
	Currency string
}

type Catalog struct {
	Product string
	offers  map[models.Plan]Offer
}

type catalogFile struct {
	Product string `yaml:"product"`
	Plans   map[string]struct {
		Name     string `yaml:"name"`
		Duration string `yaml:"duration"`
		Price    string `yaml:"price"`
		Currency string `yaml:"currency"`
	} `yaml:"plans"`
}

// Load reads the catalog from path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	raw := defaultCatalog
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading plan catalog: %w", err)
		}
		raw = b
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse plan catalog: %w", err)
	}
	if len(f.Plans) == 0 {
		return nil, fmt.Errorf("plan catalog is empty")
	}

	c := &Catalog{Product: f.Product, offers: make(map[models.Plan]Offer, len(f.Plans))}
	for key, p := range f.Plans {
		plan, ok := models.ParsePlan(key)
		if !ok {
			return nil, fmt.Errorf("plan catalog: unknown plan %q", key)
		}
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, fmt.Errorf("plan catalog: %s price: %w", key, err)
		}
		if !price.IsPositive() {
			return nil, fmt.Errorf("plan catalog: %s price must be positive", key)
		}
		if len(p.Currency) != 3 {
			return nil, fmt.Errorf("plan catalog: %s currency must be an ISO code", key)
		}
		c.offers[plan] = Offer{
			Plan:     plan,
			Name:     p.Name,
			Duration: p.Duration,
			Price:    price,
			Currency: p.Currency,
		}
	}
	return c, nil
}

func (c *Catalog) Lookup(plan models.Plan) (Offer, bool) {
	o, ok := c.offers[plan]
	return o, ok
}

// Names lists the purchasable plans in a stable order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.offers))
	for p := range c.offers {
		names = append(names, string(p))
	}
	sort.Strings(names)
	return names
}
