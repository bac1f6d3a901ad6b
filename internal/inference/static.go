package inference

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed diseases.yaml
var diseasesYAML []byte

// defaultCost is used for diseases without a base cost.
const defaultCost = 400000

// Solution describes one disease and how to handle it.
type Solution struct {
	Name             string   `yaml:"name" json:"name"`
	Description      string   `yaml:"description" json:"description"`
	Causes           []string `yaml:"causes" json:"causes,omitempty"`
	Symptoms         []string `yaml:"symptoms" json:"symptoms,omitempty"`
	Treatment        []string `yaml:"treatment" json:"treatment,omitempty"`
	Prevention       []string `yaml:"prevention" json:"prevention,omitempty"`
	OrganicTreatment []string `yaml:"organic_treatment" json:"organic_treatment,omitempty"`
	Urgency          string   `yaml:"urgency" json:"urgency"`
	EstimatedLoss    string   `yaml:"estimated_loss" json:"estimated_loss"`
	BaseCost         float64  `yaml:"base_cost" json:"-"`
}

// Schedule is the generic treatment plan attached to static answers.
type Schedule struct {
	Immediate []string `json:"immediate"`
	Daily     []string `json:"daily"`
	Weekly    []string `json:"weekly"`
	Monthly   []string `json:"monthly"`
}

// CostEstimate is expressed in rupiah.
type CostEstimate struct {
	TreatmentCost  float64 `json:"treatment_cost"`
	PreventionCost float64 `json:"prevention_cost"`
	PotentialLoss  float64 `json:"potential_loss"`
	Currency       string  `json:"currency"`
}

var defaultSchedule = Schedule{
	Immediate: []string{"Isolasi tanaman terinfeksi", "Aplikasi treatment utama"},
	Daily:     []string{"Monitoring perkembangan", "Aplikasi treatment lanjutan"},
	Weekly:    []string{"Evaluasi efektivitas treatment", "Aplikasi treatment preventif"},
	Monthly:   []string{"Assessment keseluruhan", "Pencegahan kekambuhan"},
}

// Table is the static disease knowledge base.
type Table map[string]Solution

// LoadTable parses a YAML disease table.
func LoadTable(data []byte) (Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse disease table: %w", err)
	}
	return t, nil
}

// DefaultTable returns the embedded table.
func DefaultTable() Table {
	t, err := LoadTable(diseasesYAML)
	if err != nil {
		panic(err)
	}
	return t
}

// Names returns the disease keys in sorted order.
func (t Table) Names() []string {
	names := make([]string, 0, len(t))
	for k := range t {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Estimate derives the cost estimate of a disease.
func (s Solution) Estimate() CostEstimate {
	base := s.BaseCost
	if base <= 0 {
		base = defaultCost
	}
	return CostEstimate{
		TreatmentCost:  base,
		PreventionCost: base * 0.3,
		PotentialLoss:  base * 2,
		Currency:       "IDR",
	}
}
