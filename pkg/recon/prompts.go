package recon

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/invoicegraph/pkg/agent"
)

//go:embed prompts.yaml
var defaultPromptsYAML []byte

// Prompts holds the prompt of every agent plus the OCR instruction.
type Prompts struct {
	FinanceClerk   agent.Prompt `yaml:"finance_clerk"`
	Reconciliation agent.Prompt `yaml:"senior_reconciliation_agent"`
	QueryEngineer  agent.Prompt `yaml:"invoice_data_engineer"`
	UpdateEngineer agent.Prompt `yaml:"invoice_update_data_engineer"`
	OCR            string       `yaml:"ocr"`
}

// DefaultPrompts returns the built-in prompt catalogue.
func DefaultPrompts() Prompts {
	var p Prompts
	if err := yaml.Unmarshal(defaultPromptsYAML, &p); err != nil {
		panic(fmt.Sprintf("recon: invalid embedded prompts: %v", err))
	}
	return p
}

// LoadPrompts reads a YAML prompt catalogue from path. Entries missing
// from the file keep their defaults. An empty path returns the defaults.
func LoadPrompts(path string) (Prompts, error) {
	p := DefaultPrompts()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Prompts{}, fmt.Errorf("read prompts: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Prompts{}, fmt.Errorf("parse prompts %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return Prompts{}, fmt.Errorf("prompts %s: %w", path, err)
	}
	return p, nil
}

// Validate reports blank prompts.
func (p Prompts) Validate() error {
	var errs []error
	check := func(name, text string) {
		if strings.TrimSpace(text) == "" {
			errs = append(errs, fmt.Errorf("%s prompt is empty", name))
		}
	}
	check(NodeFinanceClerk, p.FinanceClerk.System)
	check(NodeReconciliation, p.Reconciliation.System)
	check(NodeQueryEngineer, p.QueryEngineer.System)
	check(NodeUpdateEngineer, p.UpdateEngineer.System)
	check("ocr", p.OCR)
	return errors.Join(errs...)
}
