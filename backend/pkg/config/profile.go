package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile describes the business the bot keeps books for.
type Profile struct {
	BusinessName   string `yaml:"business_name"`
	CurrencyCode   string `yaml:"currency_code"`
	CurrencySymbol string `yaml:"currency_symbol"`
	DefaultVendor  string `yaml:"default_vendor"`
	Timezone       string `yaml:"timezone"`
	// ProductAliases maps shorthand used in chat to catalog names, e.g. "ok" -> "ortho kit"
	ProductAliases map[string]string `yaml:"product_aliases"`
}

// DefaultProfile returns the profile used when no file is present.
func DefaultProfile() *Profile {
	return &Profile{
		BusinessName:   "My Business",
		CurrencyCode:   "INR",
		CurrencySymbol: "₹",
		Timezone:       "Asia/Kolkata",
		ProductAliases: map[string]string{},
	}
}

// LoadProfile reads a YAML business profile. A missing file yields DefaultProfile.
// Fields the file leaves empty take their defaults; a currency code without a
// symbol is printed as the code itself.
func LoadProfile(path string) (*Profile, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultProfile(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultProfile(), nil
		}
		return nil, fmt.Errorf("failed to read profile: %w", err)
	}

	p := &Profile{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse profile YAML: %w", err)
	}

	def := DefaultProfile()
	p.CurrencyCode = strings.ToUpper(strings.TrimSpace(p.CurrencyCode))
	switch {
	case p.CurrencyCode == "" && p.CurrencySymbol == "":
		p.CurrencyCode = def.CurrencyCode
		p.CurrencySymbol = def.CurrencySymbol
	case p.CurrencyCode == "":
		p.CurrencyCode = def.CurrencyCode
	case p.CurrencySymbol == "":
		p.CurrencySymbol = p.CurrencyCode
	}
	if strings.TrimSpace(p.BusinessName) == "" {
		p.BusinessName = def.BusinessName
	}
	if p.Timezone == "" {
		p.Timezone = def.Timezone
	}
	if _, err := time.LoadLocation(p.Timezone); err != nil {
		return nil, fmt.Errorf("invalid profile timezone %q: %w", p.Timezone, err)
	}
	normalized := make(map[string]string, len(p.ProductAliases))
	for k, v := range p.ProductAliases {
		normalized[strings.ToLower(strings.TrimSpace(k))] = v
	}
	p.ProductAliases = normalized
	return p, nil
}

// Location returns the profile timezone, falling back to UTC.
func (p *Profile) Location() *time.Location {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ResolveProduct maps an alias to its catalog name; unknown names pass through.
func (p *Profile) ResolveProduct(name string) string {
	if p == nil {
		return name
	}
	if canonical, ok := p.ProductAliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return canonical
	}
	return name
}

// FormatAmount renders an amount with the profile currency symbol.
func (p *Profile) FormatAmount(amount float64) string {
	symbol := "₹"
	if p != nil && p.CurrencySymbol != "" {
		symbol = p.CurrencySymbol
	}
	if amount == float64(int64(amount)) {
		return fmt.Sprintf("%s%d", symbol, int64(amount))
	}
	return fmt.Sprintf("%s%.2f", symbol, amount)
}
