package tools

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
)

// Field synonyms seen in LLM entity output, canonical key first
var fieldSynonyms = map[string][]string{
	"name":       {"name", "product_name", "product", "item"},
	"product":    {"product", "item", "product_name", "name"},
	"vendor":     {"vendor", "from", "party", "counterparty", "supplier", "seller"},
	"customer":   {"customer", "to", "buyer", "client"},
	"price":      {"price", "unit_price", "rate", "cost"},
	"unit_price": {"unit_price", "price", "rate"},
	"amount":     {"amount", "total", "total_amount", "value"},
	"quantity":   {"quantity", "qty", "count", "units"},
	"type":       {"type", "transaction_type", "kind"},
	"date":       {"date", "on", "when"},
	"ref_id":     {"ref_id", "reference", "invoice", "ref"},
}

// canonicalize copies the first present synonym of each wanted key onto the key itself
func canonicalize(args map[string]interface{}, keys ...string) map[string]interface{} {
	out := make(map[string]interface{}, len(args)+len(keys))
	for k, v := range args {
		out[strings.ToLower(k)] = v
	}
	for _, key := range keys {
		if present(out[key]) {
			continue
		}
		for _, alt := range fieldSynonyms[key] {
			if v, ok := out[alt]; ok && present(v) {
				out[key] = v
				break
			}
		}
	}
	return out
}

func present(v interface{}) bool {
	if v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// decodeArgs fills out (a struct with json tags) from loosely typed LLM arguments.
// Amount-like strings ("₹5,000", "5k") and date strings are converted by hooks.
func decodeArgs(args map[string]interface{}, loc *time.Location, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		TagName:          "json",
		Result:           out,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			amountHook,
			dateHook(loc),
		),
	})
	if err != nil {
		return err
	}
	return decoder.Decode(args)
}

var timeType = reflect.TypeOf(time.Time{})

func amountHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to.Kind() != reflect.Float64 || from.Kind() != reflect.String {
		return data, nil
	}
	s, _ := data.(string)
	if strings.TrimSpace(s) == "" {
		return 0.0, nil
	}
	return ParseAmount(s)
}

func dateHook(loc *time.Location) mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != timeType || from.Kind() != reflect.String {
			return data, nil
		}
		s, _ := data.(string)
		if strings.TrimSpace(s) == "" {
			return time.Time{}, nil
		}
		return ParseDate(s, time.Now().In(loc), loc)
	}
}

var amountMultipliers = []struct {
	suffix string
	factor float64
}{
	{"crore", 1e7},
	{"cr", 1e7},
	{"lakh", 1e5},
	{"lac", 1e5},
	{"k", 1e3},
	{"l", 1e5},
}

// ParseAmount accepts numbers and strings like "5000", "₹5,000", "Rs. 5k", "1.5 lakh"
func ParseAmount(v interface{}) (float64, error) {
	if s, ok := v.(string); ok {
		return parseAmountString(s)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, fmt.Errorf("not an amount: %v", v)
	}
	return f, nil
}

func parseAmountString(raw string) (float64, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	for _, prefix := range []string{"₹", "rs.", "rs", "inr", "$", "usd"} {
		s = strings.TrimPrefix(s, prefix)
	}
	s = strings.TrimSpace(s)
	for _, suffix := range []string{"rupees", "rs", "inr", "/-", "₹"} {
		s = strings.TrimSpace(strings.TrimSuffix(s, suffix))
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "_", "")

	factor := 1.0
	for _, m := range amountMultipliers {
		if strings.HasSuffix(s, m.suffix) {
			candidate := strings.TrimSpace(strings.TrimSuffix(s, m.suffix))
			if _, err := strconv.ParseFloat(candidate, 64); err == nil {
				s = candidate
				factor = m.factor
				break
			}
		}
	}

	f, err := cast.ToFloat64E(s)
	if err != nil {
		return 0, fmt.Errorf("not an amount: %q", raw)
	}
	return f * factor, nil
}

// ParseDate understands "today", "yesterday", "N days ago" and anything dateparse can read
func ParseDate(raw string, now time.Time, loc *time.Location) (time.Time, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	switch s {
	case "today", "now":
		return day, nil
	case "yesterday":
		return day.AddDate(0, 0, -1), nil
	case "day before yesterday":
		return day.AddDate(0, 0, -2), nil
	}
	if strings.HasSuffix(s, " days ago") {
		if n, err := strconv.Atoi(strings.TrimSpace(strings.TrimSuffix(s, " days ago"))); err == nil {
			return day.AddDate(0, 0, -n), nil
		}
	}

	t, err := dateparse.ParseIn(strings.TrimSpace(raw), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized date %q: %w", raw, err)
	}
	return t, nil
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
