package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Customizations is the per-line drink/dish options chosen at the table.
// It is stored as a JSON document and never interpreted by the kitchen
// beyond display and grouping.
type Customizations struct {
	Size       string   `json:"size,omitempty"`
	SugarLevel string   `json:"sugar_level,omitempty"`
	IceLevel   string   `json:"ice_level,omitempty"`
	Toppings   []string `json:"toppings,omitempty"`
	Note       string   `json:"note,omitempty"`
}

// IsZero reports whether no option was chosen.
func (c Customizations) IsZero() bool {
	return c.Size == "" && c.SugarLevel == "" && c.IceLevel == "" && len(c.Toppings) == 0 && c.Note == ""
}

// Signature is a stable key for grouping lines with identical options.
func (c Customizations) Signature() string {
	toppings := append([]string(nil), c.Toppings...)
	sort.Strings(toppings)
	return strings.Join([]string{
		strings.TrimSpace(c.Size),
		strings.TrimSpace(c.SugarLevel),
		strings.TrimSpace(c.IceLevel),
		strings.Join(toppings, "+"),
		strings.TrimSpace(c.Note),
	}, "|")
}

// Value implements driver.Valuer.
func (c Customizations) Value() (driver.Value, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("customizations: marshal: %w", err)
	}
	return string(raw), nil
}

// Scan implements sql.Scanner.
func (c *Customizations) Scan(value any) error {
	if value == nil {
		*c = Customizations{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("customizations: unsupported scan type %T", value)
	}
	if len(raw) == 0 {
		*c = Customizations{}
		return nil
	}
	return json.Unmarshal(raw, c)
}
