// Package realtime carries row change notifications from the database side
// to in-process listeners. A Hub keeps exactly one Source subscription per
// watched table and fans each change out to every registered listener.
package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/angelmondragon/tablepos-backend/pkg/enums"
)

// Change is one insert/update/delete on a watched table. OrderID and
// TableIDs scope the change so listeners can invalidate only what it
// touched; both may be empty when the row has no such relation.
// RelatedOrderIDs names the other orders a move touched, such as the
// target of a split or the sources of a merge.
type Change struct {
	EventID         string             `json:"event_id"`
	Table           enums.WatchedTable `json:"table"`
	Op              enums.ChangeOp     `json:"op"`
	RowID           string             `json:"row_id,omitempty"`
	OrderID         string             `json:"order_id,omitempty"`
	RelatedOrderIDs []string           `json:"related_order_ids,omitempty"`
	TableIDs        []string           `json:"table_ids,omitempty"`
	Status          string             `json:"status,omitempty"`
	OccurredAt      time.Time          `json:"occurred_at"`
}

// Handler receives changes for one watched table. Handlers run on the
// source's delivery goroutine and must not block for long.
type Handler func(Change)

func (c Change) Validate() error {
	if !c.Table.IsValid() {
		return fmt.Errorf("unknown watched table %q", c.Table)
	}
	if !c.Op.IsValid() {
		return fmt.Errorf("unknown change op %q", c.Op)
	}
	return nil
}

// TouchesTable reports whether the change is scoped to tableID.
func (c Change) TouchesTable(tableID string) bool {
	for _, id := range c.TableIDs {
		if id == tableID {
			return true
		}
	}
	return false
}

// OrderIDs returns OrderID followed by RelatedOrderIDs, skipping blanks.
func (c Change) OrderIDs() []string {
	var ids []string
	for _, id := range append([]string{c.OrderID}, c.RelatedOrderIDs...) {
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func Encode(c Change) ([]byte, error) {
	return json.Marshal(c)
}

// Decode parses and validates a change message.
func Decode(raw []byte) (Change, error) {
	var c Change
	if err := json.Unmarshal(raw, &c); err != nil {
		return Change{}, fmt.Errorf("decode change: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Change{}, err
	}
	return c, nil
}
