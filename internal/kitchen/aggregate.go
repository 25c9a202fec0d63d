package kitchen

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/tablepos-backend/pkg/enums"
	"github.com/angelmondragon/tablepos-backend/pkg/types"
)

// Row is one line item as every kitchen view sees it: the line plus the
// denormalized table name and the current availability of its menu item.
type Row struct {
	LineItemID       uuid.UUID            `json:"line_item_id"`
	OrderID          uuid.UUID            `json:"order_id"`
	TableID          uuid.UUID            `json:"table_id"`
	TableName        string               `json:"table_name"`
	MenuItemID       uuid.UUID            `json:"menu_item_id"`
	Name             string               `json:"name"`
	Quantity         int                  `json:"quantity"`
	ReturnedQuantity int                  `json:"returned_quantity"`
	Status           enums.LineItemStatus `json:"status"`
	Customizations   types.Customizations `json:"customizations"`
	Available        bool                 `json:"available"`
	CreatedAt        time.Time            `json:"created_at"`
}

// Remaining is quantity minus returned quantity, clamped at zero.
func Remaining(quantity, returned int) int {
	if r := quantity - returned; r > 0 {
		return r
	}
	return 0
}

func (r Row) Remaining() int {
	return Remaining(r.Quantity, r.ReturnedQuantity)
}

// Visible reports whether the row belongs on kitchen-facing aggregates.
// Fully returned lines and served lines are dropped. Waiting lines for an
// unavailable menu item are hidden; work already started is always shown.
func Visible(r Row) bool {
	if r.Remaining() <= 0 || r.Status == enums.LineItemStatusServed {
		return false
	}
	if !r.Available && r.Status == enums.LineItemStatusWaiting {
		return false
	}
	return true
}

// StatusCounts buckets remaining quantities by kitchen status. The three
// buckets always add up to Total.
type StatusCounts struct {
	Total      int `json:"total"`
	Waiting    int `json:"waiting"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
}

func (c *StatusCounts) add(status enums.LineItemStatus, qty int) {
	switch status {
	case enums.LineItemStatusWaiting:
		c.Waiting += qty
	case enums.LineItemStatusInProgress:
		c.InProgress += qty
	case enums.LineItemStatusCompleted:
		c.Completed += qty
	default:
		return
	}
	c.Total += qty
}

// ItemSummary is the kitchen summary line for one menu item name.
type ItemSummary struct {
	Name string `json:"name"`
	StatusCounts
}

// Summarize accumulates visible rows per name, sorted by name. The input is
// never modified.
func Summarize(rows []Row) []ItemSummary {
	byName := make(map[string]*ItemSummary)
	for _, row := range rows {
		if !Visible(row) {
			continue
		}
		s, ok := byName[row.Name]
		if !ok {
			s = &ItemSummary{Name: row.Name}
			byName[row.Name] = s
		}
		s.add(row.Status, row.Remaining())
	}

	out := make([]ItemSummary, 0, len(byName))
	for _, s := range byName {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// TableGroup is the per-table breakdown of visible rows.
type TableGroup struct {
	TableID   uuid.UUID     `json:"table_id"`
	TableName string        `json:"table_name"`
	Counts    StatusCounts  `json:"counts"`
	Items     []ItemSummary `json:"items"`
}

// GroupByTable groups visible rows per table, sorted by table name.
func GroupByTable(rows []Row) []TableGroup {
	byTable := make(map[uuid.UUID][]Row)
	names := make(map[uuid.UUID]string)
	for _, row := range rows {
		if !Visible(row) {
			continue
		}
		byTable[row.TableID] = append(byTable[row.TableID], row)
		names[row.TableID] = row.TableName
	}

	out := make([]TableGroup, 0, len(byTable))
	for tableID, tableRows := range byTable {
		group := TableGroup{TableID: tableID, TableName: names[tableID], Items: Summarize(tableRows)}
		for _, row := range tableRows {
			group.Counts.add(row.Status, row.Remaining())
		}
		out = append(out, group)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TableName != out[j].TableName {
			return out[i].TableName < out[j].TableName
		}
		return out[i].TableID.String() < out[j].TableID.String()
	})
	return out
}

// Ticket is one order on the kitchen display.
type Ticket struct {
	OrderID    uuid.UUID    `json:"order_id"`
	TableNames []string     `json:"table_names"`
	Counts     StatusCounts `json:"counts"`
	Lines      []Row        `json:"lines"`
	OldestAt   time.Time    `json:"oldest_at"`
}

// Done reports whether the kitchen has finished every line of the ticket.
func (t Ticket) Done() bool {
	return t.Counts.Total > 0 && t.Counts.Completed == t.Counts.Total
}

// GroupTickets groups visible rows per order, oldest ticket first. Lines
// keep their creation order.
func GroupTickets(rows []Row) []Ticket {
	byOrder := make(map[uuid.UUID]*Ticket)
	for _, row := range rows {
		if !Visible(row) {
			continue
		}
		t, ok := byOrder[row.OrderID]
		if !ok {
			t = &Ticket{OrderID: row.OrderID, OldestAt: row.CreatedAt}
			byOrder[row.OrderID] = t
		}
		t.Lines = append(t.Lines, row)
		t.Counts.add(row.Status, row.Remaining())
		if row.CreatedAt.Before(t.OldestAt) {
			t.OldestAt = row.CreatedAt
		}
		if !containsString(t.TableNames, row.TableName) {
			t.TableNames = append(t.TableNames, row.TableName)
		}
	}

	out := make([]Ticket, 0, len(byOrder))
	for _, t := range byOrder {
		sort.SliceStable(t.Lines, func(i, j int) bool { return t.Lines[i].CreatedAt.Before(t.Lines[j].CreatedAt) })
		sort.Strings(t.TableNames)
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OldestAt.Equal(out[j].OldestAt) {
			return out[i].OldestAt.Before(out[j].OldestAt)
		}
		return out[i].OrderID.String() < out[j].OrderID.String()
	})
	return out
}

// EntryKind tells a display entry apart when a line was partially returned.
type EntryKind string

const (
	EntryRemaining EntryKind = "remaining"
	EntryReturned  EntryKind = "returned"
)

// DisplayEntry is one rendered line. A partially returned line yields a
// returned entry followed by a remaining entry.
type DisplayEntry struct {
	LineItemID uuid.UUID            `json:"line_item_id"`
	Name       string               `json:"name"`
	Quantity   int                  `json:"quantity"`
	Kind       EntryKind            `json:"kind"`
	Status     enums.LineItemStatus `json:"status"`
	Label      string               `json:"label"`
	Color      string               `json:"color"`
}

func DisplayEntries(r Row) []DisplayEntry {
	var out []DisplayEntry
	returned := r.ReturnedQuantity
	if returned > r.Quantity {
		returned = r.Quantity
	}
	if returned > 0 {
		out = append(out, DisplayEntry{
			LineItemID: r.LineItemID,
			Name:       r.Name,
			Quantity:   returned,
			Kind:       EntryReturned,
			Status:     r.Status,
			Label:      "Đã trả",
			Color:      "#EF4444",
		})
	}
	if remaining := r.Remaining(); remaining > 0 {
		out = append(out, DisplayEntry{
			LineItemID: r.LineItemID,
			Name:       r.Name,
			Quantity:   remaining,
			Kind:       EntryRemaining,
			Status:     r.Status,
			Label:      Label(r.Status),
			Color:      Color(r.Status),
		})
	}
	return out
}

// ElapsedLabel renders how long ago since was, in minutes up to an hour and
// hours plus minutes after that.
func ElapsedLabel(since, now time.Time) string {
	d := now.Sub(since)
	if d < time.Minute {
		return "vừa xong"
	}
	minutes := int(d / time.Minute)
	if minutes < 60 {
		return fmt.Sprintf("%d phút", minutes)
	}
	hours := minutes / 60
	minutes %= 60
	if minutes == 0 {
		return fmt.Sprintf("%d giờ", hours)
	}
	return fmt.Sprintf("%d giờ %d phút", hours, minutes)
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
