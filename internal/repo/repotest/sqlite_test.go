package repotest

import "testing"

func TestOpenDBAppliesSchema(t *testing.T) {
	db := OpenDB(t)
	for _, table := range []string{"tables", "menu_items", "orders", "order_tables", "order_items", "cart_items", "return_slips", "kitchen_notifications", "expenses", "outbox_events", "outbox_dlq"} {
		if !db.Migrator().HasTable(table) {
			t.Fatalf("expected table %s", table)
		}
	}
}
