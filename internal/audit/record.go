// Package audit keeps a document per kitchen status move so disputes about
// who started or served a dish can be settled after the fact.
package audit

import "time"

// StatusRecord is one line item status change as stored in Mongo.
type StatusRecord struct {
	EventID    string    `bson:"event_id"`
	LineItemID string    `bson:"line_item_id"`
	OrderID    string    `bson:"order_id"`
	TableID    string    `bson:"table_id"`
	MenuItemID string    `bson:"menu_item_id"`
	Name       string    `bson:"name"`
	From       string    `bson:"from"`
	To         string    `bson:"to"`
	Quantity   int       `bson:"quantity"`
	Remaining  int       `bson:"remaining"`
	ActorID    string    `bson:"actor_id,omitempty"`
	ActorRole  string    `bson:"actor_role,omitempty"`
	ChangedAt  time.Time `bson:"changed_at"`
	RecordedAt time.Time `bson:"recorded_at"`
}
