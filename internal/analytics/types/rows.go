package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// SalesFactRow mirrors the sales_facts BigQuery schema. Amounts are whole
// dong.
type SalesFactRow struct {
	EventID          string             `bigquery:"event_id"`
	EventType        string             `bigquery:"event_type"`
	OccurredAt       time.Time          `bigquery:"occurred_at"`
	BusinessDate     string             `bigquery:"business_date"`
	OrderID          *string            `bigquery:"order_id"`
	TableIDs         []string           `bigquery:"table_ids"`
	Status           *string            `bigquery:"status"`
	RevenueVND       int64              `bigquery:"revenue_vnd"`
	CostVND          int64              `bigquery:"cost_vnd"`
	ReturnedVND      int64              `bigquery:"returned_vnd"`
	ExpenseVND       int64              `bigquery:"expense_vnd"`
	ItemCount        int64              `bigquery:"item_count"`
	ReturnedQuantity int64              `bigquery:"returned_quantity"`
	DwellSeconds     *int64             `bigquery:"dwell_seconds"`
	ActorRole        *string            `bigquery:"actor_role"`
	Payload          cbigquery.NullJSON `bigquery:"payload"`
}

// SalesFactSchema is passed explicitly on insert so rows are never run
// through reflection-based schema inference.
var SalesFactSchema = cbigquery.Schema{
	{Name: "event_id", Type: cbigquery.StringFieldType, Required: true},
	{Name: "event_type", Type: cbigquery.StringFieldType, Required: true},
	{Name: "occurred_at", Type: cbigquery.TimestampFieldType, Required: true},
	{Name: "business_date", Type: cbigquery.StringFieldType, Required: true},
	{Name: "order_id", Type: cbigquery.StringFieldType},
	{Name: "table_ids", Type: cbigquery.StringFieldType, Repeated: true},
	{Name: "status", Type: cbigquery.StringFieldType},
	{Name: "revenue_vnd", Type: cbigquery.IntegerFieldType},
	{Name: "cost_vnd", Type: cbigquery.IntegerFieldType},
	{Name: "returned_vnd", Type: cbigquery.IntegerFieldType},
	{Name: "expense_vnd", Type: cbigquery.IntegerFieldType},
	{Name: "item_count", Type: cbigquery.IntegerFieldType},
	{Name: "returned_quantity", Type: cbigquery.IntegerFieldType},
	{Name: "dwell_seconds", Type: cbigquery.IntegerFieldType},
	{Name: "actor_role", Type: cbigquery.StringFieldType},
	{Name: "payload", Type: cbigquery.JSONFieldType},
}
