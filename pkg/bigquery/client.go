package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/angelmondragon/tablepos-backend/pkg/config"
	"github.com/angelmondragon/tablepos-backend/pkg/logger"
)

const metadataTimeout = 10 * time.Second

var (
	ErrNotInitialized = errors.New("bigquery client not initialized")
	errNoTable        = errors.New("bigquery table name is required")
)

// RowInserter is the write surface the sales facts writer depends on.
type RowInserter interface {
	InsertRows(ctx context.Context, table string, rows []bigquery.ValueSaver) error
}

// TableSpec describes a table the worker may create on startup.
type TableSpec struct {
	Name           string
	Schema         bigquery.Schema
	PartitionField string
	ClusterBy      []string
}

// Client wraps a dataset handle. Only the sales table is written today.
type Client struct {
	bq      *bigquery.Client
	dataset *bigquery.Dataset
	sales   string
	logg    *logger.Logger
}

// NewClient connects and confirms the dataset exists. The sales table is
// checked too unless CreateTables is set, in which case EnsureTable is
// expected to run before the first insert.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	dataset := strings.TrimSpace(cfg.Dataset)
	sales := strings.TrimSpace(cfg.SalesTable)
	switch {
	case project == "":
		return nil, errors.New("gcp project id is required")
	case dataset == "":
		return nil, errors.New("bigquery dataset is required")
	case sales == "":
		return nil, errNoTable
	}

	bq, err := bigquery.NewClient(ctx, project, credentials(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	c := &Client{bq: bq, dataset: bq.Dataset(dataset), sales: sales, logg: logg}

	var tables []string
	if !cfg.CreateTables {
		tables = append(tables, sales)
	}
	if err := c.check(ctx, tables...); err != nil {
		_ = bq.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"dataset": dataset, "sales_table": sales}), "bigquery client initialized")
	}
	return c, nil
}

func credentials(gcp config.GCPConfig) []option.ClientOption {
	if raw := strings.TrimSpace(gcp.CredentialsJSON); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

func (c *Client) check(ctx context.Context, tables ...string) error {
	if c == nil || c.dataset == nil {
		return ErrNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		return describe("dataset", c.dataset.DatasetID, err)
	}
	for _, name := range tables {
		if _, err := c.dataset.Table(name).Metadata(ctx); err != nil {
			return describe("table", name, err)
		}
	}
	return nil
}

func describe(kind, name string, err error) error {
	if httpStatus(err) == http.StatusNotFound {
		return fmt.Errorf("%s %q does not exist", kind, name)
	}
	return fmt.Errorf("checking %s %q: %w", kind, name, err)
}

// Ping confirms the dataset and the sales table are reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return ErrNotInitialized
	}
	return c.check(ctx, c.sales)
}

// EnsureTable creates the table when it is missing. An existing table is
// left untouched even if its schema differs.
func (c *Client) EnsureTable(ctx context.Context, spec TableSpec) error {
	if c == nil || c.dataset == nil {
		return ErrNotInitialized
	}
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		return errNoTable
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	table := c.dataset.Table(name)
	if _, err := table.Metadata(ctx); err == nil {
		return nil
	} else if httpStatus(err) != http.StatusNotFound {
		return describe("table", name, err)
	}

	err := table.Create(ctx, tableMetadata(spec))
	if httpStatus(err) == http.StatusConflict {
		return nil
	}
	if err != nil {
		return fmt.Errorf("creating table %q: %w", name, err)
	}
	if c.logg != nil {
		c.logg.Info(c.logg.WithField(ctx, "table", name), "bigquery table created")
	}
	return nil
}

func tableMetadata(spec TableSpec) *bigquery.TableMetadata {
	meta := &bigquery.TableMetadata{Schema: spec.Schema}
	if field := strings.TrimSpace(spec.PartitionField); field != "" {
		meta.TimePartitioning = &bigquery.TimePartitioning{Type: bigquery.DayPartitioningType, Field: field}
	}
	if len(spec.ClusterBy) > 0 {
		meta.Clustering = &bigquery.Clustering{Fields: spec.ClusterBy}
	}
	return meta
}

// InsertRows streams rows into table. Savers that carry an InsertID let
// BigQuery drop retried duplicates.
func (c *Client) InsertRows(ctx context.Context, table string, rows []bigquery.ValueSaver) error {
	if c == nil || c.dataset == nil {
		return ErrNotInitialized
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errNoTable
	}
	if len(rows) == 0 {
		return nil
	}
	return c.dataset.Table(table).Inserter().Put(ctx, rows)
}

func (c *Client) SalesTable() string {
	if c == nil {
		return ""
	}
	return c.sales
}

func (c *Client) Close() error {
	if c == nil || c.bq == nil {
		return nil
	}
	return c.bq.Close()
}

func httpStatus(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
