package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/bigquery"
	"github.com/cortexai/coursebot/internal/security"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// BigQueryAuditSink streams query audit records into a BigQuery table.
type BigQueryAuditSink struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	tableID   string
}

// NewBigQueryAuditSink creates the BigQuery client used by the sink.
func NewBigQueryAuditSink(ctx context.Context, projectID, credentialsFile, datasetID, tableID string) (*BigQueryAuditSink, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery.NewClient: %w", err)
	}

	return &BigQueryAuditSink{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
		tableID:   tableID,
	}, nil
}

// Close releases the BigQuery client
func (s *BigQueryAuditSink) Close() error {
	return s.client.Close()
}

// Ping checks the audit table is reachable.
func (s *BigQueryAuditSink) Ping(ctx context.Context) error {
	if _, err := s.client.Dataset(s.datasetID).Table(s.tableID).Metadata(ctx); err != nil {
		return fmt.Errorf("audit table %q.%q: %w", s.datasetID, s.tableID, err)
	}
	return nil
}

// AuditSchema is the table schema inferred from security.AuditRecord.
func AuditSchema() (bigquery.Schema, error) {
	return bigquery.InferSchema(security.AuditRecord{})
}

// EnsureTable creates the audit table when it does not exist yet.
func (s *BigQueryAuditSink) EnsureTable(ctx context.Context) error {
	tbl := s.client.Dataset(s.datasetID).Table(s.tableID)
	if _, err := tbl.Metadata(ctx); err == nil {
		return nil
	} else if !isNotFound(err) {
		return fmt.Errorf("get table %q.%q: %w", s.datasetID, s.tableID, err)
	}

	schema, err := AuditSchema()
	if err != nil {
		return fmt.Errorf("infer audit schema: %w", err)
	}
	meta := &bigquery.TableMetadata{
		Schema:           schema,
		TimePartitioning: &bigquery.TimePartitioning{Field: "timestamp"},
	}
	if err := tbl.Create(ctx, meta); err != nil {
		return fmt.Errorf("create table %q.%q: %w", s.datasetID, s.tableID, err)
	}
	log.Info().Str("dataset", s.datasetID).Str("table", s.tableID).Msg("audit table created")
	return nil
}

// WriteAudit streams one record.
func (s *BigQueryAuditSink) WriteAudit(ctx context.Context, rec security.AuditRecord) error {
	ins := s.client.Dataset(s.datasetID).Table(s.tableID).Inserter()
	if err := ins.Put(ctx, rec); err != nil {
		var multi bigquery.PutMultiError
		if errors.As(err, &multi) && len(multi) > 0 {
			return fmt.Errorf("insert audit row: %w", multi[0].Errors)
		}
		return fmt.Errorf("insert audit row: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
