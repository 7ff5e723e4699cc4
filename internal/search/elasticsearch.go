package search

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/venuehub/services/events/config"
	"example.com/venuehub/services/events/internal/models"
)

// ElasticClient mirrors audit entries and published events into Elasticsearch
// for compliance review. Indexing is a best-effort follow-up to the primary
// write, never part of it.
type ElasticClient struct {
	client *elasticsearch.Client
	config config.ElasticConfig
}

// NewElasticClient creates a new Elasticsearch client
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	esConfig := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &ElasticClient{
		client: client,
		config: cfg,
	}, nil
}

// Enabled reports whether the client is usable. A nil receiver is valid and
// reports false, so callers may hold a client that failed to initialize.
func (c *ElasticClient) Enabled() bool {
	return c != nil && c.client != nil
}

// IndexAuditEntry indexes one audit entry.
func (c *ElasticClient) IndexAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	if !c.Enabled() {
		return nil
	}

	doc := map[string]interface{}{
		"id":                 entry.ID.String(),
		"event_id":           entry.EventID,
		"action":             entry.Action,
		"performed_by":       entry.PerformedBy,
		"performed_by_email": entry.PerformedByEmail,
		"timestamp":          entry.Timestamp,
		"changes":            json.RawMessage(entry.Changes),
		"metadata":           json.RawMessage(entry.Metadata),
	}
	return c.index(ctx, config.FormatIndex(c.config, "audit"), entry.ID.String(), doc)
}

// IndexEvent indexes the current state of an event record.
func (c *ElasticClient) IndexEvent(ctx context.Context, record *models.EventRecord) error {
	if !c.Enabled() {
		return nil
	}

	doc := map[string]interface{}{
		"event_id":   record.EventID,
		"status":     record.Status,
		"title":      record.Title,
		"start_time": record.StartTime,
		"end_time":   record.EndTime,
		"locations":  record.Locations,
		"is_deleted": record.IsDeleted,
		"created_by": record.CreatedBy,
		"version":    record.Version,
	}
	return c.index(ctx, config.FormatIndex(c.config, "records"), record.EventID, doc)
}

func (c *ElasticClient) index(ctx context.Context, index, docID string, doc map[string]interface{}) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal document for indexing")
	}

	req := esapi.IndexRequest{
		Index:      index,
		DocumentID: docID,
		Body:       bytes.NewReader(body),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to index document")
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Error().Str("index", index).Str("doc_id", docID).Str("status", res.Status()).Msg("indexing failed")
		return errors.Errorf("indexing failed with status %s", res.Status())
	}

	return nil
}
