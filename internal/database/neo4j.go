package database

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	neo4jconfig "github.com/neo4j/neo4j-go-driver/v5/neo4j/config"
	"go.uber.org/zap"

	"github.com/ragcore/ingestion-core/internal/config"
	"github.com/ragcore/ingestion-core/internal/logger"
)

// NotebookGraph is the document/notebook relationship graph ancillary to the
// SQL chunk store: it records which documents the queue dispatcher has seen
// go through processing, for notebook-scoped listings the chat layer queries
// directly against Neo4j. The chunk and embedding data itself lives in
// Postgres per the schema in spec §6; this graph is never consulted in the
// C8-C11 critical path, only written to as a best-effort side record - a
// write failure here never fails the dispatch. Adapted from the teacher's
// Neo4jClient, trimmed to the single write path C10 actually exercises.
type NotebookGraph struct {
	driver neo4j.DriverWithContext
	logger *logger.Logger
	cfg    config.DatabaseConfig
}

// NewNotebookGraph connects to Neo4j and verifies connectivity.
func NewNotebookGraph(cfg config.DatabaseConfig, log *logger.Logger) (*NotebookGraph, error) {
	auth := neo4j.BasicAuth(cfg.Username, cfg.Password, "")

	driverConfig := func(conf *neo4jconfig.Config) {
		conf.MaxConnectionPoolSize = cfg.MaxConns
		conf.ConnectionAcquisitionTimeout = 30 * time.Second
		conf.SocketConnectTimeout = 5 * time.Second
		conf.SocketKeepalive = true
		if cfg.TLSInsecure {
			conf.TlsConfig = &tls.Config{InsecureSkipVerify: true}
		}
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, driverConfig)
	if err != nil {
		return nil, err
	}

	g := &NotebookGraph{driver: driver, logger: log.WithService("notebook_graph"), cfg: cfg}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(context.Background())
		return nil, err
	}

	g.logger.Info("connected to notebook graph", zap.String("uri", cfg.URI))
	return g, nil
}

// Close closes the underlying driver.
func (g *NotebookGraph) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

// HealthCheck verifies the Neo4j connection is live.
func (g *NotebookGraph) HealthCheck(ctx context.Context) error {
	return g.driver.VerifyConnectivity(ctx)
}

// RecordDispatch best-effort merges a (:Document)-[:DISPATCHED]->(:ProcessingJob)
// edge for documentID, giving the chat layer's notebook view a processing
// history to show without querying Postgres. Called fire-and-forget by the
// queue dispatcher after a successful enqueue; failures are logged by the
// caller, not treated as dispatch failures.
func (g *NotebookGraph) RecordDispatch(ctx context.Context, documentID uuid.UUID, objectKey string, dispatchedAt time.Time) error {
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: g.cfg.Database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx,
			`MERGE (d:Document {id: $documentId})
			 ON CREATE SET d.object_key = $objectKey
			 MERGE (j:ProcessingJob {document_id: $documentId, dispatched_at: $dispatchedAt})
			 MERGE (d)-[:DISPATCHED]->(j)`,
			map[string]any{
				"documentId":   documentID.String(),
				"objectKey":    objectKey,
				"dispatchedAt": dispatchedAt.Format(time.RFC3339Nano),
			})
		return nil, err
	})
	return err
}
