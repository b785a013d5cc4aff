package repository

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"
)

// CoPurchaseGraph keeps (:User)-[:PURCHASED]->(:Item) edges in Neo4j. With
// a nil driver every call is a no-op.
type CoPurchaseGraph struct {
	driver neo4j.DriverWithContext
	logger *logrus.Logger
}

func NewCoPurchaseGraph(driver neo4j.DriverWithContext, logger *logrus.Logger) *CoPurchaseGraph {
	return &CoPurchaseGraph{driver: driver, logger: logger}
}

// CoPurchased counts, for every other item, the distinct users who bought
// it and at least one of itemIDs.
func (g *CoPurchaseGraph) CoPurchased(ctx context.Context, itemIDs []string, limit int) (map[string]int, error) {
	counts := make(map[string]int)
	if g.driver == nil || len(itemIDs) == 0 {
		return counts, nil
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	query := `
		MATCH (ref:Item)<-[:PURCHASED]-(u:User)-[:PURCHASED]->(other:Item)
		WHERE ref.item_id IN $itemIds AND NOT other.item_id IN $itemIds
		RETURN other.item_id AS item_id, count(DISTINCT u) AS buyers
		ORDER BY buyers DESC, item_id
		LIMIT $limit`

	_, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, map[string]any{
			"itemIds": itemIDs,
			"limit":   limit,
		})
		if err != nil {
			return nil, err
		}
		for result.Next(ctx) {
			record := result.Record()
			itemID, ok := record.Values[0].(string)
			if !ok {
				continue
			}
			buyers, _ := record.Values[1].(int64)
			counts[itemID] = int(buyers)
		}
		return nil, result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("co-purchase query failed: %w", err)
	}

	return counts, nil
}

func (g *CoPurchaseGraph) RecordPurchase(ctx context.Context, userID, itemID string) error {
	if g.driver == nil {
		return nil
	}

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	query := `
		MERGE (u:User {user_id: $userId})
		MERGE (i:Item {item_id: $itemId})
		MERGE (u)-[r:PURCHASED]->(i)
		ON CREATE SET r.first_at = datetime(), r.count = 0
		SET r.count = r.count + 1, r.last_at = datetime()`

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, map[string]any{
			"userId": userID,
			"itemId": itemID,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to record purchase: %w", err)
	}

	g.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"item_id": itemID,
	}).Debug("Recorded purchase edge")
	return nil
}
