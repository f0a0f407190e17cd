package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ============================================================================
// Conversation Operations
// ============================================================================

// LogMessage records a chat message against the user as an audit trail
func (r *Repository) LogMessage(ctx context.Context, userID, role, content, intent string) error {
	session := r.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	now := time.Now().UTC().Format(time.RFC3339Nano)

	query := `
		MERGE (u:User {id: $userID})
		ON CREATE SET u.first_seen = datetime($now)
		SET u.last_seen = datetime($now)
		CREATE (m:Message {
			id: $msgID,
			content: $content,
			role: $role,
			intent: $intent,
			timestamp: datetime($now)
		})
		WITH m, u
		FOREACH (ignored IN CASE WHEN $role = 'user' THEN [1] ELSE [] END |
			MERGE (u)-[:SENT]->(m)
		)
		FOREACH (ignored IN CASE WHEN $role <> 'user' THEN [1] ELSE [] END |
			MERGE (m)-[:SENT_TO]->(u)
		)
	`

	_, err := session.Run(ctx, query, map[string]interface{}{
		"userID":  userID,
		"msgID":   uuid.New().String(),
		"content": content,
		"role":    role,
		"intent":  intent,
		"now":     now,
	})
	if err != nil {
		return fmt.Errorf("failed to log message: %w", err)
	}

	return nil
}

// GetConversationHistory retrieves a user's recent messages, oldest first
func (r *Repository) GetConversationHistory(ctx context.Context, userID string, limit int) ([]Message, error) {
	session := r.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	if limit < 1 {
		limit = 20
	}

	query := `
		MATCH (u:User {id: $userID})
		MATCH (m:Message)
		WHERE (u)-[:SENT]->(m) OR (m)-[:SENT_TO]->(u)
		RETURN m.id as id, m.content as content, m.role as role,
		       m.intent as intent, m.timestamp as timestamp
		ORDER BY m.timestamp DESC
		LIMIT $limit
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"userID": userID,
		"limit":  int64(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}

	var messages []Message
	for result.Next(ctx) {
		record := result.Record()
		messages = append(messages, Message{
			ID:        getStringFromRecord(record, "id"),
			Content:   getStringFromRecord(record, "content"),
			Role:      getStringFromRecord(record, "role"),
			Intent:    getStringFromRecord(record, "intent"),
			Timestamp: getTimeFromRecord(record, "timestamp"),
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	// Reverse to chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}
