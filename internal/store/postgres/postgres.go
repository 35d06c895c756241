// Package postgres is the durable Store backed by postgres via the pgx
// stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/fennec-ai/fennec/internal/store"
)

type PostgresStore struct {
	db *sql.DB
}

var openDB = sql.Open

func New(conn string) (*PostgresStore, error) {
	db, err := openDB("pgx", conn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := verifySchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func verifySchema(ctx context.Context, db *sql.DB) error {
	required := []string{
		"chats",
		"messages",
		"chat_events",
		"chat_event_sequences",
		"searches",
		"llm_settings",
		"search_settings",
	}
	for _, table := range required {
		var regclass sql.NullString
		if err := db.QueryRowContext(ctx, "SELECT to_regclass($1)", fmt.Sprintf("public.%s", table)).Scan(&regclass); err != nil {
			return err
		}
		if !regclass.Valid {
			return fmt.Errorf("database schema missing: %s table not found (run infra/migrations/001_init.sql)", table)
		}
	}
	return nil
}

func (p *PostgresStore) CreateChat(ctx context.Context, chat store.Chat) error {
	status := strings.TrimSpace(chat.Status)
	if status == "" {
		status = store.StatusRunning
	}
	const query = `
		INSERT INTO chats (id, status, title, model, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := p.db.ExecContext(
		ctx,
		query,
		chat.ID,
		status,
		chat.Title,
		nullString(chat.Model),
		chat.CreatedAt,
		chat.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) GetChat(ctx context.Context, chatID string) (*store.Chat, error) {
	const query = `
		SELECT id, status, title, model, created_at, updated_at
		FROM chats
		WHERE id = $1
	`
	var createdAt time.Time
	var updatedAt time.Time
	var model sql.NullString
	chat := store.Chat{}
	if err := p.db.QueryRowContext(ctx, query, chatID).Scan(
		&chat.ID,
		&chat.Status,
		&chat.Title,
		&model,
		&createdAt,
		&updatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if model.Valid {
		chat.Model = model.String
	}
	chat.CreatedAt = createdAt.UTC().Format(time.RFC3339Nano)
	chat.UpdatedAt = updatedAt.UTC().Format(time.RFC3339Nano)
	return &chat, nil
}

func (p *PostgresStore) ListChats(ctx context.Context) ([]store.ChatSummary, error) {
	const query = `
		SELECT
			c.id,
			c.status,
			COALESCE(NULLIF(c.title, ''), first_message.content, '') AS title,
			c.model,
			c.created_at,
			COALESCE(latest.timestamp, c.updated_at) AS updated_at,
			COUNT(m.id) AS message_count
		FROM chats c
		LEFT JOIN LATERAL (
			SELECT timestamp
			FROM chat_events
			WHERE chat_id = c.id
			ORDER BY seq DESC
			LIMIT 1
		) latest ON true
		LEFT JOIN LATERAL (
			SELECT content
			FROM messages
			WHERE chat_id = c.id AND role = 'user'
			ORDER BY sequence ASC
			LIMIT 1
		) first_message ON true
		LEFT JOIN messages m ON m.chat_id = c.id
		GROUP BY c.id, c.status, c.title, c.model, c.created_at, c.updated_at, latest.timestamp, first_message.content
		ORDER BY COALESCE(latest.timestamp, c.updated_at) DESC
	`
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []store.ChatSummary{}
	for rows.Next() {
		var createdAt time.Time
		var updatedAt time.Time
		var model sql.NullString
		var summary store.ChatSummary
		if err := rows.Scan(
			&summary.ID,
			&summary.Status,
			&summary.Title,
			&model,
			&createdAt,
			&updatedAt,
			&summary.MessageCount,
		); err != nil {
			return nil, err
		}
		if model.Valid {
			summary.Model = model.String
		}
		summary.CreatedAt = createdAt.UTC().Format(time.RFC3339Nano)
		summary.UpdatedAt = updatedAt.UTC().Format(time.RFC3339Nano)
		results = append(results, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *PostgresStore) DeleteChat(ctx context.Context, chatID string) error {
	_, err := p.db.ExecContext(ctx, "DELETE FROM chats WHERE id = $1", chatID)
	return err
}

func (p *PostgresStore) AddMessage(ctx context.Context, msg store.Message) error {
	metadata := msg.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO messages (id, chat_id, role, content, tool_call_id, tool_name, sequence, created_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = p.db.ExecContext(
		ctx,
		query,
		msg.ID,
		msg.ChatID,
		msg.Role,
		msg.Content,
		nullString(msg.ToolCallID),
		nullString(msg.ToolName),
		msg.Sequence,
		msg.CreatedAt,
		encoded,
	)
	return err
}

func (p *PostgresStore) ListMessages(ctx context.Context, chatID string) ([]store.Message, error) {
	const query = `
		SELECT id, chat_id, role, content, tool_call_id, tool_name, sequence, created_at, metadata
		FROM messages
		WHERE chat_id = $1
		ORDER BY sequence ASC
	`
	rows, err := p.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []store.Message{}
	for rows.Next() {
		var createdAt time.Time
		var toolCallID sql.NullString
		var toolName sql.NullString
		var metadataBytes []byte
		var msg store.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.ChatID,
			&msg.Role,
			&msg.Content,
			&toolCallID,
			&toolName,
			&msg.Sequence,
			&createdAt,
			&metadataBytes,
		); err != nil {
			return nil, err
		}
		if toolCallID.Valid {
			msg.ToolCallID = toolCallID.String
		}
		if toolName.Valid {
			msg.ToolName = toolName.String
		}
		msg.CreatedAt = createdAt.UTC().Format(time.RFC3339Nano)
		if len(metadataBytes) > 0 {
			metadata := map[string]any{}
			if err := json.Unmarshal(metadataBytes, &metadata); err != nil {
				return nil, err
			}
			msg.Metadata = metadata
		} else {
			msg.Metadata = map[string]any{}
		}
		results = append(results, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *PostgresStore) AppendEvent(ctx context.Context, event store.ChatEvent) error {
	event.Type = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(event.Type)), "_", ".")
	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	timestamp := event.Timestamp
	if timestamp == "" {
		timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	timestampValue := parseTimestampValue(timestamp)
	traceID := strings.TrimSpace(event.TraceID)
	var traceIDValue any
	if traceID == "" {
		traceIDValue = nil
	} else if _, err := uuid.Parse(traceID); err != nil {
		traceIDValue = nil
	} else {
		traceIDValue = traceID
	}
	const query = `
		INSERT INTO chat_events (chat_id, seq, type, timestamp, source, trace_id, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, query, event.ChatID, event.Seq, event.Type, timestampValue, event.Source, traceIDValue, encoded); err != nil {
		return err
	}
	if err = applyChatStateUpdateTx(ctx, tx, event); err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

func (p *PostgresStore) ListEvents(ctx context.Context, chatID string, afterSeq int64) ([]store.ChatEvent, error) {
	const query = `
		SELECT chat_id, seq, type, timestamp, source, trace_id, payload
		FROM chat_events
		WHERE chat_id = $1 AND seq > $2
		ORDER BY seq ASC
	`
	rows, err := p.db.QueryContext(ctx, query, chatID, afterSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []store.ChatEvent{}
	for rows.Next() {
		var payloadBytes []byte
		var timestamp time.Time
		var traceID sql.NullString
		var event store.ChatEvent
		if err := rows.Scan(&event.ChatID, &event.Seq, &event.Type, &timestamp, &event.Source, &traceID, &payloadBytes); err != nil {
			return nil, err
		}
		event.Timestamp = timestamp.UTC().Format(time.RFC3339Nano)
		if traceID.Valid {
			event.TraceID = traceID.String
		}
		if len(payloadBytes) > 0 {
			payload := map[string]any{}
			if err := json.Unmarshal(payloadBytes, &payload); err != nil {
				return nil, err
			}
			event.Payload = payload
		} else {
			event.Payload = map[string]any{}
		}
		results = append(results, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *PostgresStore) NextSeq(ctx context.Context, chatID string) (int64, error) {
	const query = `
		INSERT INTO chat_event_sequences (chat_id, last_seq)
		VALUES ($1, 1)
		ON CONFLICT (chat_id)
		DO UPDATE SET last_seq = chat_event_sequences.last_seq + 1
		RETURNING last_seq
	`
	var seq int64
	if err := p.db.QueryRowContext(ctx, query, chatID).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func (p *PostgresStore) AddSearch(ctx context.Context, record store.SearchRecord) error {
	results := record.Results
	if results == nil {
		results = []store.SearchResult{}
	}
	encoded, err := json.Marshal(results)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO searches (id, chat_id, query, results, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = p.db.ExecContext(
		ctx,
		query,
		record.ID,
		record.ChatID,
		record.Query,
		encoded,
		nullString(record.Error),
		record.CreatedAt,
	)
	return err
}

func (p *PostgresStore) ListSearches(ctx context.Context, chatID string) ([]store.SearchRecord, error) {
	const query = `
		SELECT id, chat_id, query, results, error, created_at
		FROM searches
		WHERE chat_id = $1
		ORDER BY created_at ASC
	`
	rows, err := p.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []store.SearchRecord{}
	for rows.Next() {
		var createdAt time.Time
		var resultsBytes []byte
		var searchErr sql.NullString
		var record store.SearchRecord
		if err := rows.Scan(&record.ID, &record.ChatID, &record.Query, &resultsBytes, &searchErr, &createdAt); err != nil {
			return nil, err
		}
		if searchErr.Valid {
			record.Error = searchErr.String
		}
		record.CreatedAt = createdAt.UTC().Format(time.RFC3339Nano)
		if len(resultsBytes) > 0 {
			decoded := []store.SearchResult{}
			if err := json.Unmarshal(resultsBytes, &decoded); err != nil {
				return nil, err
			}
			record.Results = decoded
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *PostgresStore) GetLLMSettings(ctx context.Context) (*store.LLMSettings, error) {
	const query = `
		SELECT provider, model, base_url, api_key_enc, created_at, updated_at
		FROM llm_settings
		WHERE id = 1
	`
	var createdAt time.Time
	var updatedAt time.Time
	settings := store.LLMSettings{}
	if err := p.db.QueryRowContext(ctx, query).Scan(
		&settings.Provider,
		&settings.Model,
		&settings.BaseURL,
		&settings.APIKeyEnc,
		&createdAt,
		&updatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	settings.CreatedAt = createdAt.UTC().Format(time.RFC3339Nano)
	settings.UpdatedAt = updatedAt.UTC().Format(time.RFC3339Nano)
	return &settings, nil
}

func (p *PostgresStore) UpsertLLMSettings(ctx context.Context, settings store.LLMSettings) error {
	const query = `
		INSERT INTO llm_settings (id, provider, model, base_url, api_key_enc, created_at, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id)
		DO UPDATE SET
			provider = EXCLUDED.provider,
			model = EXCLUDED.model,
			base_url = EXCLUDED.base_url,
			api_key_enc = EXCLUDED.api_key_enc,
			updated_at = EXCLUDED.updated_at
	`
	_, err := p.db.ExecContext(
		ctx,
		query,
		settings.Provider,
		settings.Model,
		settings.BaseURL,
		settings.APIKeyEnc,
		settings.CreatedAt,
		settings.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) GetSearchSettings(ctx context.Context) (*store.SearchSettings, error) {
	const query = `
		SELECT enabled, max_results, created_at, updated_at
		FROM search_settings
		WHERE id = 1
	`
	var createdAt time.Time
	var updatedAt time.Time
	settings := store.SearchSettings{}
	if err := p.db.QueryRowContext(ctx, query).Scan(
		&settings.Enabled,
		&settings.MaxResults,
		&createdAt,
		&updatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	settings.CreatedAt = createdAt.UTC().Format(time.RFC3339Nano)
	settings.UpdatedAt = updatedAt.UTC().Format(time.RFC3339Nano)
	return &settings, nil
}

func (p *PostgresStore) UpsertSearchSettings(ctx context.Context, settings store.SearchSettings) error {
	const query = `
		INSERT INTO search_settings (id, enabled, max_results, created_at, updated_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id)
		DO UPDATE SET
			enabled = EXCLUDED.enabled,
			max_results = EXCLUDED.max_results,
			updated_at = EXCLUDED.updated_at
	`
	_, err := p.db.ExecContext(
		ctx,
		query,
		settings.Enabled,
		settings.MaxResults,
		settings.CreatedAt,
		settings.UpdatedAt,
	)
	return err
}

func applyChatStateUpdateTx(ctx context.Context, tx *sql.Tx, event store.ChatEvent) error {
	eventType := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(event.Type)), "_", ".")
	if eventType == "" {
		return nil
	}
	status := ""
	title := ""

	switch eventType {
	case "chat.started":
		status = store.StatusRunning
	case "answer.started":
		status = store.StatusThinking
	case "message.assistant":
		status = store.StatusRunning
	case "chat.failed":
		status = store.StatusFailed
	case "chat.cancelled":
		status = store.StatusCancelled
	case "chat.title.updated":
		title = readPayloadString(event.Payload, "title")
	default:
		return nil
	}

	const query = `
		UPDATE chats
		SET
			status = COALESCE(NULLIF($2, ''), status),
			title = COALESCE(NULLIF($3, ''), title),
			updated_at = $4
		WHERE id = $1
	`
	_, err := tx.ExecContext(
		ctx,
		query,
		event.ChatID,
		status,
		title,
		parseTimestampValue(event.Timestamp),
	)
	return err
}

func parseTimestampValue(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(value))
	if err != nil {
		return time.Now().UTC()
	}
	return parsed.UTC()
}

func nullString(value string) any {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return value
}

func readPayloadString(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	raw, ok := payload[key]
	if !ok {
		return ""
	}
	value, ok := raw.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}
