package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// DB is the subset of pgx operations the Store uses. *pgxpool.Pool satisfies
// it; tests substitute a fake.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store provides persistence for the agent platform's core entities.
// Safe for concurrent use; all state lives in PostgreSQL.
type Store struct {
	db     DB
	dim    int
	logger *slog.Logger
}

// DefaultVectorDim matches the text-embedding-3-small output size the
// platform embeds with. The database column is declared with the same width.
const DefaultVectorDim = 1536

// New creates a Store over db. dim is the expected embedding width
// (0 = DefaultVectorDim). A nil logger falls back to slog.Default.
func New(db DB, dim int, logger *slog.Logger) *Store {
	if dim <= 0 {
		dim = DefaultVectorDim
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, dim: dim, logger: logger}
}

// CreateUser inserts a new user.
func (s *Store) CreateUser(ctx context.Context, username, email string) (User, error) {
	u := User{ID: uuid.New(), Username: username, Email: email}
	err := s.db.QueryRow(ctx,
		`INSERT INTO users (id, username, email) VALUES ($1, $2, $3) RETURNING created_at`,
		u.ID, u.Username, u.Email,
	).Scan(&u.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("creating user %q: %w", username, err)
	}
	return u, nil
}

// CreateAgent inserts a new agent. Zero-value Type and Visibility default to
// conversational and public, matching the platform's creation flow.
func (s *Store) CreateAgent(ctx context.Context, a Agent) (Agent, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Type == "" {
		a.Type = AgentConversational
	}
	if a.Visibility == "" {
		a.Visibility = VisibilityPublic
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO agents (id, user_id, name, context, type, visibility, finetuned_model_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`,
		a.ID, a.UserID, a.Name, a.Context, a.Type, a.Visibility, a.FinetunedModelID,
	).Scan(&a.CreatedAt)
	if err != nil {
		return Agent{}, fmt.Errorf("creating agent %q: %w", a.Name, err)
	}
	return a, nil
}

// GetAgent retrieves an agent by ID. Returns ErrNotFound when absent.
func (s *Store) GetAgent(ctx context.Context, id uuid.UUID) (Agent, error) {
	var a Agent
	err := s.db.QueryRow(ctx,
		`SELECT id, user_id, name, context, type, visibility, finetuned_model_id, created_at
		 FROM agents WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.UserID, &a.Name, &a.Context, &a.Type, &a.Visibility, &a.FinetunedModelID, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Agent{}, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Agent{}, fmt.Errorf("getting agent %s: %w", id, err)
	}
	return a, nil
}

// CreateDocument inserts a new document row. Chunks are added separately by
// the ingestion path via CreateChunks.
func (s *Store) CreateDocument(ctx context.Context, d Document) (Document, error) {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO documents (id, user_id, agent_id, filename, content)
		 VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		d.ID, d.UserID, d.AgentID, d.Filename, d.Content,
	).Scan(&d.CreatedAt)
	if err != nil {
		return Document{}, fmt.Errorf("creating document %q: %w", d.Filename, err)
	}
	return d, nil
}

// DeleteDocument removes a document owned by userID. Chunks are released by
// the ON DELETE CASCADE constraint; no orphaned vectors remain.
func (s *Store) DeleteDocument(ctx context.Context, docID, userID uuid.UUID) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM documents WHERE id = $1 AND user_id = $2`, docID, userID)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", docID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s: %w", docID, ErrNotFound)
	}
	s.logger.Debug("deleted document", "document_id", docID)
	return nil
}

// CreateChunks batch-inserts chunks for a document. Indices are assigned
// 0-based in slice order, keeping them contiguous per document. Chunks with
// a nil embedding are stored vectorless and stay out of ranking until a
// backfill pass embeds them.
func (s *Store) CreateChunks(ctx context.Context, docID uuid.UUID, chunks []Chunk) ([]Chunk, error) {
	out := make([]Chunk, 0, len(chunks))
	for i, c := range chunks {
		if strings.TrimSpace(c.Text) == "" {
			return nil, fmt.Errorf("chunk %d of document %s: %w", i, docID, ErrEmptyChunk)
		}
		vec, err := s.toVector(c.Embedding)
		if err != nil {
			return nil, fmt.Errorf("chunk %d of document %s: %w", i, docID, err)
		}

		c.ID = uuid.New()
		c.DocumentID = docID
		c.Index = int32(i)
		err = s.db.QueryRow(ctx,
			`INSERT INTO document_chunks (id, document_id, chunk_index, chunk_text, embedding)
			 VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
			c.ID, c.DocumentID, c.Index, c.Text, vec,
		).Scan(&c.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("inserting chunk %d of document %s: %w", i, docID, err)
		}
		out = append(out, c)
	}
	s.logger.Debug("created chunks", "document_id", docID, "count", len(out))
	return out, nil
}

// ListDocumentChunks returns all chunks of a document ordered by index.
// Used by the context assembler for neighbor expansion.
func (s *Store) ListDocumentChunks(ctx context.Context, docID uuid.UUID) ([]Chunk, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, document_id, chunk_index, chunk_text, embedding, created_at
		 FROM document_chunks WHERE document_id = $1 ORDER BY chunk_index`,
		docID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing chunks of document %s: %w", docID, err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// ListChunksInScope returns every chunk reachable under the given scope,
// vectorless ones included (the ranker skips those). Results are ordered by
// document then chunk index, so ranking ties break deterministically.
func (s *Store) ListChunksInScope(ctx context.Context, scope Scope) ([]ChunkWithDocument, error) {
	var sb strings.Builder
	sb.WriteString(
		`SELECT c.id, c.document_id, c.chunk_index, c.chunk_text, c.embedding, c.created_at,
		        d.id, d.user_id, d.agent_id, d.filename, d.created_at
		 FROM document_chunks c
		 JOIN documents d ON d.id = c.document_id
		 WHERE `)

	args := make([]any, 0, 2)
	if scope.AgentID != nil {
		sb.WriteString(`d.agent_id = $1`)
		args = append(args, *scope.AgentID)
	} else {
		sb.WriteString(`d.user_id = $1`)
		args = append(args, scope.UserID)
	}
	if len(scope.DocumentIDs) > 0 {
		sb.WriteString(` AND d.id = ANY($2)`)
		args = append(args, scope.DocumentIDs)
	}
	sb.WriteString(` ORDER BY d.id, c.chunk_index`)

	rows, err := s.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("listing chunks in scope: %w", err)
	}
	defer rows.Close()

	var out []ChunkWithDocument
	for rows.Next() {
		var (
			cwd ChunkWithDocument
			vec *pgvector.Vector
		)
		err := rows.Scan(
			&cwd.Chunk.ID, &cwd.Chunk.DocumentID, &cwd.Chunk.Index,
			&cwd.Chunk.Text, &vec, &cwd.Chunk.CreatedAt,
			&cwd.Document.ID, &cwd.Document.UserID, &cwd.Document.AgentID,
			&cwd.Document.Filename, &cwd.Document.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning scoped chunk: %w", err)
		}
		if vec != nil {
			cwd.Chunk.Embedding = vec.Slice()
		}
		out = append(out, cwd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scoped chunks: %w", err)
	}
	return out, nil
}

// ListVectorlessChunks returns the chunks of a document that still lack an
// embedding, ordered by index. Feeds the deferred-embedding backfill pass.
func (s *Store) ListVectorlessChunks(ctx context.Context, docID uuid.UUID) ([]Chunk, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, document_id, chunk_index, chunk_text, embedding, created_at
		 FROM document_chunks WHERE document_id = $1 AND embedding IS NULL
		 ORDER BY chunk_index`,
		docID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing vectorless chunks of document %s: %w", docID, err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// SetChunkEmbedding stores the vector for a previously deferred chunk.
func (s *Store) SetChunkEmbedding(ctx context.Context, chunkID uuid.UUID, embedding []float32) error {
	vec, err := s.toVector(embedding)
	if err != nil {
		return fmt.Errorf("chunk %s: %w", chunkID, err)
	}
	if vec == nil {
		return fmt.Errorf("chunk %s: %w", chunkID, ErrDimensionMismatch)
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE document_chunks SET embedding = $2 WHERE id = $1`, chunkID, vec)
	if err != nil {
		return fmt.Errorf("updating embedding of chunk %s: %w", chunkID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chunk %s: %w", chunkID, ErrNotFound)
	}
	return nil
}

// CreateConversation starts a conversation, optionally attached to an agent.
func (s *Store) CreateConversation(ctx context.Context, agentID *uuid.UUID, title string) (Conversation, error) {
	c := Conversation{ID: uuid.New(), AgentID: agentID, Title: title}
	err := s.db.QueryRow(ctx,
		`INSERT INTO conversations (id, agent_id, title) VALUES ($1, $2, $3) RETURNING created_at`,
		c.ID, c.AgentID, c.Title,
	).Scan(&c.CreatedAt)
	if err != nil {
		return Conversation{}, fmt.Errorf("creating conversation: %w", err)
	}
	return c, nil
}

// AddMessage appends a message to a conversation.
func (s *Store) AddMessage(ctx context.Context, m Message) (Message, error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO messages (id, conversation_id, role, content, feedback, buffered)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING timestamp`,
		m.ID, m.ConversationID, m.Role, m.Content, m.Feedback, m.Buffered,
	).Scan(&m.Timestamp)
	if err != nil {
		return Message{}, fmt.Errorf("adding message to conversation %s: %w", m.ConversationID, err)
	}
	return m, nil
}

// SetMessageFeedback records a like/dislike on a message. Liked messages are
// marked buffered so the fine-tuning collector can pick them up later.
func (s *Store) SetMessageFeedback(ctx context.Context, messageID uuid.UUID, fb Feedback) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE messages SET feedback = $2, buffered = $3 WHERE id = $1`,
		messageID, fb, fb == FeedbackLike)
	if err != nil {
		return fmt.Errorf("setting feedback on message %s: %w", messageID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	return nil
}

// LastAgentMessage returns the content of the most recent message in the
// agent's most recent conversation, the agent's short-term memory. Returns
// "" (no error) when the agent has no conversations or messages yet.
func (s *Store) LastAgentMessage(ctx context.Context, agentID uuid.UUID) (string, error) {
	var content string
	err := s.db.QueryRow(ctx,
		`SELECT m.content
		 FROM messages m
		 JOIN conversations c ON c.id = m.conversation_id
		 WHERE c.agent_id = $1
		 ORDER BY c.created_at DESC, m.timestamp DESC
		 LIMIT 1`,
		agentID,
	).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting last message of agent %s: %w", agentID, err)
	}
	return content, nil
}

// toVector validates embedding width and converts to the pgvector codec
// type. A nil or empty embedding maps to a NULL column.
func (s *Store) toVector(embedding []float32) (*pgvector.Vector, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	if len(embedding) != s.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(embedding), s.dim)
	}
	v := pgvector.NewVector(embedding)
	return &v, nil
}

// scanChunks drains rows produced by any chunk SELECT with the canonical
// column order.
func scanChunks(rows pgx.Rows) ([]Chunk, error) {
	var out []Chunk
	for rows.Next() {
		var (
			c   Chunk
			vec *pgvector.Vector
		)
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Text, &vec, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		if vec != nil {
			c.Embedding = vec.Slice()
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return out, nil
}
