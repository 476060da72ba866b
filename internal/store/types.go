// Package store persists documents, chunks, agents and conversations in
// PostgreSQL and exposes the narrow read surface the retrieval engine needs.
//
// Responsibilities: schema-level invariants (chunk indices contiguous per
// document, deletes cascading to chunks) and scope-filtered chunk listing.
// Ranking itself happens in process, in internal/retrieval.
package store

import (
	"time"

	"github.com/google/uuid"
)

// AgentType tags an agent with its provider routing policy.
type AgentType string

// Valid agent types.
const (
	AgentConversational AgentType = "conversational"
	AgentActionable     AgentType = "actionable"
	AgentLiveSearch     AgentType = "live-search"
)

// Visibility controls whether an agent is reachable outside its owner.
type Visibility string

// Valid visibility values.
const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Role identifies the author of a conversation message.
type Role string

// Valid message roles.
const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Feedback is an optional user rating on a message.
type Feedback string

// Valid feedback values. FeedbackNone is the zero value.
const (
	FeedbackNone    Feedback = ""
	FeedbackLike    Feedback = "like"
	FeedbackDislike Feedback = "dislike"
)

// User owns documents and agents.
type User struct {
	ID        uuid.UUID
	Username  string
	Email     string
	CreatedAt time.Time
}

// Agent is a configurable chat persona. Context is injected as the system
// prompt; FinetunedModelID, when set, overrides the default completion model.
type Agent struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	Name             string
	Context          string
	Type             AgentType
	Visibility       Visibility
	FinetunedModelID *string
	CreatedAt        time.Time
}

// Document is an uploaded text source. AgentID is set when the document is
// attached to a specific agent rather than just its owner.
type Document struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	AgentID   *uuid.UUID
	Filename  string
	Content   string
	CreatedAt time.Time
}

// Chunk is one bounded slice of a document's text. Index is 0-based and
// contiguous within the document. A nil Embedding marks the chunk as not yet
// searchable; it is excluded from ranking until a backfill pass embeds it.
type Chunk struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	Index      int32
	Text       string
	Embedding  []float32
	CreatedAt  time.Time
}

// Embedded reports whether the chunk carries a vector and can be ranked.
func (c Chunk) Embedded() bool { return len(c.Embedding) > 0 }

// Conversation groups an ordered message sequence under an agent.
type Conversation struct {
	ID        uuid.UUID
	AgentID   *uuid.UUID
	Title     string
	CreatedAt time.Time
}

// Message is a single conversation turn. Buffered marks it as a candidate
// for later fine-tuning collection.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Role           Role
	Content        string
	Timestamp      time.Time
	Feedback       Feedback
	Buffered       bool
}

// Scope narrows which documents a search may read.
//
// When AgentID is set, only documents attached to that agent qualify;
// otherwise all documents owned by UserID qualify. A non-empty DocumentIDs
// allow-list is ANDed on top of either filter.
type Scope struct {
	UserID      uuid.UUID
	AgentID     *uuid.UUID
	DocumentIDs []uuid.UUID
}

// ChunkWithDocument pairs a chunk with its parent document, as returned by
// scope-filtered listing.
type ChunkWithDocument struct {
	Chunk    Chunk
	Document Document
}
