package domain

import (
	"strings"
	"time"
)

// Tag is the coarse access partition of a memory record.
type Tag string

const (
	TagPrivate  Tag = "P"
	TagBusiness Tag = "B"
	TagBoth     Tag = "PB"
)

// ParseTag accepts the short wire form (P, B, PB) and the long names.
func ParseTag(s string) (Tag, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "P", "PRIVATE":
		return TagPrivate, nil
	case "B", "BUSINESS":
		return TagBusiness, nil
	case "PB", "BOTH":
		return TagBoth, nil
	}
	return "", Invalid("invalid tag", "tag", s)
}

// Validate checks if the tag is one of the known partitions.
func (t Tag) Validate() error {
	switch t {
	case TagPrivate, TagBusiness, TagBoth:
		return nil
	}
	return Invalid("invalid tag", "tag", string(t))
}

// Kind tells which modality produced a record.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// MemoryRecord is one embedded unit as it is stored in a collection.
type MemoryRecord struct {
	ID         string
	Vector     []float32
	Text       string
	Filename   string
	Tag        Tag
	Project    string
	ChunkIndex int
	Kind       Kind
}

// Payload keys used on the wire. Text chunks carry "chunk", image
// descriptions carry "summary".
const (
	PayloadChunk      = "chunk"
	PayloadSummary    = "summary"
	PayloadFilename   = "filename"
	PayloadTag        = "tag"
	PayloadProject    = "project"
	PayloadChunkIndex = "chunk_index"
	PayloadKind       = "kind"
)

// Payload renders the record metadata stored next to the vector.
func (r MemoryRecord) Payload() map[string]any {
	p := map[string]any{
		PayloadFilename:   r.Filename,
		PayloadTag:        string(r.Tag),
		PayloadChunkIndex: r.ChunkIndex,
		PayloadKind:       string(r.Kind),
	}
	if r.Kind == KindImage {
		p[PayloadSummary] = r.Text
	} else {
		p[PayloadChunk] = r.Text
	}
	if r.Project != "" {
		p[PayloadProject] = r.Project
	}
	return p
}

// Point is a vector plus its payload, the unit exchanged with vector stores.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Hit is a scored point returned by a similarity query or a scroll.
type Hit struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// Text returns the record text, preferring the chunk over the summary.
func (h Hit) Text() string {
	if s, ok := h.Payload[PayloadChunk].(string); ok && s != "" {
		return s
	}
	s, _ := h.Payload[PayloadSummary].(string)
	return s
}

// String returns the payload value for key or "" if absent.
func (h Hit) String(key string) string {
	s, _ := h.Payload[key].(string)
	return s
}

// Filter holds optional equality constraints ANDed into a query.
// Tags is matched with "any of" semantics.
type Filter struct {
	Tags    []Tag
	Project string
}

// IsZero reports whether the filter constrains nothing.
func (f Filter) IsZero() bool { return len(f.Tags) == 0 && f.Project == "" }

// Match evaluates the filter against a payload.
func (f Filter) Match(payload map[string]any) bool {
	if f.Project != "" {
		if p, _ := payload[PayloadProject].(string); p != f.Project {
			return false
		}
	}
	if len(f.Tags) > 0 {
		t, _ := payload[PayloadTag].(string)
		for _, want := range f.Tags {
			if string(want) == t {
				return true
			}
		}
		return false
	}
	return true
}

// Distance is the similarity metric of a collection.
type Distance string

const (
	DistanceCosine Distance = "Cosine"
	DistanceDot    Distance = "Dot"
	DistanceEuclid Distance = "Euclid"
)

// ParseDistance maps config spellings to a Distance. Empty means cosine.
func ParseDistance(s string) (Distance, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cosine":
		return DistanceCosine, nil
	case "dot":
		return DistanceDot, nil
	case "euclid", "euclidean":
		return DistanceEuclid, nil
	}
	return "", Invalid("unknown distance", "distance", s)
}

// CollectionInfo describes a provisioned collection.
type CollectionInfo struct {
	Name      string
	Dimension int
	Distance  Distance
}

// Query is a retrieval request.
type Query struct {
	Text      string
	Filter    Filter
	TopK      int
	Threshold float64
}

// RetrievalResult is one ranked, provenance-carrying hit.
type RetrievalResult struct {
	Score      float64
	Text       string
	Filename   string
	Tag        string
	Collection string
	Project    string
	Fallback   bool
}

// Role of a chat turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a chat history.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// ChatSession is a persisted conversation.
type ChatSession struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Project     *string   `json:"project"`
	History     []Turn    `json:"history"`
	LastUpdated time.Time `json:"last_updated"`
}

// ProjectName returns the project or "" when the session has none.
func (s *ChatSession) ProjectName() string {
	if s.Project == nil {
		return ""
	}
	return *s.Project
}

// SetProjectName sets or clears the project.
func (s *ChatSession) SetProjectName(p string) {
	if p == "" {
		s.Project = nil
		return
	}
	s.Project = &p
}

// Append adds turns to the end of the history.
func (s *ChatSession) Append(turns ...Turn) {
	s.History = append(s.History, turns...)
}

// Message is the role/content pair sent to an inference service.
type Message struct {
	Role    Role
	Content string
}
