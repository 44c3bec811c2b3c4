package models

import "strings"

// Scope controls which project clause a search filter carries.
type Scope string

const (
	ScopeCurrent Scope = "current"
	ScopeProject Scope = "project"
	ScopeGlobal  Scope = "global"
)

func (s Scope) IsValid() bool {
	return s == ScopeCurrent || s == ScopeProject || s == ScopeGlobal
}

// Message is a single conversational turn submitted for storage.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AddRequest is the payload for POST /memories and memory/add.
type AddRequest struct {
	Texts    []string       `json:"texts,omitempty"`
	Content  string         `json:"content,omitempty"`
	Messages []Message      `json:"messages,omitempty"`
	UserID   string         `json:"user_id"`
	Metadata map[string]any `json:"metadata,omitempty"`
	// WorkDir and SessionID override the server's own process context.
	WorkDir   string `json:"work_dir,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// AllTexts returns the texts to store. Messages are joined into one text.
func (r *AddRequest) AllTexts() []string {
	var texts []string
	texts = append(texts, r.Texts...)
	if r.Content != "" {
		texts = append(texts, r.Content)
	}
	if len(r.Messages) > 0 {
		texts = append(texts, JoinMessages(r.Messages))
	}
	return texts
}

// JoinMessages renders messages as "role: content" lines.
func JoinMessages(msgs []Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == "" {
			lines = append(lines, m.Content)
			continue
		}
		lines = append(lines, m.Role+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

// AddResponse is returned from POST /memories.
type AddResponse struct {
	Results []Memory `json:"results"`
}

// SearchRequest is the payload for POST /memories/search and memory/search.
type SearchRequest struct {
	Query     string `json:"query"`
	UserID    string `json:"user_id"`
	Limit     int    `json:"limit"`
	Scope     Scope  `json:"scope"`
	ProjectID string `json:"project_id,omitempty"`
	WorkDir   string `json:"work_dir,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// SearchResponse is returned from POST /memories/search.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

// ListResponse is returned from GET /memories.
type ListResponse struct {
	Results []Memory `json:"results"`
}

// HealthResponse is returned from GET /health.
type HealthResponse struct {
	Status   string                  `json:"status"`
	Services map[string]ServiceCheck `json:"services"`
}

type ServiceCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// UserRequest carries the owner for memory/list and memory/reset.
type UserRequest struct {
	UserID string `json:"user_id"`
}

// DeleteRequest is the payload for memory/delete.
type DeleteRequest struct {
	MemoryID string `json:"memory_id"`
}

// ProjectRequest asks which project context a directory resolves to.
type ProjectRequest struct {
	WorkDir   string `json:"work_dir,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}
