package models

import (
	"encoding/json"
	"time"
)

// DefaultUserID is the owner label used when a caller does not supply one.
const DefaultUserID = "default"

// Payload keys stored alongside each vector point.
const (
	KeyContent     = "content"
	KeyUserID      = "user_id"
	KeyCreatedAt   = "created_at"
	KeyProjectID   = "project_id"
	KeyProjectName = "project_name"
	KeyProjectPath = "project_path"
	KeyGitRepo     = "git_repo"
	KeyGitBranch   = "git_branch"
	KeySessionID   = "session_id"
)

// coreKeys are owned by the Memory itself and never taken from metadata.
var coreKeys = map[string]bool{
	KeyContent:   true,
	KeyUserID:    true,
	KeyCreatedAt: true,
}

// IsReservedKey reports whether key is set by the service rather than taken
// from caller metadata.
func IsReservedKey(key string) bool {
	switch key {
	case KeyContent, KeyUserID, KeyCreatedAt,
		KeyProjectID, KeyProjectName, KeyProjectPath,
		KeyGitRepo, KeyGitBranch, KeySessionID:
		return true
	}
	return false
}

// Memory is a stored unit of text with its embedding and metadata.
type Memory struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	UserID    string    `json:"user_id"`
	CreatedAt string    `json:"created_at"`
	Metadata  Metadata  `json:"metadata"`
	Vector    []float32 `json:"-"`
}

// SearchResult is a Memory scored against a query. Higher is more relevant.
type SearchResult struct {
	Memory
	Score float64 `json:"score"`
}

// Metadata carries the well-known project/session fields plus an open map of
// caller-supplied values. Well-known fields always win over Extra.
type Metadata struct {
	ProjectID   string
	ProjectName string
	ProjectPath string
	GitRepo     string
	GitBranch   string
	SessionID   string
	Extra       map[string]any
}

// Fields flattens the metadata into a single map. Extra is written first and
// the well-known fields are written over it.
func (m Metadata) Fields() map[string]any {
	out := make(map[string]any, len(m.Extra)+6)
	for k, v := range m.Extra {
		if coreKeys[k] {
			continue
		}
		out[k] = v
	}
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	set(KeyProjectID, m.ProjectID)
	set(KeyProjectName, m.ProjectName)
	set(KeyProjectPath, m.ProjectPath)
	set(KeyGitRepo, m.GitRepo)
	set(KeyGitBranch, m.GitBranch)
	set(KeySessionID, m.SessionID)
	return out
}

// MetadataFromFields is the inverse of Fields. Core memory keys are ignored.
func MetadataFromFields(fields map[string]any) Metadata {
	var m Metadata
	for k, v := range fields {
		if coreKeys[k] {
			continue
		}
		s, isString := v.(string)
		switch {
		case k == KeyProjectID && isString:
			m.ProjectID = s
		case k == KeyProjectName && isString:
			m.ProjectName = s
		case k == KeyProjectPath && isString:
			m.ProjectPath = s
		case k == KeyGitRepo && isString:
			m.GitRepo = s
		case k == KeyGitBranch && isString:
			m.GitBranch = s
		case k == KeySessionID && isString:
			m.SessionID = s
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]any)
			}
			m.Extra[k] = v
		}
	}
	return m
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Fields())
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	*m = MetadataFromFields(fields)
	return nil
}

// Payload returns the flat vector-index payload for the memory: every field
// except the id and the vector.
func (m *Memory) Payload() map[string]any {
	p := m.Metadata.Fields()
	p[KeyContent] = m.Content
	p[KeyUserID] = m.UserID
	p[KeyCreatedAt] = m.CreatedAt
	return p
}

// MemoryFromPayload rebuilds a Memory from a stored point.
func MemoryFromPayload(id string, payload map[string]any) Memory {
	str := func(k string) string {
		s, _ := payload[k].(string)
		return s
	}
	return Memory{
		ID:        id,
		Content:   str(KeyContent),
		UserID:    str(KeyUserID),
		CreatedAt: str(KeyCreatedAt),
		Metadata:  MetadataFromFields(payload),
	}
}

// Timestamp formats t the way created_at is stored.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
