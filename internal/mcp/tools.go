package mcp

var (
	userIDProp  = Property{Type: "string", Description: "Owner of the memories (default \"default\")"}
	workDirProp = Property{Type: "string", Description: "Project directory; defaults to the server's working directory"}
)

// ToolDefinitions returns the MCP tool definitions for the memory server.
func ToolDefinitions() []ToolDefinition {
	return []ToolDefinition{
		{
			Name: "memory_add",
			Description: "Store one or more memories for the current project. " +
				"Each text becomes its own memory tagged with the project, git branch and session. " +
				"Wrap secrets in <private>...</private>; those parts are never stored.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"content": {Type: "string", Description: "A single memory to store"},
					"texts": {Type: "array", Description: "Several memories to store in one call",
						Items: &Items{Type: "string"}},
					"messages": {Type: "array", Description: "Conversation turns ({role, content}) stored as one memory",
						Items: &Items{Type: "object"}},
					"user_id":  userIDProp,
					"metadata": {Type: "object", Description: "Extra key/value pairs kept with the memory"},
					"work_dir": workDirProp,
				},
			},
		},
		{
			Name: "memory_search",
			Description: "Semantic search over stored memories. Scope \"current\" searches this project, " +
				"\"project\" searches the project given by project_id, \"global\" searches every project. " +
				"An empty query lists memories in scope.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"query":   {Type: "string", Description: "Natural language search query"},
					"user_id": userIDProp,
					"limit": {Type: "number", Description: "Maximum results to return (default 5, max 50)",
						Default: 5},
					"scope": {Type: "string", Description: "Search scope",
						Enum: []string{"current", "project", "global"}, Default: "current"},
					"project_id": {Type: "string", Description: "Project id for scope \"project\""},
					"work_dir":   workDirProp,
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        "memory_list",
			Description: "List up to 100 memories for a user across all projects.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"user_id": userIDProp,
				},
			},
		},
		{
			Name:        "memory_delete",
			Description: "Delete a memory by id. Deleting an unknown id succeeds.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"memory_id": {Type: "string", Description: "ID of the memory to delete"},
				},
				Required: []string{"memory_id"},
			},
		},
		{
			Name:        "memory_reset",
			Description: "Delete every memory of a user in every project. This cannot be undone.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"user_id": userIDProp,
				},
			},
		},
		{
			Name:        "memory_project",
			Description: "Show the project context (id, name, path, git remote and branch, session) new memories are tagged with.",
			InputSchema: InputSchema{
				Type: "object",
				Properties: map[string]Property{
					"work_dir": workDirProp,
				},
			},
		},
	}
}
