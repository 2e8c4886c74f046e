package schema

////////////////////////////////////////////////////////////////////////////
// TYPES

// ClientInfo / ServerInfo are the implementation identity exchanged during
// initialize.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ElicitationCapability advertises client-side elicitation support
// (spec.md §6): {elicitation:{form:{schema_validation:bool}, url?}}.
type ElicitationCapability struct {
	Form struct {
		SchemaValidation bool `json:"schema_validation"`
	} `json:"form"`
	URL string `json:"url,omitempty"`
}

// ClientCapabilities is what a client advertises in initialize.
type ClientCapabilities struct {
	Sampling     map[string]any         `json:"sampling,omitempty"`
	Elicitation  *ElicitationCapability `json:"elicitation,omitempty"`
	Roots        map[string]any         `json:"roots,omitempty"`
	Experimental map[string]any         `json:"experimental,omitempty"`
}

// ServerCapabilities is what a server advertises in its initialize result.
type ServerCapabilities struct {
	Tools        map[string]any `json:"tools,omitempty"`
	Resources    map[string]any `json:"resources,omitempty"`
	Prompts      map[string]any `json:"prompts,omitempty"`
	Logging      map[string]any `json:"logging,omitempty"`
	Completions  map[string]any `json:"completions,omitempty"`
	Experimental map[string]any `json:"experimental,omitempty"`
}

type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      ClientInfo         `json:"clientInfo"`
}

type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ServerInfo         `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

////////////////////////////////////////////////////////////////////////////
// PROGRESS / CANCELLATION / LOGGING NOTIFICATIONS

type ProgressParams struct {
	ProgressToken string  `json:"progressToken"`
	Progress      float64 `json:"progress"`
	Total         float64 `json:"total,omitempty"`
	Message       string  `json:"message,omitempty"`
}

type CancelledParams struct {
	RequestID *ID    `json:"requestId"`
	Reason    string `json:"reason,omitempty"`
}

type LoggingMessageParams struct {
	Level  string `json:"level"`
	Logger string `json:"logger,omitempty"`
	Data   any    `json:"data"`
}

////////////////////////////////////////////////////////////////////////////
// METHOD NAMES (spec.md §6)

const (
	MethodInitialize             = "initialize"
	MethodPing                   = "ping"
	MethodListTools               = "tools/list"
	MethodCallTool                = "tools/call"
	MethodListResources           = "resources/list"
	MethodReadResource            = "resources/read"
	MethodListResourceTemplates   = "resources/templates/list"
	MethodSubscribe               = "resources/subscribe"
	MethodUnsubscribe             = "resources/unsubscribe"
	MethodListPrompts             = "prompts/list"
	MethodGetPrompt               = "prompts/get"
	MethodComplete                = "completion/complete"
	MethodSetLoggingLevel         = "logging/setLevel"
	MethodCreateMessage           = "sampling/createMessage"
	MethodCreateElicitation       = "elicitation/create"

	NotificationInitialized        = "notifications/initialized"
	NotificationCancelled          = "notifications/cancelled"
	NotificationProgress           = "notifications/progress"
	NotificationMessage            = "notifications/message"
	NotificationResourcesUpdated   = "notifications/resources/updated"
	NotificationToolsListChanged   = "notifications/tools/list_changed"
	NotificationResourcesListChanged = "notifications/resources/list_changed"
	NotificationPromptsListChanged = "notifications/prompts/list_changed"
)
