package protocol

// Methods used by the progress subsystem.
const (
	MethodInitialize             = "initialize"
	MethodInitialized            = "initialized"
	MethodShutdown               = "shutdown"
	MethodExit                   = "exit"
	MethodWorkDoneProgressCreate = "window/workDoneProgress/create"
	MethodWorkDoneProgressCancel = "window/workDoneProgress/cancel"
	MethodProgress               = "$/progress"
	MethodProgressReport         = "language/progressReport"
	MethodStatus                 = "language/status"
)

// WorkDoneProgressCreateParams asks the client to create a progress stream.
type WorkDoneProgressCreateParams struct {
	Token string `json:"token"`
}

// WorkDoneProgressCancelParams is sent by the client when the user cancels a
// progress stream.
type WorkDoneProgressCancelParams struct {
	Token string `json:"token"`
}

// ProgressKind tags a WorkDoneProgress value.
type ProgressKind string

// Progress kinds.
const (
	KindBegin  ProgressKind = "begin"
	KindReport ProgressKind = "report"
	KindEnd    ProgressKind = "end"
)

// WorkDoneProgress is the tagged union of begin, report, and end payloads.
// Percentage is nil when progress is indeterminate.
type WorkDoneProgress struct {
	Kind        ProgressKind `json:"kind"`
	Title       string       `json:"title,omitempty"`
	Cancellable bool         `json:"cancellable,omitempty"`
	Message     string       `json:"message,omitempty"`
	Percentage  *int         `json:"percentage,omitempty"`
}

// Begin builds the opening payload of a progress stream.
func Begin(title, message string, percentage *int) WorkDoneProgress {
	return WorkDoneProgress{Kind: KindBegin, Title: title, Message: message, Percentage: percentage}
}

// Report builds an intermediate payload.
func Report(message string, percentage *int) WorkDoneProgress {
	return WorkDoneProgress{Kind: KindReport, Message: message, Percentage: percentage}
}

// End builds the terminal payload.
func End() WorkDoneProgress {
	return WorkDoneProgress{Kind: KindEnd}
}

// ProgressParams is the body of a $/progress notification.
type ProgressParams struct {
	Token string           `json:"token"`
	Value WorkDoneProgress `json:"value"`
}

// ProgressReport is the legacy language/progressReport payload.
type ProgressReport struct {
	ID        string `json:"id"`
	Task      string `json:"task"`
	SubTask   string `json:"subTask"`
	Status    string `json:"status"`
	TotalWork int    `json:"totalWork"`
	WorkDone  int    `json:"workDone"`
	Complete  bool   `json:"complete"`
}

// ServiceStatus is the coarse server state carried by StatusReport.
type ServiceStatus string

// Service statuses.
const (
	StatusStarting ServiceStatus = "Starting"
	StatusStarted  ServiceStatus = "Started"
	StatusError    ServiceStatus = "Error"
	StatusMessage  ServiceStatus = "Message"
)

// StatusReport is the legacy language/status payload.
type StatusReport struct {
	Type    ServiceStatus `json:"type"`
	Message string        `json:"message"`
}

// InitializeParams is the subset of the initialize request the server reads.
type InitializeParams struct {
	ProcessID             *int                  `json:"processId,omitempty"`
	Capabilities          ClientCapabilities    `json:"capabilities"`
	InitializationOptions InitializationOptions `json:"initializationOptions"`
}

// ClientCapabilities mirrors the window capabilities of the client.
type ClientCapabilities struct {
	Window struct {
		WorkDoneProgress bool `json:"workDoneProgress"`
	} `json:"window"`
}

// InitializationOptions carries server-specific client flags.
type InitializationOptions struct {
	ExtendedClientCapabilities struct {
		ProgressReportProvider bool `json:"progressReportProvider"`
	} `json:"extendedClientCapabilities"`
}

// InitializeResult answers the initialize request.
type InitializeResult struct {
	Capabilities map[string]any `json:"capabilities"`
	ServerInfo   ServerInfo     `json:"serverInfo"`
}

// ServerInfo names the server in InitializeResult.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}
