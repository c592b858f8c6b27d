package log

import "worktracker/internal/core"

// Common field names for structured logging
const (
	FieldComponent = "component"
	FieldUserID    = "user_id"
	FieldUserName  = "user_name"
	FieldRevision  = "revision"
	FieldVersion   = "version"
	FieldState     = "state"
	FieldBackend   = "backend"
	FieldProvider  = "provider"
	FieldDuration  = "duration_ms"
	FieldSuccess   = "success"
	FieldError     = "error"
	FieldOperation = "operation"
	FieldCount     = "count"
	FieldNetCents  = "net_cents"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentSync     = "sync"
	ComponentSession  = "session"
	ComponentIdentity = "identity"
	ComponentStorage  = "storage"
	ComponentAMQP     = "amqp"
	ComponentWorker   = "worker"
	ComponentSheets   = "sheets"
	ComponentRedis    = "redis"
	ComponentCache    = "cache"
	ComponentBackend  = "backend"
	ComponentExport   = "export"
	ComponentMetrics  = "metrics"
)

// Operations defines standard operation names
const (
	OpHydrate  = "hydrate"
	OpPersist  = "persist"
	OpMirror   = "mirror"
	OpSignIn   = "sign_in"
	OpSignOut  = "sign_out"
	OpImport   = "import"
	OpExport   = "export"
	OpValidate = "validate"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeAuth          = "auth_error"
	ErrorTypeTimeout       = "timeout_error"
	ErrorTypeNotFound      = "not_found_error"
	ErrorTypeInternal      = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithIdentity adds the user key and display name. A nil identity adds
// nothing.
func (f LogFields) WithIdentity(id *core.Identity) LogFields {
	if id == nil {
		return f
	}
	f[FieldUserID] = id.Key()
	f[FieldUserName] = id.DisplayName()
	return f
}

// WithRevision adds the store revision a write was taken at.
func (f LogFields) WithRevision(rev uint64) LogFields {
	f[FieldRevision] = rev
	return f
}

func (f LogFields) WithDuration(ms int64, success bool) LogFields {
	f[FieldDuration] = ms
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
