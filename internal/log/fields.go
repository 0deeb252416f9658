package log

// Common field names for structured logging
const (
	FieldComponent = "component"
	FieldAccount   = "account"
	FieldOperation = "operation"
	FieldError     = "error"
	FieldCategory  = "category"
	FieldAmount    = "amount"
	FieldLimit     = "limit"
	FieldSpent     = "spent"
	FieldTxID      = "transaction_id"
	FieldCount     = "count"
	FieldKey       = "key"
	FieldBackend   = "backend"
	FieldKind      = "kind"
)

// Components defines standard component names
const (
	ComponentApp          = "app"
	ComponentSession      = "session"
	ComponentStorage      = "storage"
	ComponentTransactions = "transactions"
	ComponentLimits       = "limits"
	ComponentGoal         = "goal"
	ComponentNotify       = "notify"
	ComponentAMQP         = "amqp"
	ComponentKafka        = "kafka"
	ComponentRemote       = "remote"
	ComponentInsights     = "insights"
	ComponentCache        = "cache"
	ComponentBackend      = "backend"
	ComponentWorker       = "worker"
)

// Operations defines standard operation names
const (
	OpHydrate  = "hydrate"
	OpReload   = "reload"
	OpSubmit   = "submit"
	OpEdit     = "edit"
	OpDelete   = "delete"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
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

// WithError adds the error text, skipping nil.
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

// WithTransaction adds transaction fields; an empty id is omitted.
func (f LogFields) WithTransaction(id, category, amount string) LogFields {
	if id != "" {
		f[FieldTxID] = id
	}
	f[FieldCategory] = category
	f[FieldAmount] = amount
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
