package chat

// Level classifies a notification for display.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notifier receives transient status messages from the orchestration core.
// Frontends plug in their own implementation; the zero default discards
// everything so the core never depends on a surface being attached.
type Notifier interface {
	Notify(message string, level Level)
}

type noopNotifier struct{}

func (noopNotifier) Notify(string, Level) {}
