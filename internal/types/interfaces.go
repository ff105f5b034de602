package types

// MetadataSink receives append-only records about session activity.
// Implementations must never block the caller; failures are logged and
// counted on the implementation side.
type MetadataSink interface {
	RecordSession(rec SessionRecord)
	RecordConversation(entry ConversationEntry)
	RecordStepResult(sessionID string, result StepResult)
	RecordToolExecution(exec ToolExecution)
	Close() error
}

// EventPublisher is the write side of the event bus. The bus assigns
// sequence numbers; callers populate every other field.
type EventPublisher interface {
	Publish(event StreamEvent)
}
