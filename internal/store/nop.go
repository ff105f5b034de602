package store

import "webforge/internal/types"

// NopSink discards every record. Used when metadata persistence is
// disabled or the database fails to open.
type NopSink struct{}

func (NopSink) RecordSession(types.SessionRecord)          {}
func (NopSink) RecordConversation(types.ConversationEntry) {}
func (NopSink) RecordStepResult(string, types.StepResult)  {}
func (NopSink) RecordToolExecution(types.ToolExecution)    {}
func (NopSink) Close() error                               { return nil }

var _ types.MetadataSink = NopSink{}
