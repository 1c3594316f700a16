package types

type ContextKey string

const (
	ContextKeyRunID   ContextKey = "run_id"
	ContextKeyBotName ContextKey = "bot_name"
	ContextKeySource  ContextKey = "source"
)
