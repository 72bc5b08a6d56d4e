package config

import "time"

const (
	// AI identity
	AISenderID   = "AI"
	AISenderName = "Accord AI"
	AITrigger    = "@ai"

	// AI fallbacks
	DefaultQuestionContext = "A user has asked a question."
	FallbackAnswer         = "Sorry, I encountered an error."
	FallbackAnalysis       = "Analysis could not be completed."

	// History windows
	DefaultAIContextWindow = 20
	DefaultAnalysisWindow  = 100
	MaxHistoryPageSize     = 200
	DefaultHistoryPageSize = 50

	// Timeouts and TTLs
	DefaultAITimeout        = 30 * time.Second
	DefaultTypingTTL        = 10 * time.Second
	DefaultAnalysisCacheTTL = 10 * time.Minute
	DefaultShutdownTimeout  = 30 * time.Second

	// Connections
	DefaultSendBuffer = 256
	SequencerStripes  = 64
)
