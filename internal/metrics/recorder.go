package metrics

import "time"

// Platform label values
const (
	PlatformSlack = "slack"
	PlatformSpace = "space"
)

// Direction label values for unfurl flow metrics
const (
	DirectionSlackToSpace = "slack_to_space"
	DirectionSpaceToSlack = "space_to_slack"
)

// Recorder defines the interface for recording application metrics.
// Implementations are Metrics (Prometheus-based) and NoopMetrics.
type Recorder interface {
	// Unfurl pipeline
	RecordUnfurlsProduced(direction string, count int)
	RecordUnfurlFailed(direction, reason string)
	RecordQueueBatch(size int, duration time.Duration)
	RecordAuthPrompt(direction string)
	RecordDeferredEvent(action string) // parked, replayed

	// Token lifecycle
	RecordTokenRefresh(platform string, success bool)
	RecordTokenReset(platform string)

	// OAuth flows
	RecordOAuthFlow(platform, result string) // started, completed, failed
	RecordSessionsSwept(count int)

	// External calls
	RecordExternalAPICall(platform, method string, duration time.Duration)

	// Database
	RecordDatabaseQueryError(operation string)
}
