package metrics

import "time"

// NoopMetrics is a no-operation implementation of Recorder
// All methods are empty and do nothing, providing zero overhead when metrics are disabled
type NoopMetrics struct{}

// Ensure NoopMetrics implements Recorder interface at compile time
var _ Recorder = (*NoopMetrics)(nil)

// NewNoopMetrics creates a new no-operation metrics recorder
func NewNoopMetrics() Recorder {
	return &NoopMetrics{}
}

func (n *NoopMetrics) RecordUnfurlsProduced(direction string, count int)                       {}
func (n *NoopMetrics) RecordUnfurlFailed(direction, reason string)                             {}
func (n *NoopMetrics) RecordQueueBatch(size int, duration time.Duration)                       {}
func (n *NoopMetrics) RecordAuthPrompt(direction string)                                       {}
func (n *NoopMetrics) RecordDeferredEvent(action string)                                       {}
func (n *NoopMetrics) RecordTokenRefresh(platform string, success bool)                        {}
func (n *NoopMetrics) RecordTokenReset(platform string)                                        {}
func (n *NoopMetrics) RecordOAuthFlow(platform, result string)                                 {}
func (n *NoopMetrics) RecordSessionsSwept(count int)                                           {}
func (n *NoopMetrics) RecordExternalAPICall(platform, method string, duration time.Duration)   {}
func (n *NoopMetrics) RecordDatabaseQueryError(operation string)                               {}
