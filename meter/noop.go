package meter

import "github.com/crosstrans/trialproxy"

// NoopMeter is a meter that does nothing.
type NoopMeter struct{}

var _ trialproxy.Meter = (*NoopMeter)(nil)

func (m *NoopMeter) OnAttempt(trialproxy.AttemptEvent) {}
func (m *NoopMeter) OnResult(trialproxy.ResultEvent)   {}
func (m *NoopMeter) OnRequest(trialproxy.RequestEvent) {}
