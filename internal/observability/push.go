package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus/push"
)

// PushJob is the Pushgateway job name for batch runs.
const PushJob = "covid_tracker"

// Push sends the batch-run metrics to a Pushgateway, replacing the job's
// previous group.
func (m *Metrics) Push(ctx context.Context, gatewayURL, instance string) error {
	p := push.New(gatewayURL, PushJob)
	if instance != "" {
		p = p.Grouping("instance", instance)
	}
	for _, c := range m.Collectors() {
		p = p.Collector(c)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
