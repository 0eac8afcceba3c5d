// Package resilience holds the failure handling around registry access and
// instance selection.
//
//   - InstanceBreaker counts call outcomes per instance and publishes an
//     isolation event once an instance crosses its failure thresholds.
//   - Retry repeats registry calls with exponential backoff.
//
// The breaker feeds the isolation filter through the event bus:
//
//	breaker := resilience.NewInstanceBreaker(resilience.DefaultBreakerConfig(), bus, log)
//	err := breaker.Execute(ep.Instance.InstanceID, func() error {
//		return call(ep.Address)
//	})
package resilience
