// Package billing exposes the usage-limit gate owned by the external
// payment system. The orchestrator consults it before starting any job.
package billing

import "context"

// UsageGate answers whether a user may start a generation of the given
// size. The real implementation lives with the payment provider; the core
// only fails fast on a negative answer.
type UsageGate interface {
	CanGenerateExam(ctx context.Context, userID string, questionCount int) (bool, error)
}

// MaxQuestionsGate allows any generation up to a fixed question count.
// It stands in for the billing-owned gate in deployments without one.
type MaxQuestionsGate struct {
	Max int
}

func (g MaxQuestionsGate) CanGenerateExam(_ context.Context, _ string, questionCount int) (bool, error) {
	return g.Max <= 0 || questionCount <= g.Max, nil
}
