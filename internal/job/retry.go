package job

// RetryOutcome is the result of applying the retry policy to one failed
// dispatch attempt.
type RetryOutcome struct {
	RetryCount int
	Status     Status
}

// NextRetry converts a failed dispatch attempt into the job's next retry
// count and status. Below the ceiling the job returns to DRAFT and stays
// eligible for another manual send; at the ceiling it is terminally FAILED.
//
// Every adapter failure is treated identically: a permanently-unsupported
// protocol consumes a retry the same way a network timeout does.
func NextRetry(retryCount, maxRetries int) RetryOutcome {
	next := retryCount + 1
	if next >= maxRetries {
		return RetryOutcome{RetryCount: next, Status: StatusFailed}
	}
	return RetryOutcome{RetryCount: next, Status: StatusDraft}
}
