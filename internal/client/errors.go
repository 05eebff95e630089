package client

import (
	"fmt"

	"github.com/the127/resumable/internal/retry"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const bugReportUrl = "https://github.com/googleapis/google-cloud-cpp/issues/new"

// terminalError keeps the code of err and tells the caller whether the
// budget ran out or the failure was not retryable in the first place.
func terminalError(caller string, policy retry.Policy, err error) error {
	s := status.Convert(err)
	if policy.IsExhausted() {
		return status.Errorf(s.Code(), "Retry policy exhausted in %s: %s", caller, s.Message())
	}

	return status.Errorf(s.Code(), "Permanent error in %s: %s", caller, s.Message())
}

// exhaustedError is returned when the loop ends because the policy ran out
// while the last attempt was still being evaluated.
func exhaustedError(caller string, lastErr error) error {
	if lastErr == nil {
		return status.Error(codes.DeadlineExceeded, "Retry policy exhausted before first attempt was made.")
	}

	s := status.Convert(lastErr)
	return status.Errorf(s.Code(), "Retry policy exhausted in %s: %s", caller, s.Message())
}

func committedSizeRegressionError(sessionID string, previous, reported uint64, journal string) error {
	return status.Error(codes.Internal, fmt.Sprintf(
		"This is unexpected: the upload session %s reported a committed size of %d bytes, "+
			"which is smaller than the previously committed %d bytes. "+
			"Please report this at %s and include the following details:\n%s",
		sessionID, reported, previous, bugReportUrl, journal))
}
