package s3api

import (
	"context"
	"errors"
	"fmt"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"

	"github.com/oddbit-project/s3browser/apperr"
)

// errorCode extracts the S3 error code from an SDK error, or ""
func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// mapError translates SDK failures into the gateway error taxonomy.
// Cancellation and deadline errors keep their kind; S3-side failures
// carry the store's code and request id when available.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return apperr.Wrap(apperr.Cancelled, op+" cancelled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.Timeout, op+" timed out", err)
	}

	code := errorCode(err)
	switch code {
	case "NoSuchKey", "NoSuchBucket", "NotFound", "NoSuchVersion":
		return apperr.Wrap(apperr.NotFound, "object not found", err)
	case "InvalidPart", "InvalidPartOrder":
		return apperr.Wrap(apperr.InvalidInput, "invalid multipart part list", err)
	}

	message := op + " failed"
	if code != "" {
		message = fmt.Sprintf("%s (%s)", message, code)
	}
	var responseError *awshttp.ResponseError
	if errors.As(err, &responseError) && responseError.ServiceRequestID() != "" {
		message = fmt.Sprintf("%s [request id %s]", message, responseError.ServiceRequestID())
	}
	return apperr.Wrap(apperr.S3Error, message, err)
}
