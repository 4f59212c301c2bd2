package aps

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 8 * 1024

// RequestError represents a structured failure from the vendor API.
type RequestError struct {
	Status int
	Code   string
	Body   string
}

func (e *RequestError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("autodesk api error (%d %s): %s", e.Status, e.Code, e.Body)
	}
	return fmt.Sprintf("autodesk api error (%d): %s", e.Status, e.Body)
}

// IsNotFound reports whether err is a 404 from the vendor API.
func IsNotFound(err error) bool {
	var re *RequestError
	return errors.As(err, &re) && re.Status == http.StatusNotFound
}

// IsPermissionDenied reports whether err is a 401 or 403 from the vendor API.
func IsPermissionDenied(err error) bool {
	var re *RequestError
	return errors.As(err, &re) && (re.Status == http.StatusUnauthorized || re.Status == http.StatusForbidden)
}

// IsConflict reports whether err is a 409 from the vendor API.
func IsConflict(err error) bool {
	var re *RequestError
	return errors.As(err, &re) && re.Status == http.StatusConflict
}

// decodeError drains an error response into a RequestError, pulling the
// machine-readable code out of the handful of shapes the vendor uses.
func decodeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	re := &RequestError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}

	var payload struct {
		Code   string `json:"code"`
		Reason string `json:"reason"`
		Errors []struct {
			Code string `json:"code"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Code != "":
			re.Code = payload.Code
		case payload.Reason != "":
			re.Code = payload.Reason
		case len(payload.Errors) > 0:
			re.Code = payload.Errors[0].Code
		}
	}

	return re
}

// Upload phases, in order.
const (
	UploadPhaseSign     = "sign"
	UploadPhasePut      = "put"
	UploadPhaseFinalize = "finalize"
)

// UploadError reports which phase of a signed upload failed. Partial
// uploads are left as-is; nothing is cleaned up or retried.
type UploadError struct {
	Phase string
	Err   error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %v", e.Phase, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}
