package client

import (
	"errors"
	"strings"
	"testing"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		errorClass ErrorClass
		want       bool
	}{
		{ErrorClassClient, false},
		{ErrorClassServer, true},
		{ErrorClassRateLimit, true},
		{ErrorClassNetwork, true},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.errorClass), func(t *testing.T) {
			if got := shouldRetry(tt.errorClass); got != tt.want {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.errorClass, got, tt.want)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorClass
	}{
		{200, ""},
		{304, ""},
		{400, ErrorClassClient},
		{404, ErrorClassClient},
		{429, ErrorClassRateLimit},
		{500, ErrorClassServer},
		{503, ErrorClassServer},
	}

	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.want {
			t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestUpstreamError_Error(t *testing.T) {
	err := &UpstreamError{
		System:     "legacy",
		StatusCode: 503,
		ErrorClass: ErrorClassServer,
		Message:    "503 Service Unavailable",
	}
	want := "legacy server error (status 503): 503 Service Unavailable"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	wrapped := &UpstreamError{
		System:     "modern",
		ErrorClass: ErrorClassNetwork,
		Message:    "request failed",
		Err:        errors.New("connection refused"),
	}
	if !strings.HasSuffix(wrapped.Error(), ": connection refused") {
		t.Errorf("Error() = %q, want cause suffix", wrapped.Error())
	}
}

func TestUpstreamError_Unwrap(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := error(&UpstreamError{System: "legacy", ErrorClass: ErrorClassNetwork, Err: cause})

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}

	var upstream *UpstreamError
	if !errors.As(err, &upstream) || upstream.System != "legacy" {
		t.Error("errors.As should extract *UpstreamError")
	}

	if (&UpstreamError{}).Unwrap() != nil {
		t.Error("Unwrap() without cause should be nil")
	}
}
