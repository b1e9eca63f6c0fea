package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("handle: %w", New(CodeNodeNameOccupied, "name taken"))
	if !stderrors.Is(err, &Error{Code: CodeNodeNameOccupied}) {
		t.Fatal("expected code match through wrapping")
	}
	if stderrors.Is(err, &Error{Code: CodeNodeTypeNotFound}) {
		t.Fatal("did not expect a different code to match")
	}
}

func TestGetCode(t *testing.T) {
	cause := stderrors.New("disk full")
	err := fmt.Errorf("append: %w", Wrap(CodeConcurrencyConflict, "stream moved", cause))
	if got := GetCode(err); got != CodeConcurrencyConflict {
		t.Fatalf("code = %s, want %s", got, CodeConcurrencyConflict)
	}
	if !stderrors.Is(err, cause) {
		t.Fatal("expected cause to stay reachable")
	}
	if got := GetCode(stderrors.New("plain")); got != CodeUnknown {
		t.Fatalf("code = %s, want %s", got, CodeUnknown)
	}
}

func TestCodeFamilies(t *testing.T) {
	tests := []struct {
		code        Code
		grpc        codes.Code
		validation  bool
		concurrency bool
	}{
		{CodeNodeNameOccupied, codes.AlreadyExists, true, false},
		{CodeNodeTypeNotFound, codes.InvalidArgument, true, false},
		{CodeContentStreamClosed, codes.FailedPrecondition, true, false},
		{CodeConcurrencyConflict, codes.Aborted, false, true},
		{CodeBaseWorkspaceModified, codes.Aborted, false, true},
		{CodeRebaseConflict, codes.FailedPrecondition, false, false},
		{CodeProjectionInconsistent, codes.Internal, false, false},
		{CodeConfigurationInvalid, codes.Internal, false, false},
	}
	for _, tc := range tests {
		t.Run(string(tc.code), func(t *testing.T) {
			if got := tc.code.GRPCCode(); got != tc.grpc {
				t.Fatalf("grpc code = %v, want %v", got, tc.grpc)
			}
			if got := tc.code.IsValidation(); got != tc.validation {
				t.Fatalf("validation = %v, want %v", got, tc.validation)
			}
			if got := tc.code.IsConcurrency(); got != tc.concurrency {
				t.Fatalf("concurrency = %v, want %v", got, tc.concurrency)
			}
		})
	}
}

func TestToGRPCStatusCarriesErrorInfo(t *testing.T) {
	err := WithMetadata(CodeNodeAggregateNotFound, "missing", map[string]string{"nodeAggregateId": "a"}).ToGRPCStatus()
	st, ok := status.FromError(err)
	if !ok {
		t.Fatal("expected grpc status")
	}
	if st.Code() != codes.NotFound {
		t.Fatalf("code = %v, want NotFound", st.Code())
	}
	var info *errdetails.ErrorInfo
	for _, detail := range st.Details() {
		if candidate, ok := detail.(*errdetails.ErrorInfo); ok {
			info = candidate
		}
	}
	if info == nil {
		t.Fatal("expected error info detail")
	}
	if info.GetReason() != string(CodeNodeAggregateNotFound) {
		t.Fatalf("reason = %q", info.GetReason())
	}
	if info.GetMetadata()["nodeAggregateId"] != "a" {
		t.Fatalf("metadata = %v", info.GetMetadata())
	}
}
