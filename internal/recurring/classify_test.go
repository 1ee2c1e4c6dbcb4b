package recurring

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"cloverBack/internal/clover"
	"cloverBack/internal/models"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name       string
		res        *clover.AuthorizeResult
		err        error
		kind       OutcomeKind
		status     models.ContributionStatus
		definitive bool
		unmapped   bool
	}{
		{name: "approval", res: approval("T100", "9418594164540026"), kind: Success, status: models.ContributionCompleted},
		{name: "decline", res: decline(), kind: RecoverableFailure, status: models.ContributionFailed, definitive: true},
		{name: "partial approval", res: &clover.AuthorizeResult{RespText: "Partial Approval"}, kind: RecoverableFailure, status: models.ContributionFailed, unmapped: true},
		{name: "timeout", err: fmt.Errorf("clover auth request: %w", context.DeadlineExceeded), kind: RecoverableFailure, status: models.ContributionFailed},
		{name: "unexpected shape", err: fmt.Errorf("%w: auth", clover.ErrUnexpectedResponse), kind: RecoverableFailure, status: models.ContributionFailed},
		{name: "server error", err: &clover.Error{Op: "auth", StatusCode: http.StatusBadGateway, Status: "502 Bad Gateway"}, kind: RecoverableFailure, status: models.ContributionFailed},
		{name: "bad credentials", err: &clover.Error{Op: "auth", StatusCode: http.StatusUnauthorized, Status: "401 Unauthorized"}, kind: FatalError, status: models.ContributionFailed, definitive: true},
		{name: "config", err: fmt.Errorf("%w: missing key", clover.ErrConfig), kind: FatalError, status: models.ContributionFailed, definitive: true},
		{name: "currency", err: fmt.Errorf("%w: EUR", clover.ErrUnsupportedCurrency), kind: FatalError, status: models.ContributionFailed, definitive: true},
		{name: "missing token", err: models.ErrMissingToken, kind: RecoverableFailure, status: models.ContributionFailed, definitive: true},
		{name: "nil result", kind: RecoverableFailure, status: models.ContributionFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := Classify(tc.res, tc.err)
			if o.Kind != tc.kind {
				t.Errorf("kind: want %s, got %s", tc.kind, o.Kind)
			}
			if o.Result.Status != tc.status {
				t.Errorf("status: want %s, got %s", tc.status, o.Result.Status)
			}
			if o.Definitive != tc.definitive {
				t.Errorf("definitive: want %v, got %v", tc.definitive, o.Definitive)
			}
			if got := errors.Is(o.Err, ErrUnmappedResponse); got != tc.unmapped {
				t.Errorf("unmapped: want %v, got %v (%v)", tc.unmapped, got, o.Err)
			}
			if o.Kind != Success && o.Result.Message == "" {
				t.Errorf("failures need a diagnostic message")
			}
		})
	}
}

func TestClassifyApprovalFields(t *testing.T) {
	o := Classify(approval("T100", "9418594164540026"), nil)
	if o.Result.TrxnID != "T100" || o.Result.PanTruncation != "0026" || o.Result.ResultCode != "00" {
		t.Errorf("approval fields: %+v", o.Result)
	}
}

func TestClassifyDeclineMessage(t *testing.T) {
	o := Classify(decline(), nil)
	if o.Result.Message != "Decline (05)" {
		t.Errorf("message: %q", o.Result.Message)
	}
}
