package recurring

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"cloverBack/internal/clover"
	"cloverBack/internal/models"
)

// ErrUnmappedResponse marks a gateway answer with no agreed ledger mapping.
var ErrUnmappedResponse = errors.New("recurring: unmapped gateway response")

type OutcomeKind int

const (
	Success OutcomeKind = iota
	RecoverableFailure
	FatalError
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case RecoverableFailure:
		return "recoverable_failure"
	case FatalError:
		return "fatal_error"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is the classified result of one charge attempt.
type Outcome struct {
	Kind   OutcomeKind
	Result models.ContributionResult
	Err    error
	// Definitive is set when the gateway answered and nothing was captured,
	// so the installment may be retried.
	Definitive bool
}

func (o Outcome) OK() bool { return o.Kind == Success }

// Classify maps an authorization answer, or the error that replaced it, onto
// ledger state.
func Classify(res *clover.AuthorizeResult, err error) Outcome {
	if err != nil {
		return classifyError(err)
	}
	if res == nil {
		return failed(fmt.Errorf("%w: empty authorization result", clover.ErrUnexpectedResponse), "", false)
	}

	if res.Approved() {
		return Outcome{
			Kind: Success,
			Result: models.ContributionResult{
				Status:        models.ContributionCompleted,
				TrxnID:        res.RetRef,
				PanTruncation: res.LastFour(),
				ResultCode:    res.RespCode,
				Message:       res.RespText,
			},
		}
	}

	// A partial approval captured part of the amount, so it is neither a
	// retryable decline nor a success.
	if strings.EqualFold(strings.TrimSpace(res.RespText), clover.RespTextPartialApproval) {
		o := failed(fmt.Errorf("%w: %s", ErrUnmappedResponse, res.RespText), res.RespText, false)
		o.Result.TrxnID = res.RetRef
		o.Result.ResultCode = res.RespCode
		o.Result.PanTruncation = res.LastFour()
		return o
	}

	o := failed(nil, declineText(res), true)
	o.Result.ResultCode = res.RespCode
	o.Result.PanTruncation = res.LastFour()
	return o
}

func classifyError(err error) Outcome {
	var apiErr *clover.Error
	switch {
	case errors.Is(err, clover.ErrConfig), errors.Is(err, models.ErrProcessorConfig):
		return fatal(err)
	case errors.Is(err, clover.ErrUnsupportedCurrency):
		return fatal(err)
	case errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden):
		return fatal(fmt.Errorf("%w: gateway rejected credentials: %v", clover.ErrConfig, err))
	case errors.Is(err, models.ErrMissingToken):
		return failed(err, "", true)
	}
	// Transport failures and malformed answers leave the charge state unknown.
	return failed(err, "", false)
}

func failed(err error, respText string, definitive bool) Outcome {
	return Outcome{
		Kind:       RecoverableFailure,
		Err:        err,
		Definitive: definitive,
		Result: models.ContributionResult{
			Status:  models.ContributionFailed,
			Message: diagnostic(err, respText),
		},
	}
}

func fatal(err error) Outcome {
	return Outcome{
		Kind:       FatalError,
		Err:        err,
		Definitive: true,
		Result: models.ContributionResult{
			Status:  models.ContributionFailed,
			Message: diagnostic(err, ""),
		},
	}
}

func declineText(res *clover.AuthorizeResult) string {
	text := strings.TrimSpace(res.RespText)
	if text == "" {
		text = "Declined"
	}
	if code := strings.TrimSpace(res.RespCode); code != "" {
		text = fmt.Sprintf("%s (%s)", text, code)
	}
	return text
}

func diagnostic(err error, respText string) string {
	var parts []string
	if err != nil {
		parts = append(parts, err.Error())
	}
	if t := strings.TrimSpace(respText); t != "" && (err == nil || !strings.Contains(err.Error(), t)) {
		parts = append(parts, t)
	}
	return strings.Join(parts, ": ")
}
