package main

import (
	"net/http"

	"github.com/bmizerany/pat"
	"github.com/justinas/alice"
)

func (app *application) routes() http.Handler {
	standardMiddleware := alice.New(app.recoverPanic, app.logRequest, secureHeaders)
	operatorMiddleware := standardMiddleware.Append(app.requireOperator)

	mux := pat.New()

	mux.Get("/health", standardMiddleware.ThenFunc(app.healthHandler.Health))

	// Recurring
	mux.Post("/jobs/recurring", operatorMiddleware.ThenFunc(app.recurringHandler.RunJob))
	mux.Post("/payments/charge", operatorMiddleware.ThenFunc(app.recurringHandler.Charge))

	// Reversals
	mux.Get("/payments/:payment_id/reversal", operatorMiddleware.ThenFunc(app.refundHandler.Preview))
	mux.Post("/payments/refund", operatorMiddleware.ThenFunc(app.refundHandler.Refund))

	return mux
}
