package httpapi

import "net/http"

func registerSystemRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("GET /healthz", handler.Healthz)
}

func registerPublicRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("GET /v1/challenges", handler.ListChallenges)
	mux.HandleFunc("GET /v1/challenges/{challengeID}", handler.GetChallenge)
}

func registerAuthorizedRoutes(mux *http.ServeMux, handler *Handler, verifier TokenVerifier) {
	mux.Handle("POST /v1/challenges", RequireAuth(verifier, http.HandlerFunc(handler.CreateChallenge)))
	mux.Handle("POST /v1/challenges/{challengeID}/claim", RequireAuth(verifier, http.HandlerFunc(handler.ClaimChallenge)))
	mux.Handle("POST /v1/challenges/claim-lock", RequireAuth(verifier, http.HandlerFunc(handler.ClaimLockChallenge)))
	mux.Handle("POST /v1/challenges/{challengeID}/lock", RequireAuth(verifier, http.HandlerFunc(handler.LockChallenge)))
	mux.Handle("POST /v1/challenges/{challengeID}/score", RequireAuth(verifier, http.HandlerFunc(handler.ScoreChallenge)))
	mux.Handle("POST /v1/challenges/{challengeID}/void", RequireAdmin(verifier, http.HandlerFunc(handler.VoidChallenge)))

	mux.Handle("GET /v1/wallet/balance", RequireAuth(verifier, http.HandlerFunc(handler.GetWalletBalance)))
	mux.Handle("GET /v1/wallet/ledger", RequireAuth(verifier, http.HandlerFunc(handler.ListWalletLedger)))

	mux.Handle("POST /v1/withdrawals/request", RequireAuth(verifier, http.HandlerFunc(handler.RequestWithdrawal)))
	mux.Handle("GET /v1/withdrawals", RequireAuth(verifier, http.HandlerFunc(handler.ListWithdrawals)))
	mux.Handle("POST /v1/withdrawals/pay", RequireAdmin(verifier, http.HandlerFunc(handler.PayWithdrawal)))

	mux.Handle("POST /v1/donations/sync", RequireAuth(verifier, http.HandlerFunc(handler.SyncDonations)))
}

func registerWebhookRoutes(mux *http.ServeMux, handler *Handler, webhookSecret string) {
	mux.Handle("POST /v1/donations/webhook", RequireWebhookSecret(webhookSecret, http.HandlerFunc(handler.DonationWebhook)))
}

func registerInternalJobRoutes(mux *http.ServeMux, handler *Handler, internalJobToken string) {
	mux.Handle("POST /v1/internal/jobs/settle-due", RequireInternalJobToken(internalJobToken, http.HandlerFunc(handler.RunSettleDueJob)))
}
