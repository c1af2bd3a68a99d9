package handlers

import (
	"log/slog"
	"time"

	"github.com/GregMSThompson/budget-tracker/internal/response"
)

type Deps struct {
	Log             *slog.Logger
	ResponseHandler response.ResponseHandler
	UserSvc         UserService
	PlaidSvc        plaidService
	AccountSvc      accountService
	TransactionSvc  transactionService
	BudgetSvc       budgetService
	WebhookSecret   string
	WebhookTimeout  time.Duration
	WebhookWorkers  *WebhookWorkers
}
