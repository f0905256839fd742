package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"

	"rapidride/internal/domain"
)

// NewRelicRequestID tags the nrgin transaction with the request id.
// It is a no-op when the agent is disabled.
func NewRelicRequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		if txn := nrgin.Transaction(c); txn != nil {
			txn.AddAttribute("request.id", GetRequestID(c))
		}
		c.Next()
	}
}

// annotateTransaction tags the nrgin transaction with the caller's account.
func annotateTransaction(c *gin.Context, account *domain.Account) {
	txn := nrgin.Transaction(c)
	if txn == nil || account == nil {
		return
	}
	txn.AddAttribute("account.id", account.ID)
	txn.AddAttribute("account.role", string(account.Role))
}
