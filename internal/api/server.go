package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"vapay/internal/reconcile"
	"vapay/internal/store"
)

type InvoiceReader interface {
	GetInvoiceDetail(ctx context.Context, number string) (store.InvoiceDetail, error)
}

type Server struct {
	invoices  InvoiceReader
	vaStatus  *reconcile.VAStatusReconciler
	payments  *reconcile.PaymentReconciler
	authToken string
	log       zerolog.Logger
}

func NewServer(
	invoices InvoiceReader,
	vaStatus *reconcile.VAStatusReconciler,
	payments *reconcile.PaymentReconciler,
	authToken string,
	log zerolog.Logger,
) *Server {
	return &Server{
		invoices:  invoices,
		vaStatus:  vaStatus,
		payments:  payments,
		authToken: authToken,
		log:       log,
	}
}

func (s *Server) Routes() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1", s.authMiddleware())
	v1.GET("/invoices/:number", s.handleGetInvoice)
	v1.POST("/va-responses", s.handleVAResponse)
	v1.POST("/va-payments", s.handleVAPayment)

	r.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, "not_found")
	})
	return r
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c.GetHeader("Authorization"))
		if !secureCompare(token, s.authToken) {
			writeError(c, http.StatusUnauthorized, "unauthorized")
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func secureCompare(a, b string) bool {
	if a == "" || len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
