// Package api holds the HTTP surface outside the hot path: health checks
// and an operator-facing read-only view of recent broadcast activity.
// The write-path ABI lives in internal/service/chain; this package never
// drives collection, scoring, or submission.
package api

import (
	"time"

	"github.com/labstack/echo/v4"

	domrepo "sentioracle/internal/domain/repository"
	pkgch "sentioracle/pkg/clickhouse"
	xhttp "sentioracle/pkg/http"
	applogger "sentioracle/pkg/logger"
	"sentioracle/pkg/util"
)

// AdminHandler registers the oracle's out-of-band operator surface:
// liveness, readiness against the ClickHouse dependency, and a recent
// transaction log for debugging nonce/gas behavior without a chain
// explorer. Grounded on the teacher's Echo-handler registration idiom
// (RegisterRoutes(e *echo.Echo)).
type AdminHandler struct {
	log      *applogger.Logger
	ch       *pkgch.Client
	txLog    domrepo.TxLogStore
	signerID string
}

// NewAdminHandler builds an AdminHandler. ch and txLog may be nil; the
// corresponding routes degrade to reporting unavailability rather than
// failing to register.
func NewAdminHandler(log *applogger.Logger, ch *pkgch.Client, txLog domrepo.TxLogStore, signerID string) *AdminHandler {
	return &AdminHandler{log: log, ch: ch, txLog: txLog, signerID: signerID}
}

// RegisterRoutes implements pkg/http.Handler.
func (h *AdminHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.healthz)
	e.GET("/readyz", h.readyz)
	e.GET("/admin/txlog", h.recentTx)
}

func (h *AdminHandler) healthz(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *AdminHandler) readyz(c echo.Context) error {
	if h.ch == nil {
		return xhttp.SuccessResponse(c, map[string]string{"status": "ok", "clickhouse": "unconfigured"})
	}
	if err := h.ch.Health(c.Request().Context()); err != nil {
		h.log.Warn("readiness check failed", applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("clickhouse unreachable").WithError(err))
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok", "clickhouse": "ok"})
}

// recentTx serves ?since=<RFC3339|unix>&limit=<n>, defaulting to the 50
// most recent records with no lower time bound.
func (h *AdminHandler) recentTx(c echo.Context) error {
	if h.txLog == nil {
		return xhttp.SuccessResponse(c, map[string]string{"status": "unconfigured"})
	}
	limit := util.ParseIntDefault(c.QueryParam("limit"), 50)
	since := util.ParseTimeDefault(c.QueryParam("since"), time.Time{})

	records, err := h.txLog.Recent(c.Request().Context(), h.signerID, since, limit)
	if err != nil {
		h.log.Error("recent tx log query failed", applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("tx log query failed").WithError(err))
	}
	return xhttp.ListResponse(c, records, int64(len(records)))
}
