// Package rest is the HTTP surface over the game services. Handlers stay
// thin: bind, call one service, answer with the JSON envelope.
package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/fracturesim/game/gameerr"
	mw "github.com/kasuganosora/fracturesim/middleware"
	"go.uber.org/zap"
)

// statusFor maps an error kind onto its HTTP status.
func statusFor(k gameerr.Kind) int {
	switch k {
	case gameerr.KindValidation, gameerr.KindInsufficientResource:
		return http.StatusBadRequest
	case gameerr.KindNotFound:
		return http.StatusNotFound
	case gameerr.KindStateConflict, gameerr.KindConflict:
		return http.StatusConflict
	case gameerr.KindForbidden:
		return http.StatusForbidden
	case gameerr.KindExternalProvider:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// errorCodeKey carries the answered error code to the audit hook.
const errorCodeKey = "rest.error_code"

type errorCode string

func (e errorCode) Error() string { return string(e) }

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": data})
}

// fail writes the error envelope. Errors outside the taxonomy are logged and
// reported as INTERNAL_ERROR without their text.
func fail(c *gin.Context, log *zap.Logger, err error) {
	ge, isGame := gameerr.As(err)
	if !isGame || ge.Kind == gameerr.KindInternal {
		log.Error("request failed",
			zap.String("trace_id", mw.GetTraceID(c)),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success":  false,
			"error":    gameerr.ErrInternal.Code,
			"message":  "internal error",
			"trace_id": mw.GetTraceID(c),
		})
		return
	}
	c.Set(errorCodeKey, ge.Code)
	body := gin.H{"success": false, "error": ge.Code, "message": ge.Message}
	if ge.Details != nil {
		body["details"] = ge.Details
	}
	c.JSON(statusFor(ge.Kind), body)
}

func bind(c *gin.Context, log *zap.Logger, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		fail(c, log, gameerr.Validationf("%s", err.Error()))
		return false
	}
	return true
}

func paramID(c *gin.Context, log *zap.Logger, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		fail(c, log, gameerr.Validationf("invalid %s", name))
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def int) int {
	if v, err := strconv.Atoi(c.Query(name)); err == nil {
		return v
	}
	return def
}

// me returns the authenticated actor; Auth guarantees it is set.
func me(c *gin.Context) int64 { return mw.GetActorID(c) }
