package api

import (
	"net/http"

	"github.com/filswan/go-mcs-sdk/mcs/api/common/logs"
	"github.com/gin-gonic/gin"
	"github.com/lagrangedao/go-bounty-coordinator/internal/coordinator"
	"github.com/lagrangedao/go-bounty-coordinator/internal/payment"
	"github.com/lagrangedao/go-bounty-coordinator/util"
	"golang.org/x/xerrors"
)

func errorCode(err error) (int, int) {
	switch {
	case xerrors.Is(err, coordinator.ErrUnauthorized):
		return http.StatusForbidden, util.AuthError
	case xerrors.Is(err, coordinator.ErrInvalidState):
		return http.StatusConflict, util.InvalidStateError
	case xerrors.Is(err, coordinator.ErrResourceExhausted):
		return http.StatusUnprocessableEntity, util.InsufficientError
	case xerrors.Is(err, coordinator.ErrNotFound):
		return http.StatusNotFound, util.NotFoundError
	case xerrors.Is(err, coordinator.ErrInvariant):
		return http.StatusInternalServerError, util.InvariantViolation
	case xerrors.Is(err, coordinator.ErrInvalidArgument):
		return http.StatusBadRequest, util.InvalidParamError
	case xerrors.Is(err, payment.ErrDepositInvalid):
		return http.StatusBadRequest, util.DepositError
	}
	return http.StatusInternalServerError, util.InternalError
}

func respondError(c *gin.Context, err error) {
	status, code := errorCode(err)
	if status >= http.StatusInternalServerError {
		logs.GetLogger().Errorf("%s %s failed, error: %+v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, util.CreateErrorResponse(code, err.Error()))
}

func respond(c *gin.Context, data interface{}, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, util.CreateSuccessResponse(data))
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, util.CreateErrorResponse(util.JsonError, err.Error()))
}
