package api

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/filswan/go-mcs-sdk/mcs/api/common/logs"
	"github.com/gin-gonic/gin"
	"github.com/lagrangedao/go-bounty-coordinator/constants"
	"github.com/lagrangedao/go-bounty-coordinator/util"
	"github.com/lagrangedao/go-bounty-coordinator/wallet"
)

const (
	MaxClockSkew = 5 * time.Minute

	callerKey = "caller"
)

// SigningPayload is the message a caller signs to authenticate a request.
func SigningPayload(method, requestURI, timestamp string, body []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(method)
	buf.WriteByte('\n')
	buf.WriteString(requestURI)
	buf.WriteByte('\n')
	buf.WriteString(timestamp)
	buf.WriteByte('\n')
	buf.Write(body)
	return buf.Bytes()
}

// authenticate recovers the signer of the request and stores it as the caller.
func (s *Server) authenticate(c *gin.Context) {
	account := c.GetHeader(constants.HEADER_ACCOUNT)
	timestamp := c.GetHeader(constants.HEADER_TIMESTAMP)
	signature := c.GetHeader(constants.HEADER_SIGNATURE)
	if account == "" || timestamp == "" || signature == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, util.CreateErrorResponse(util.SignatureError))
		return
	}
	if !common.IsHexAddress(account) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, util.CreateErrorResponse(util.SignatureError, "account must be an 0x address"))
		return
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, util.CreateErrorResponse(util.SignatureError, "malformed timestamp"))
		return
	}
	skew := s.clock.Now().Sub(time.Unix(ts, 0))
	if skew > MaxClockSkew || skew < -MaxClockSkew {
		c.AbortWithStatusJSON(http.StatusUnauthorized, util.CreateErrorResponse(util.SignatureError, "request timestamp is outside the accepted window"))
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, util.CreateErrorResponse(util.JsonError))
		return
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))

	sig, err := hexutil.Decode(signature)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, util.CreateErrorResponse(util.SignatureError))
		return
	}
	signer, err := wallet.Recover(sig, SigningPayload(c.Request.Method, c.Request.URL.RequestURI(), timestamp, body))
	if err != nil || signer != common.HexToAddress(account) {
		logs.GetLogger().Warnf("rejected request %s %s claiming account %s", c.Request.Method, c.Request.URL.Path, account)
		c.AbortWithStatusJSON(http.StatusUnauthorized, util.CreateErrorResponse(util.SignatureError))
		return
	}

	c.Set(callerKey, signer.Hex())
	c.Next()
}

func callerOf(c *gin.Context) string {
	return c.GetString(callerKey)
}
