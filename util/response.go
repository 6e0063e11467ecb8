package util

import (
	libconstants "github.com/filswan/go-swan-lib/constants"
)

type BasicResponse struct {
	Status   string      `json:"status"`
	Code     int         `json:"code"`
	Data     interface{} `json:"data,omitempty"`
	Message  string      `json:"message,omitempty"`
	PageInfo *PageInfo   `json:"page_info,omitempty"`
}

type PageInfo struct {
	PageNumber       string `json:"page_number"`
	PageSize         string `json:"page_size"`
	TotalRecordCount string `json:"total_record_count"`
}

type MixedResponse struct {
	BasicResponse
	MixData struct {
		Success interface{} `json:"success"`
		Fail    interface{} `json:"fail"`
	} `json:"mix_data"`
}

func CreateSuccessResponse(_data interface{}) BasicResponse {
	return BasicResponse{
		Status: libconstants.SWAN_API_STATUS_SUCCESS,
		Data:   _data,
		Code:   SuccessCode,
	}
}

func CreateErrorResponse(code int, errMsg ...string) BasicResponse {
	var msg string
	if len(errMsg) == 0 {
		msg = codeMsg[code]
	} else {
		msg = errMsg[0]
	}
	return BasicResponse{
		Status:  libconstants.SWAN_API_STATUS_FAIL,
		Code:    code,
		Message: msg,
	}
}

const (
	SuccessCode = 200
	JsonError   = 400

	AuthError          = 4001
	SignatureError     = 4002
	DepositError       = 4003
	NotFoundError      = 4004
	InvalidStateError  = 4009
	InsufficientError  = 4022
	InvalidParamError  = 4400
	InternalError      = 5000
	InvariantViolation = 5001
)

var codeMsg = map[int]string{
	JsonError: "An error occurred while converting to json",

	AuthError:          "The caller is not allowed to perform this action",
	SignatureError:     "The request signature is missing or invalid",
	DepositError:       "The attached deposit could not be verified",
	NotFoundError:      "The requested record does not exist",
	InvalidStateError:  "The record is not in a state that allows this action",
	InsufficientError:  "Not enough funds, nodes or storage to perform this action",
	InvalidParamError:  "The request parameters are invalid",
	InternalError:      "An internal error occurred",
	InvariantViolation: "The coordinator detected an inconsistent record",
}
