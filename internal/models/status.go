package models

import (
	"encoding/json"
	"fmt"
)

type DownloadProtocol string

const (
	ProtocolIPFS  DownloadProtocol = "IPFS"
	ProtocolHTTPS DownloadProtocol = "HTTPS"
	ProtocolGIT   DownloadProtocol = "GIT"
	ProtocolEmpty DownloadProtocol = "EMPTY"
)

func (p DownloadProtocol) Valid() bool {
	switch p {
	case ProtocolIPFS, ProtocolHTTPS, ProtocolGIT, ProtocolEmpty:
		return true
	}
	return false
}

func (p *DownloadProtocol) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, (*string)(p), func() bool { return p.Valid() }, "download protocol")
}

type NodeResponseStatus string

const (
	ResponseSuccess NodeResponseStatus = "SUCCESS"
	ResponseFailure NodeResponseStatus = "FAILURE"
	ResponseReject  NodeResponseStatus = "REJECT"
)

func (s NodeResponseStatus) Valid() bool {
	switch s {
	case ResponseSuccess, ResponseFailure, ResponseReject:
		return true
	}
	return false
}

func (s *NodeResponseStatus) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, (*string)(s), func() bool { return s.Valid() }, "response status")
}

type BountyStatus string

const (
	BountyPending   BountyStatus = "Pending"
	BountyFailed    BountyStatus = "Failed"
	BountySuccess   BountyStatus = "Success"
	BountyCancelled BountyStatus = "Cancelled"
)

func (s BountyStatus) Valid() bool {
	switch s {
	case BountyPending, BountyFailed, BountySuccess, BountyCancelled:
		return true
	}
	return false
}

func (s *BountyStatus) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, (*string)(s), func() bool { return s.Valid() }, "bounty status")
}

// PayoutStrategy decides which elected nodes share the reward pool.
type PayoutStrategy string

const (
	PayoutSuccessfulNodes  PayoutStrategy = "SuccessfulNodes"
	PayoutFailedNodes      PayoutStrategy = "FailedNodes"
	PayoutAllAnsweredNodes PayoutStrategy = "AllAnsweredNodes"
)

func (s PayoutStrategy) Valid() bool {
	switch s {
	case PayoutSuccessfulNodes, PayoutFailedNodes, PayoutAllAnsweredNodes:
		return true
	}
	return false
}

func (s *PayoutStrategy) UnmarshalJSON(data []byte) error {
	return unmarshalEnum(data, (*string)(s), func() bool { return s.Valid() }, "payout strategy")
}

func unmarshalEnum(data []byte, dst *string, valid func() bool, kind string) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*dst = raw
	if !valid() {
		return fmt.Errorf("unsupported %s: %q", kind, raw)
	}
	return nil
}
