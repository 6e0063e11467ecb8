package client

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"

	"github.com/lagrangedao/go-bounty-coordinator/internal/coordinator"
	"github.com/lagrangedao/go-bounty-coordinator/internal/models"
)

func (c *Client) GetBounty(ctx context.Context, bountyId string) (*models.Bounty, error) {
	var bounty models.Bounty
	if err := c.get(ctx, "/bounties/"+escape(bountyId), &bounty); err != nil {
		return nil, err
	}
	return &bounty, nil
}

func (c *Client) BountiesForOwner(ctx context.Context, ownerId string) ([]*models.Bounty, error) {
	var bounties []*models.Bounty
	err := c.get(ctx, "/owners/"+escape(ownerId)+"/bounties", &bounties)
	return bounties, err
}

func (c *Client) ActiveBounties(ctx context.Context) ([]string, error) {
	var ids []string
	err := c.get(ctx, "/active-bounties", &ids)
	return ids, err
}

func (c *Client) BountyResult(ctx context.Context, bountyId string) (map[string]uint64, error) {
	var result map[string]uint64
	err := c.get(ctx, "/bounties/"+escape(bountyId)+"/result", &result)
	return result, err
}

func (c *Client) Payouts(ctx context.Context, bountyId string) (*coordinator.PayoutSummary, error) {
	var summary coordinator.PayoutSummary
	if err := c.get(ctx, "/bounties/"+escape(bountyId)+"/payouts", &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

func (c *Client) ShouldPostAnswer(ctx context.Context, bountyId, nodeId string) (bool, error) {
	var should bool
	err := c.get(ctx, "/bounties/"+escape(bountyId)+"/should-post/"+escape(nodeId), &should)
	return should, err
}

func (c *Client) CreateBounty(ctx context.Context, req models.CreateBountyReq, deposit *Deposit) (*models.Bounty, error) {
	var bounty models.Bounty
	if err := c.send(ctx, http.MethodPost, "/bounties", req, deposit, &bounty); err != nil {
		return nil, err
	}
	return &bounty, nil
}

// CreateBountyFromManifest posts a YAML bounty manifest as is.
func (c *Client) CreateBountyFromManifest(ctx context.Context, manifest []byte, deposit *Deposit) (*models.Bounty, error) {
	resp, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/bounties",
		body:        manifest,
		contentType: "application/x-yaml",
		deposit:     deposit,
		signed:      true,
	})
	if err != nil {
		return nil, err
	}
	var bounty models.Bounty
	if err := decode(resp.Data, &bounty); err != nil {
		return nil, err
	}
	return &bounty, nil
}

func (c *Client) PostAnswer(ctx context.Context, bountyId string, req models.AnswerReq) (*models.NodeResponse, error) {
	var answer models.NodeResponse
	if err := c.send(ctx, http.MethodPost, "/bounties/"+escape(bountyId)+"/answers", req, nil, &answer); err != nil {
		return nil, err
	}
	return &answer, nil
}

func (c *Client) GetPendingAnswer(ctx context.Context, bountyId, nodeId string) (*models.NodeResponse, error) {
	resp, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/bounties/" + escape(bountyId) + "/pending-answers/" + escape(nodeId),
		signed: true,
	})
	if err != nil {
		return nil, err
	}
	var answer models.NodeResponse
	if err := decode(resp.Data, &answer); err != nil {
		return nil, err
	}
	return &answer, nil
}

func (c *Client) RejectBounty(ctx context.Context, bountyId string, req models.RejectReq) (*models.NodeResponse, error) {
	var answer models.NodeResponse
	if err := c.send(ctx, http.MethodPost, "/bounties/"+escape(bountyId)+"/reject", req, nil, &answer); err != nil {
		return nil, err
	}
	return &answer, nil
}

func (c *Client) CancelBounty(ctx context.Context, bountyId string) (*models.Bounty, error) {
	var bounty models.Bounty
	if err := c.send(ctx, http.MethodPost, "/bounties/"+escape(bountyId)+"/cancel", nil, nil, &bounty); err != nil {
		return nil, err
	}
	return &bounty, nil
}

func (c *Client) CancelAllMyBounties(ctx context.Context) ([]string, error) {
	var cancelled []string
	err := c.send(ctx, http.MethodPost, "/cancel-all-bounties", nil, nil, &cancelled)
	return cancelled, err
}

func (c *Client) ReelectUnansweredNodes(ctx context.Context, bountyId string) ([]string, error) {
	var elected []string
	err := c.send(ctx, http.MethodPost, "/bounties/"+escape(bountyId)+"/reelect", nil, nil, &elected)
	return elected, err
}

func (c *Client) AddStorageDeposit(ctx context.Context, bountyId string, deposit *Deposit) (*models.Bounty, error) {
	var bounty models.Bounty
	if err := c.send(ctx, http.MethodPost, "/bounties/"+escape(bountyId)+"/storage", nil, deposit, &bounty); err != nil {
		return nil, err
	}
	return &bounty, nil
}

func (c *Client) AddRewardDeposit(ctx context.Context, bountyId string, deposit *Deposit) (*models.Bounty, error) {
	var bounty models.Bounty
	if err := c.send(ctx, http.MethodPost, "/bounties/"+escape(bountyId)+"/reward", nil, deposit, &bounty); err != nil {
		return nil, err
	}
	return &bounty, nil
}

func (c *Client) CollectReward(ctx context.Context, bountyId, nodeId string) (*big.Int, error) {
	var result models.CollectResult
	if err := c.send(ctx, http.MethodPost, "/bounties/"+escape(bountyId)+"/collect", models.CollectReq{NodeId: nodeId}, nil, &result); err != nil {
		return nil, err
	}
	return parseWei(result.Amount)
}

// CollectRewards claims several bounties at once. Failed claims are keyed by bounty id.
func (c *Client) CollectRewards(ctx context.Context, nodeId string, bountyIds []string) ([]models.CollectResult, map[string]string, error) {
	body, err := json.Marshal(models.BatchCollectReq{NodeId: nodeId, BountyIds: bountyIds})
	if err != nil {
		return nil, nil, err
	}
	resp, err := c.do(ctx, request{method: http.MethodPost, path: "/rewards/collect", body: body, signed: true})
	if err != nil {
		return nil, nil, err
	}
	var mixed struct {
		Success []models.CollectResult `json:"success"`
		Fail    map[string]string      `json:"fail"`
	}
	if err := decode(resp.MixData, &mixed); err != nil {
		return nil, nil, err
	}
	return mixed.Success, mixed.Fail, nil
}

func (c *Client) ReclaimReward(ctx context.Context, bountyId string) (*big.Int, error) {
	var result models.CollectResult
	if err := c.send(ctx, http.MethodPost, "/bounties/"+escape(bountyId)+"/reclaim", nil, nil, &result); err != nil {
		return nil, err
	}
	return parseWei(result.Amount)
}
