package client

import (
	"context"
	"math/big"
	"net/http"

	"github.com/lagrangedao/go-bounty-coordinator/internal/coordinator"
	"github.com/lagrangedao/go-bounty-coordinator/internal/models"
)

func (c *Client) Stats(ctx context.Context) (*coordinator.Stats, error) {
	var stats coordinator.Stats
	if err := c.get(ctx, "/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) GetNode(ctx context.Context, nodeId string) (*models.Node, error) {
	var node models.Node
	if err := c.get(ctx, "/nodes/"+escape(nodeId), &node); err != nil {
		return nil, err
	}
	return &node, nil
}

func (c *Client) NodesForOwner(ctx context.Context, ownerId string) ([]*models.Node, error) {
	var nodes []*models.Node
	err := c.get(ctx, "/owners/"+escape(ownerId)+"/nodes", &nodes)
	return nodes, err
}

func (c *Client) LifetimeEarnings(ctx context.Context, ownerId string) (*big.Int, error) {
	earnings := new(big.Int)
	if err := c.get(ctx, "/owners/"+escape(ownerId)+"/earnings", earnings); err != nil {
		return nil, err
	}
	return earnings, nil
}

func (c *Client) RegisterNode(ctx context.Context, req models.RegisterNodeReq, deposit *Deposit) (*models.Node, error) {
	var node models.Node
	if err := c.send(ctx, http.MethodPost, "/nodes", req, deposit, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

func (c *Client) UpdateNode(ctx context.Context, nodeId string, req models.UpdateNodeReq) (*models.Node, error) {
	var node models.Node
	if err := c.send(ctx, http.MethodPut, "/nodes/"+escape(nodeId), req, nil, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

func (c *Client) SetNodeOffline(ctx context.Context, nodeId string, offline bool) (*models.Node, error) {
	var node models.Node
	if err := c.send(ctx, http.MethodPut, "/nodes/"+escape(nodeId)+"/offline", models.OfflineReq{Offline: offline}, nil, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// RemoveNode deregisters the node and returns the refunded deposit.
func (c *Client) RemoveNode(ctx context.Context, nodeId string) (*big.Int, error) {
	var result models.RemoveNodeResult
	if err := c.send(ctx, http.MethodDelete, "/nodes/"+escape(nodeId), nil, nil, &result); err != nil {
		return nil, err
	}
	return parseWei(result.Refunded)
}
