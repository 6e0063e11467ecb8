package api

import (
	"io"
	"math/big"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lagrangedao/go-bounty-coordinator/internal/coordinator"
	"github.com/lagrangedao/go-bounty-coordinator/internal/models"
	"github.com/lagrangedao/go-bounty-coordinator/util"
	"github.com/lagrangedao/go-bounty-coordinator/yaml"
	"golang.org/x/xerrors"
)

func parseAmount(field, value string) (*big.Int, error) {
	if strings.TrimSpace(value) == "" {
		return new(big.Int), nil
	}
	amount, err := util.ParseAmount(value)
	if err != nil {
		return nil, xerrors.Errorf("%s: %s: %w", field, err, coordinator.ErrInvalidArgument)
	}
	return amount, nil
}

func bountyRequest(c *gin.Context) (*coordinator.BountyRequest, error) {
	if strings.Contains(c.ContentType(), "yaml") {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return nil, err
		}
		req, err := yaml.ParseManifest(body)
		if err != nil {
			return nil, xerrors.Errorf("%s: %w", err, coordinator.ErrInvalidArgument)
		}
		return req, nil
	}

	var req models.CreateBountyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, xerrors.Errorf("%s: %w", err, coordinator.ErrInvalidArgument)
	}
	storage, err := parseAmount("amt_storage", req.AmtStorage)
	if err != nil {
		return nil, err
	}
	reward, err := parseAmount("amt_node_reward", req.AmtNodeReward)
	if err != nil {
		return nil, err
	}
	return &coordinator.BountyRequest{
		FileLocation:         req.FileLocation,
		FileDownloadProtocol: req.FileDownloadProtocol,
		MinNodes:             req.MinNodes,
		TimeoutSeconds:       req.TimeoutSeconds,
		NetworkRequired:      req.NetworkRequired,
		GpuRequired:          req.GpuRequired,
		AmtStorage:           storage,
		AmtNodeReward:        reward,
	}, nil
}

// createBounty accepts either a JSON body or a YAML manifest.
func (s *Server) createBounty(c *gin.Context) {
	req, err := bountyRequest(c)
	if err != nil {
		respondError(c, err)
		return
	}
	att, err := s.attachment(c)
	if err != nil {
		respondError(c, err)
		return
	}
	bounty, err := s.coordinator.CreateBounty(callerOf(c), *req, att)
	respond(c, bounty, err)
}

func (s *Server) postAnswer(c *gin.Context) {
	var req models.AnswerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	answer, err := s.coordinator.PostAnswer(callerOf(c), c.Param("bounty_id"), req.NodeId, req.Solution, req.Message, req.Status)
	respond(c, answer, err)
}

func (s *Server) rejectBounty(c *gin.Context) {
	var req models.RejectReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	answer, err := s.coordinator.RejectBounty(callerOf(c), c.Param("bounty_id"), req.NodeId, req.Message)
	respond(c, answer, err)
}

func (s *Server) cancelBounty(c *gin.Context) {
	bounty, err := s.coordinator.CancelBounty(callerOf(c), c.Param("bounty_id"))
	respond(c, bounty, err)
}

func (s *Server) cancelAllBounties(c *gin.Context) {
	cancelled, err := s.coordinator.CancelAllMyBounties(callerOf(c))
	respond(c, cancelled, err)
}

func (s *Server) reelect(c *gin.Context) {
	elected, err := s.coordinator.ReelectUnansweredNodes(callerOf(c), c.Param("bounty_id"))
	respond(c, elected, err)
}

func (s *Server) addStorageDeposit(c *gin.Context) {
	att, err := s.attachment(c)
	if err != nil {
		respondError(c, err)
		return
	}
	bounty, err := s.coordinator.AddStorageDeposit(callerOf(c), c.Param("bounty_id"), att)
	respond(c, bounty, err)
}

func (s *Server) addRewardDeposit(c *gin.Context) {
	att, err := s.attachment(c)
	if err != nil {
		respondError(c, err)
		return
	}
	bounty, err := s.coordinator.AddRewardDeposit(callerOf(c), c.Param("bounty_id"), att)
	respond(c, bounty, err)
}

func (s *Server) collectReward(c *gin.Context) {
	var req models.CollectReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	bountyId := c.Param("bounty_id")
	amount, err := s.coordinator.CollectReward(callerOf(c), req.NodeId, bountyId)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, models.CollectResult{BountyId: bountyId, Amount: amount.String()}, nil)
}

// collectRewards claims several bounties for one node. Each claim commits on its own.
func (s *Server) collectRewards(c *gin.Context) {
	var req models.BatchCollectReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if len(req.BountyIds) == 0 {
		c.JSON(http.StatusBadRequest, util.CreateErrorResponse(util.InvalidParamError, "bounty_ids must not be empty"))
		return
	}

	var collected []models.CollectResult
	failed := make(map[string]string)
	for _, bountyId := range req.BountyIds {
		amount, err := s.coordinator.CollectReward(callerOf(c), req.NodeId, bountyId)
		if err != nil {
			failed[bountyId] = err.Error()
			continue
		}
		collected = append(collected, models.CollectResult{BountyId: bountyId, Amount: amount.String()})
	}

	var resp util.MixedResponse
	resp.BasicResponse = util.CreateSuccessResponse(nil)
	resp.MixData.Success = collected
	resp.MixData.Fail = failed
	c.JSON(http.StatusOK, resp)
}

func (s *Server) reclaim(c *gin.Context) {
	bountyId := c.Param("bounty_id")
	amount, err := s.coordinator.ReclaimRewardFromDroppedNodes(callerOf(c), bountyId)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, models.CollectResult{BountyId: bountyId, Amount: amount.String()}, nil)
}
