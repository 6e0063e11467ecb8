package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lagrangedao/go-bounty-coordinator/internal/coordinator"
	"github.com/lagrangedao/go-bounty-coordinator/util"
	"golang.org/x/xerrors"
)

const defaultPageSize = 20

func (s *Server) stats(c *gin.Context) {
	stats, err := s.coordinator.Stats()
	respond(c, stats, err)
}

func pagination(c *gin.Context) (page, size int, err error) {
	if page, err = strconv.Atoi(c.DefaultQuery("page", "1")); err != nil || page < 1 {
		return 0, 0, xerrors.Errorf("page must be a positive number: %w", coordinator.ErrInvalidArgument)
	}
	if size, err = strconv.Atoi(c.DefaultQuery("size", strconv.Itoa(defaultPageSize))); err != nil || size < 1 {
		return 0, 0, xerrors.Errorf("size must be a positive number: %w", coordinator.ErrInvalidArgument)
	}
	return page, size, nil
}

func (s *Server) listNodes(c *gin.Context) {
	page, size, err := pagination(c)
	if err != nil {
		respondError(c, err)
		return
	}
	nodes, err := s.coordinator.GetNodes()
	if err != nil {
		respondError(c, err)
		return
	}

	total := len(nodes)
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	resp := util.CreateSuccessResponse(nodes[start:end])
	resp.PageInfo = &util.PageInfo{
		PageNumber:       strconv.Itoa(page),
		PageSize:         strconv.Itoa(size),
		TotalRecordCount: strconv.Itoa(total),
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getNode(c *gin.Context) {
	node, err := s.coordinator.GetNode(c.Param("node_id"))
	respond(c, node, err)
}

func (s *Server) ownerNodes(c *gin.Context) {
	nodes, err := s.coordinator.NodesForOwner(c.Param("owner_id"))
	respond(c, nodes, err)
}

func (s *Server) ownerBounties(c *gin.Context) {
	bounties, err := s.coordinator.BountiesForOwner(c.Param("owner_id"))
	respond(c, bounties, err)
}

func (s *Server) ownerEarnings(c *gin.Context) {
	earnings, err := s.coordinator.LifetimeEarningsForOwner(c.Param("owner_id"))
	respond(c, earnings, err)
}

func (s *Server) listBounties(c *gin.Context) {
	bounties, err := s.coordinator.GetBounties()
	respond(c, bounties, err)
}

func (s *Server) activeBounties(c *gin.Context) {
	ids, err := s.coordinator.ActiveBounties()
	respond(c, ids, err)
}

func (s *Server) getBounty(c *gin.Context) {
	bounty, err := s.coordinator.GetBounty(c.Param("bounty_id"))
	respond(c, bounty, err)
}

func (s *Server) bountyNodes(c *gin.Context) {
	ids, err := s.coordinator.BountyNodes(c.Param("bounty_id"), coordinator.NodeSetKind(c.Param("kind")))
	respond(c, ids, err)
}

func (s *Server) answerCounts(c *gin.Context) {
	counts, err := s.coordinator.AnswerCounts(c.Param("bounty_id"))
	respond(c, counts, err)
}

func (s *Server) bountyResult(c *gin.Context) {
	result, err := s.coordinator.BountyResult(c.Param("bounty_id"))
	respond(c, result, err)
}

func (s *Server) getAnswer(c *gin.Context) {
	answer, err := s.coordinator.GetAnswer(c.Param("bounty_id"), c.Param("node_id"))
	respond(c, answer, err)
}

func (s *Server) getPendingAnswer(c *gin.Context) {
	answer, err := s.coordinator.GetPendingAnswer(callerOf(c), c.Param("bounty_id"), c.Param("node_id"))
	respond(c, answer, err)
}

func (s *Server) payouts(c *gin.Context) {
	summary, err := s.coordinator.Payouts(c.Param("bounty_id"))
	respond(c, summary, err)
}

func (s *Server) shouldPostAnswer(c *gin.Context) {
	should, err := s.coordinator.ShouldPostAnswer(c.Param("bounty_id"), c.Param("node_id"))
	respond(c, should, err)
}

func (s *Server) shouldCollectReward(c *gin.Context) {
	should, err := s.coordinator.ShouldCollectReward(c.Param("node_id"), c.Param("bounty_id"))
	respond(c, should, err)
}
