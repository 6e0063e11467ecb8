package api

import (
	"github.com/filswan/go-mcs-sdk/mcs/api/common/logs"
	"github.com/gin-gonic/gin"
	"github.com/lagrangedao/go-bounty-coordinator/constants"
	"github.com/lagrangedao/go-bounty-coordinator/internal/coordinator"
	"github.com/lagrangedao/go-bounty-coordinator/internal/models"
)

func (s *Server) attachment(c *gin.Context) (models.Attachment, error) {
	return s.deposits.Attachment(c.Request.Context(), callerOf(c),
		c.GetHeader(constants.HEADER_DEPOSIT_TX), c.GetHeader(constants.HEADER_ATTACHED_DEPOSIT))
}

func (s *Server) registerNode(c *gin.Context) {
	var req models.RegisterNodeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	att, err := s.attachment(c)
	if err != nil {
		respondError(c, err)
		return
	}
	logs.GetLogger().Infof("register node request from %s: %+v", callerOf(c), req)

	node, err := s.coordinator.RegisterNode(callerOf(c), req.Name, coordinator.NodeSettings{
		AbsoluteTimeout: req.AbsoluteTimeout,
		AllowNetwork:    req.AllowNetwork,
		AllowGpu:        req.AllowGpu,
	}, att)
	respond(c, node, err)
}

func (s *Server) updateNode(c *gin.Context) {
	var req models.UpdateNodeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	node, err := s.coordinator.UpdateNode(callerOf(c), c.Param("node_id"), coordinator.NodeSettings{
		AbsoluteTimeout: req.AbsoluteTimeout,
		AllowNetwork:    req.AllowNetwork,
		AllowGpu:        req.AllowGpu,
	})
	respond(c, node, err)
}

func (s *Server) removeNode(c *gin.Context) {
	nodeId := c.Param("node_id")
	refunded, err := s.coordinator.RemoveNode(callerOf(c), nodeId)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, models.RemoveNodeResult{NodeId: nodeId, Refunded: refunded.String()}, nil)
}

func (s *Server) setNodeOffline(c *gin.Context) {
	var req models.OfflineReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	node, err := s.coordinator.SetNodeOffline(callerOf(c), c.Param("node_id"), req.Offline)
	respond(c, node, err)
}
