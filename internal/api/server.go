package api

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/lagrangedao/go-bounty-coordinator/internal/coordinator"
	"github.com/lagrangedao/go-bounty-coordinator/internal/models"
)

// DepositSource turns the deposit headers of a request into attached funds.
type DepositSource interface {
	Attachment(ctx context.Context, caller, txHash, declared string) (models.Attachment, error)
}

type Server struct {
	coordinator *coordinator.Coordinator
	deposits    DepositSource
	events      gin.HandlerFunc
	clock       clock.Clock
}

type Option func(*Server)

func WithClock(clk clock.Clock) Option {
	return func(s *Server) {
		s.clock = clk
	}
}

// WithEventStream serves the websocket event feed on GET /events.
func WithEventStream(h gin.HandlerFunc) Option {
	return func(s *Server) {
		s.events = h
	}
}

func NewServer(c *coordinator.Coordinator, deposits DepositSource, opts ...Option) *Server {
	s := &Server{
		coordinator: c,
		deposits:    deposits,
		clock:       clock.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Register(router *gin.RouterGroup) {
	router.GET("/stats", s.stats)
	router.GET("/nodes", s.listNodes)
	router.GET("/nodes/:node_id", s.getNode)
	router.GET("/owners/:owner_id/nodes", s.ownerNodes)
	router.GET("/owners/:owner_id/bounties", s.ownerBounties)
	router.GET("/owners/:owner_id/earnings", s.ownerEarnings)
	router.GET("/bounties", s.listBounties)
	router.GET("/active-bounties", s.activeBounties)
	router.GET("/bounties/:bounty_id", s.getBounty)
	router.GET("/bounties/:bounty_id/nodes/:kind", s.bountyNodes)
	router.GET("/bounties/:bounty_id/answer-counts", s.answerCounts)
	router.GET("/bounties/:bounty_id/result", s.bountyResult)
	router.GET("/bounties/:bounty_id/answers/:node_id", s.getAnswer)
	router.GET("/bounties/:bounty_id/payouts", s.payouts)
	router.GET("/bounties/:bounty_id/should-post/:node_id", s.shouldPostAnswer)
	router.GET("/bounties/:bounty_id/should-collect/:node_id", s.shouldCollectReward)
	if s.events != nil {
		router.GET("/events", s.events)
	}

	auth := router.Group("", s.authenticate)
	auth.POST("/nodes", s.registerNode)
	auth.PUT("/nodes/:node_id", s.updateNode)
	auth.DELETE("/nodes/:node_id", s.removeNode)
	auth.PUT("/nodes/:node_id/offline", s.setNodeOffline)
	auth.POST("/bounties", s.createBounty)
	auth.POST("/cancel-all-bounties", s.cancelAllBounties)
	auth.POST("/bounties/:bounty_id/answers", s.postAnswer)
	auth.GET("/bounties/:bounty_id/pending-answers/:node_id", s.getPendingAnswer)
	auth.POST("/bounties/:bounty_id/reject", s.rejectBounty)
	auth.POST("/bounties/:bounty_id/cancel", s.cancelBounty)
	auth.POST("/bounties/:bounty_id/reelect", s.reelect)
	auth.POST("/bounties/:bounty_id/storage", s.addStorageDeposit)
	auth.POST("/bounties/:bounty_id/reward", s.addRewardDeposit)
	auth.POST("/bounties/:bounty_id/collect", s.collectReward)
	auth.POST("/bounties/:bounty_id/reclaim", s.reclaim)
	auth.POST("/rewards/collect", s.collectRewards)
}
