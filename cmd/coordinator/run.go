package main

import (
	"context"
	"strconv"
	"time"

	"github.com/filswan/go-mcs-sdk/mcs/api/common/logs"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/itsjamie/gin-cors"
	"github.com/lagrangedao/go-bounty-coordinator/conf"
	"github.com/lagrangedao/go-bounty-coordinator/internal/api"
	"github.com/lagrangedao/go-bounty-coordinator/internal/initializer"
	"github.com/lagrangedao/go-bounty-coordinator/util"
	"github.com/urfave/cli/v2"
)

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "Start the coordinator service",
	Action: func(cctx *cli.Context) error {
		logs.GetLogger().Info("Start in bounty coordinator mode.")

		service, err := initializer.ProjectInit(repoPath(cctx))
		if err != nil {
			return err
		}
		defer service.Close()

		ctx, cancel := context.WithCancel(cctx.Context)
		defer cancel()
		service.StartWorkers(ctx)

		r := gin.Default()
		r.Use(cors.Middleware(cors.Config{
			Origins:         "*",
			Methods:         "GET, PUT, POST, DELETE",
			RequestHeaders:  "Origin, Authorization, Content-Type, X-Account, X-Timestamp, X-Signature, X-Deposit-Tx, X-Attached-Deposit",
			ExposedHeaders:  "",
			MaxAge:          50 * time.Second,
			ValidateHeaders: false,
		}))
		pprof.Register(r)

		v1 := r.Group("/api/v1")
		api.NewServer(service.Coordinator, service.Deposits, api.WithEventStream(service.Hub.ServeWs)).Register(v1)

		apiCfg := conf.GetConfig().API
		shutdownChan := make(chan struct{})
		httpStopper, err := util.ServeHttp(r, "coordinator-api", ":"+strconv.Itoa(apiCfg.Port), apiCfg.CrtFile, apiCfg.KeyFile)
		if err != nil {
			logs.GetLogger().Fatalf("failed to start coordinator-api endpoint: %s", err)
		}

		finishCh := util.MonitorShutdown(shutdownChan,
			util.ShutdownHandler{Component: "coordinator-api", StopFunc: httpStopper},
			util.ShutdownHandler{Component: "workers", StopFunc: func(context.Context) error {
				cancel()
				return nil
			}},
		)
		logs.GetLogger().Infof("coordinator %s is serving on port %d", service.Coordinator.AccountId(), apiCfg.Port)
		<-finishCh

		return nil
	},
}
