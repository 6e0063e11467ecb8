package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/lagrangedao/go-bounty-coordinator/internal/models"
	"github.com/lagrangedao/go-bounty-coordinator/util"
	"github.com/urfave/cli/v2"
)

var nodeCmd = &cli.Command{
	Name:  "node",
	Usage: "Manage worker nodes",
	Subcommands: []*cli.Command{
		nodeList,
		nodeInfo,
		nodeRegister,
		nodeUpdate,
		nodeOffline,
		nodeOnline,
		nodeRemove,
		nodeCollect,
	},
}

var settingFlags = []cli.Flag{
	&cli.DurationFlag{
		Name:  "timeout",
		Usage: "longest bounty the node accepts to run",
		Value: 10 * time.Minute,
	},
	&cli.BoolFlag{
		Name:  "network",
		Usage: "the node allows bounties to use the network",
	},
	&cli.BoolFlag{
		Name:  "gpu",
		Usage: "the node offers a gpu",
	},
}

var nodeList = &cli.Command{
	Name:      "list",
	Usage:     "List the nodes of an owner",
	ArgsUsage: "[owner]",
	Flags:     apiFlags,
	Action: func(cctx *cli.Context) error {
		ctx := reqContext(cctx)
		c, closer, err := newClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		owner := cctx.Args().First()
		if owner == "" {
			owner = cctx.String(FlagFrom)
		}
		if owner == "" {
			return fmt.Errorf("must specify the owner or --%s", FlagFrom)
		}
		nodes, err := c.NodesForOwner(ctx, owner)
		if err != nil {
			return err
		}

		table := NewVisualTable([]string{"NODE ID", "STATUS", "TIMEOUT", "NETWORK", "GPU", "SUCCESS", "FAILED", "UNANSWERED", "REJECTED", "EARNINGS"})
		for _, n := range nodes {
			table.AddRow([]string{
				n.Id,
				nodeStatus(n),
				(time.Duration(n.AbsoluteTimeout) * time.Millisecond).String(),
				strconv.FormatBool(n.AllowNetwork),
				strconv.FormatBool(n.AllowGpu),
				strconv.FormatUint(n.SuccessfulRuns, 10),
				strconv.FormatUint(n.FailedRuns, 10),
				strconv.FormatUint(n.UnansweredRuns, 10),
				strconv.FormatUint(n.RejectedRuns, 10),
				util.FormatEther(n.LifetimeEarnings),
			}, 1)
		}
		table.Generate()
		return nil
	},
}

var nodeInfo = &cli.Command{
	Name:      "info",
	Usage:     "Show a node",
	ArgsUsage: "<node id>",
	Flags:     apiFlags,
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return fmt.Errorf("must specify the node id")
		}
		ctx := reqContext(cctx)
		c, closer, err := newClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		n, err := c.GetNode(ctx, cctx.Args().First())
		if err != nil {
			return err
		}
		table := NewVisualTable([]string{"FIELD", "VALUE"})
		table.AddRow([]string{"Id", n.Id}, 1)
		table.AddRow([]string{"Owner", n.OwnerId}, 1)
		table.AddRow([]string{"Status", nodeStatus(n)}, 1)
		table.AddRow([]string{"Deposit", util.FormatEther(n.Deposit) + " ether"}, 1)
		table.AddRow([]string{"Earnings", util.FormatEther(n.LifetimeEarnings) + " ether"}, 1)
		table.AddRow([]string{"Registered", time.UnixMilli(n.RegistrationTime).Format(time.RFC3339)}, 1)
		table.Generate()
		return nil
	},
}

var nodeRegister = &cli.Command{
	Name:      "register",
	Usage:     "Register a node, paying its refundable deposit",
	ArgsUsage: "<name>",
	Flags:     withFlags(apiFlags, depositFlags, settingFlags),
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return fmt.Errorf("must specify the node name")
		}
		ctx := reqContext(cctx)
		c, closer, err := newClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		n, err := c.RegisterNode(ctx, models.RegisterNodeReq{
			Name:            cctx.Args().First(),
			AbsoluteTimeout: uint64(cctx.Duration("timeout").Milliseconds()),
			AllowNetwork:    cctx.Bool("network"),
			AllowGpu:        cctx.Bool("gpu"),
		}, deposit(cctx))
		if err != nil {
			return err
		}
		fmt.Printf("registered node %s\n", color.GreenString(n.Id))
		return nil
	},
}

var nodeUpdate = &cli.Command{
	Name:      "update",
	Usage:     "Change the capabilities of a node",
	ArgsUsage: "<node id>",
	Flags:     withFlags(apiFlags, settingFlags),
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return fmt.Errorf("must specify the node id")
		}
		ctx := reqContext(cctx)
		c, closer, err := newClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		n, err := c.UpdateNode(ctx, cctx.Args().First(), models.UpdateNodeReq{
			AbsoluteTimeout: uint64(cctx.Duration("timeout").Milliseconds()),
			AllowNetwork:    cctx.Bool("network"),
			AllowGpu:        cctx.Bool("gpu"),
		})
		if err != nil {
			return err
		}
		fmt.Printf("updated node %s\n", n.Id)
		return nil
	},
}

func toggleOffline(offline bool) cli.ActionFunc {
	return func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return fmt.Errorf("must specify the node id")
		}
		ctx := reqContext(cctx)
		c, closer, err := newClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		n, err := c.SetNodeOffline(ctx, cctx.Args().First(), offline)
		if err != nil {
			return err
		}
		fmt.Printf("node %s is now %s\n", n.Id, nodeStatus(n))
		return nil
	}
}

var nodeOffline = &cli.Command{
	Name:      "offline",
	Usage:     "Stop a node from being elected",
	ArgsUsage: "<node id>",
	Flags:     apiFlags,
	Action:    toggleOffline(true),
}

var nodeOnline = &cli.Command{
	Name:      "online",
	Usage:     "Put an offline node back into the election queue",
	ArgsUsage: "<node id>",
	Flags:     apiFlags,
	Action:    toggleOffline(false),
}

var nodeRemove = &cli.Command{
	Name:      "remove",
	Usage:     "Deregister a node and refund its deposit",
	ArgsUsage: "<node id>",
	Flags:     apiFlags,
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return fmt.Errorf("must specify the node id")
		}
		ctx := reqContext(cctx)
		c, closer, err := newClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		refund, err := c.RemoveNode(ctx, cctx.Args().First())
		if err != nil {
			return err
		}
		fmt.Printf("removed node %s, refunding %s ether\n", cctx.Args().First(), util.FormatEther(refund))
		return nil
	},
}

var nodeCollect = &cli.Command{
	Name:      "collect",
	Usage:     "Collect the rewards of a node",
	ArgsUsage: "<node id> <bounty id>...",
	Flags:     apiFlags,
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() < 2 {
			return fmt.Errorf("must specify the node id and at least one bounty id")
		}
		ctx := reqContext(cctx)
		c, closer, err := newClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		collected, failed, err := c.CollectRewards(ctx, cctx.Args().First(), cctx.Args().Tail())
		if err != nil {
			return err
		}
		for _, result := range collected {
			amount, _ := util.ParseAmount(result.Amount)
			fmt.Printf("%s %s: %s ether\n", color.GreenString("collected"), result.BountyId, util.FormatEther(amount))
		}
		for bountyId, reason := range failed {
			fmt.Printf("%s %s: %s\n", color.RedString("failed"), bountyId, reason)
		}
		return nil
	},
}
