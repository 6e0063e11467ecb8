package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/lagrangedao/go-bounty-coordinator/internal/models"
	"github.com/lagrangedao/go-bounty-coordinator/util"
	"github.com/lagrangedao/go-bounty-coordinator/yaml"
	"github.com/urfave/cli/v2"
)

var bountyCmd = &cli.Command{
	Name:  "bounty",
	Usage: "Manage bounties",
	Subcommands: []*cli.Command{
		bountyList,
		bountyInfo,
		bountyCreate,
		bountyAnswer,
		bountyReject,
		bountyPendingAnswer,
		bountyCancel,
		bountyCancelAll,
		bountyReelect,
		bountyTopUp,
		bountyResult,
		bountyReclaim,
	},
}

func bountyArg(cctx *cli.Context) (string, error) {
	if cctx.NArg() < 1 {
		return "", fmt.Errorf("must specify the bounty id")
	}
	return cctx.Args().First(), nil
}

var bountyList = &cli.Command{
	Name:      "list",
	Usage:     "List the bounties of an owner, or every active bounty with --active",
	ArgsUsage: "[owner]",
	Flags: withFlags(apiFlags, []cli.Flag{
		&cli.BoolFlag{
			Name:  "active",
			Usage: "list the ids of all pending bounties",
		},
	}),
	Action: func(cctx *cli.Context) error {
		ctx := reqContext(cctx)
		c, closer, err := newClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		if cctx.Bool("active") {
			ids, err := c.ActiveBounties(ctx)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		}

		owner := cctx.Args().First()
		if owner == "" {
			owner = cctx.String(FlagFrom)
		}
		if owner == "" {
			return fmt.Errorf("must specify the owner or --%s", FlagFrom)
		}
		bounties, err := c.BountiesForOwner(ctx, owner)
		if err != nil {
			return err
		}

		table := NewVisualTable([]string{"BOUNTY ID", "STATUS", "MIN NODES", "ELECTED", "SUCCESS", "FAILED", "STORAGE", "REWARD", "CREATED"})
		for _, b := range bounties {
			table.AddRow([]string{
				b.Id,
				string(b.Status),
				strconv.FormatUint(b.MinNodes, 10),
				strconv.Itoa(len(b.ElectedNodes)),
				strconv.FormatUint(b.SuccessfulNodes.Len(), 10),
				strconv.FormatUint(b.FailedNodes.Len(), 10),
				util.FormatEther(b.AmtStorage),
				util.FormatEther(b.AmtNodeReward),
				time.UnixMilli(b.BountyCreated).Format(time.RFC3339),
			}, 1)
		}
		table.Generate()
		return nil
	},
}

var bountyInfo = &cli.Command{
	Name:      "info",
	Usage:     "Show a bounty and its elected nodes",
	ArgsUsage: "<bounty id>",
	Flags:     apiFlags,
	Action: func(cctx *cli.Context) error {
		bountyId, err := bountyArg(cctx)
		if err != nil {
			return err
		}
		ctx := reqContext(cctx)
		c, closer, err := newClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		b, err := c.GetBounty(ctx, bountyId)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s (%s %s)\n", b.Id, statusString(b.Status), b.FileDownloadProtocol, b.FileLocation)
		fmt.Printf("owner %s, needs %d answers within %ds, storage used %d bytes\n", b.OwnerId, b.MinNodes, b.TimeoutSeconds, b.StorageUsed)

		table := NewVisualTable([]string{"NODE ID", "ANSWER", "PAID"})
		for _, nodeId := range b.ElectedNodes {
			answer := "-"
			paid := "-"
			if r, ok := b.Answers[nodeId]; ok {
				answer = string(r.Status)
				paid = strconv.FormatBool(r.PayoutClaimed)
			}
			table.AddRow([]string{nodeId, answer, paid}, 1)
		}
		table.Generate()
		return nil
	},
}

func statusString(s models.BountyStatus) string {
	switch s {
	case models.BountySuccess:
		return color.GreenString(string(s))
	case models.BountyFailed:
		return color.RedString(string(s))
	case models.BountyPending:
		return color.YellowString(string(s))
	}
	return string(s)
}

var bountyCreate = &cli.Command{
	Name:      "create",
	Usage:     "Create a bounty from a YAML manifest",
	ArgsUsage: "<manifest.yaml>",
	Flags:     withFlags(apiFlags, depositFlags),
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return fmt.Errorf("must specify the manifest file")
		}
		path := cctx.Args().First()
		req, err := yaml.HandlerYaml(path)
		if err != nil {
			return err
		}
		manifest, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		ctx := reqContext(cctx)
		c, closer, err := newClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		dep := deposit(cctx)
		if dep == nil {
			total := util.FormatEther(req.AmtStorage) + " + " + util.FormatEther(req.AmtNodeReward)
			return fmt.Errorf("the bounty must be funded with %s ether, pass --deposit-tx or --deposit", total)
		}
		b, err := c.CreateBountyFromManifest(ctx, manifest, dep)
		if err != nil {
			return err
		}
		fmt.Printf("created bounty %s, elected: %s\n", color.GreenString(b.Id), strings.Join(b.ElectedNodes, ", "))
		return nil
	},
}

var bountyAnswer = &cli.Command{
	Name:      "answer",
	Usage:     "Post the answer of an elected node",
	ArgsUsage: "<bounty id> <node id> <solution>",
	Flags: withFlags(apiFlags, []cli.Flag{
		&cli.BoolFlag{
			Name:  "failed",
			Usage: "the node failed to run the bounty",
		},
		&cli.StringFlag{
			Name:  "message",
			Usage: "message stored alongside the answer",
		},
	}),
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 3 {
			return fmt.Errorf("need three params: the bounty id, node id and solution")
		}
		ctx := reqContext(cctx)
		c, closer, err := newClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		status := models.ResponseSuccess
		if cctx.Bool("failed") {
			status = models.ResponseFailure
		}
		_, err = c.PostAnswer(ctx, cctx.Args().Get(0), models.AnswerReq{
			NodeId:   cctx.Args().Get(1),
			Solution: cctx.Args().Get(2),
			Message:  cctx.String("message"),
			Status:   status,
		})
		if err != nil {
			return err
		}
		fmt.Println("answer posted")
		return nil
	},
}

var bountyReject = &cli.Command{
	Name:      "reject",
	Usage:     "Decline a bounty a node was elected for",
	ArgsUsage: "<bounty id> <node id>",
	Flags: withFlags(apiFlags, []cli.Flag{
		&cli.StringFlag{
			Name:  "message",
			Usage: "reason for rejecting",
		},
	}),
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 2 {
			return fmt.Errorf("need two params: the bounty id and node id")
		}
		ctx := reqContext(cctx)
		c, closer, err := newClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		_, err = c.RejectBounty(ctx, cctx.Args().Get(0), models.RejectReq{NodeId: cctx.Args().Get(1), Message: cctx.String("message")})
		if err != nil {
			return err
		}
		fmt.Println("bounty rejected")
		return nil
	},
}

var bountyPendingAnswer = &cli.Command{
	Name:      "pending-answer",
	Usage:     "Show the answer a node posted to a pending bounty",
	ArgsUsage: "<bounty id> <node id>",
	Flags:     apiFlags,
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 2 {
			return fmt.Errorf("need two params: the bounty id and node id")
		}
		ctx := reqContext(cctx)
		c, closer, err := newClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		answer, err := c.GetPendingAnswer(ctx, cctx.Args().Get(0), cctx.Args().Get(1))
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n%s\n", answer.Status, answer.Solution, answer.Message)
		return nil
	},
}

var bountyCancel = &cli.Command{
	Name:      "cancel",
	Usage:     "Cancel a pending bounty",
	ArgsUsage: "<bounty id>",
	Flags:     apiFlags,
	Action: func(cctx *cli.Context) error {
		bountyId, err := bountyArg(cctx)
		if err != nil {
			return err
		}
		ctx := reqContext(cctx)
		c, closer, err := newClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		b, err := c.CancelBounty(ctx, bountyId)
		if err != nil {
			return err
		}
		fmt.Printf("bounty %s is %s\n", b.Id, statusString(b.Status))
		return nil
	},
}

var bountyCancelAll = &cli.Command{
	Name:  "cancel-all",
	Usage: "Cancel every pending bounty of the signing account",
	Flags: apiFlags,
	Action: func(cctx *cli.Context) error {
		ctx := reqContext(cctx)
		c, closer, err := newClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		cancelled, err := c.CancelAllMyBounties(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("cancelled %d bounties\n", len(cancelled))
		for _, id := range cancelled {
			fmt.Println(id)
		}
		return nil
	},
}

var bountyReelect = &cli.Command{
	Name:      "reelect",
	Usage:     "Replace the nodes that have not answered yet",
	ArgsUsage: "<bounty id>",
	Flags:     apiFlags,
	Action: func(cctx *cli.Context) error {
		bountyId, err := bountyArg(cctx)
		if err != nil {
			return err
		}
		ctx := reqContext(cctx)
		c, closer, err := newClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		elected, err := c.ReelectUnansweredNodes(ctx, bountyId)
		if err != nil {
			return err
		}
		fmt.Printf("elected: %s\n", strings.Join(elected, ", "))
		return nil
	},
}

var bountyTopUp = &cli.Command{
	Name:      "top-up",
	Usage:     "Add funds to the storage or reward escrow of a pending bounty",
	ArgsUsage: "<bounty id>",
	Flags: withFlags(apiFlags, depositFlags, []cli.Flag{
		&cli.BoolFlag{
			Name:  "storage",
			Usage: "top up the storage escrow instead of the reward",
		},
	}),
	Action: func(cctx *cli.Context) error {
		bountyId, err := bountyArg(cctx)
		if err != nil {
			return err
		}
		dep := deposit(cctx)
		if dep == nil {
			return fmt.Errorf("pass --deposit-tx or --deposit")
		}
		ctx := reqContext(cctx)
		c, closer, err := newClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		var b *models.Bounty
		if cctx.Bool("storage") {
			b, err = c.AddStorageDeposit(ctx, bountyId, dep)
		} else {
			b, err = c.AddRewardDeposit(ctx, bountyId, dep)
		}
		if err != nil {
			return err
		}
		fmt.Printf("bounty %s now escrows %s ether for storage and %s ether of rewards\n",
			b.Id, util.FormatEther(b.AmtStorage), util.FormatEther(b.AmtNodeReward))
		return nil
	},
}

var bountyResult = &cli.Command{
	Name:      "result",
	Usage:     "Show the solutions of a closed bounty and how it pays out",
	ArgsUsage: "<bounty id>",
	Flags:     apiFlags,
	Action: func(cctx *cli.Context) error {
		bountyId, err := bountyArg(cctx)
		if err != nil {
			return err
		}
		ctx := reqContext(cctx)
		c, closer, err := newClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		result, err := c.BountyResult(ctx, bountyId)
		if err != nil {
			return err
		}
		solutions := make([]string, 0, len(result))
		for solution := range result {
			solutions = append(solutions, solution)
		}
		sort.Slice(solutions, func(i, j int) bool { return result[solutions[i]] > result[solutions[j]] })

		table := NewVisualTable([]string{"SOLUTION", "NODES"})
		for _, solution := range solutions {
			table.AddRow([]string{solution, strconv.FormatUint(result[solution], 10)}, 1)
		}
		table.Generate()

		summary, err := c.Payouts(ctx, bountyId)
		if err != nil {
			return err
		}
		fmt.Printf("\npayout: %s, %s ether per node, %d paid, %d unpaid\n",
			summary.Strategy, util.FormatEther(summary.RewardPerNode), len(summary.Paid), len(summary.Unpaid))
		return nil
	},
}

var bountyReclaim = &cli.Command{
	Name:      "reclaim",
	Usage:     "Reclaim the unclaimed rewards of nodes removed since the bounty closed",
	ArgsUsage: "<bounty id>",
	Flags:     apiFlags,
	Action: func(cctx *cli.Context) error {
		bountyId, err := bountyArg(cctx)
		if err != nil {
			return err
		}
		ctx := reqContext(cctx)
		c, closer, err := newClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		amount, err := c.ReclaimReward(ctx, bountyId)
		if err != nil {
			return err
		}
		fmt.Printf("reclaimed %s ether\n", util.FormatEther(amount))
		return nil
	},
}
