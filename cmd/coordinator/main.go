package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/lagrangedao/go-bounty-coordinator/build"
	"github.com/urfave/cli/v2"
)

const (
	FlagRepo = "repo"
	FlagApi  = "api"
	FlagFrom = "from"
)

func main() {
	app := &cli.App{
		Name:                 "bounty-coordinator",
		Usage:                "A bounty coordinator elects registered worker nodes to run bounties, collects their answers and pays them out of escrow.",
		EnableBashCompletion: true,
		Version:              build.UserVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    FlagRepo,
				EnvVars: []string{"COORDINATOR_PATH"},
				Usage:   "coordinator repo path",
				Value:   "~/.swan/coordinator",
			},
		},
		Commands: []*cli.Command{
			runCmd,
			nodeCmd,
			bountyCmd,
			walletCmd,
		},
	}
	app.Setup()

	if err := app.Run(os.Args); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func repoPath(cctx *cli.Context) string {
	p := cctx.String(FlagRepo)
	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
