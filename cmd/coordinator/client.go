package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/lagrangedao/go-bounty-coordinator/conf"
	"github.com/lagrangedao/go-bounty-coordinator/internal/client"
	"github.com/lagrangedao/go-bounty-coordinator/wallet"
	"github.com/urfave/cli/v2"
)

var apiFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    FlagApi,
		EnvVars: []string{"COORDINATOR_API"},
		Usage:   "coordinator api url, defaults to the port in config.toml on localhost",
	},
	&cli.StringFlag{
		Name:    FlagFrom,
		EnvVars: []string{"COORDINATOR_ACCOUNT"},
		Usage:   "wallet address that signs the request",
	},
}

var depositFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "deposit-tx",
		Usage: "hash of the transaction that paid the deposit to the treasury",
	},
	&cli.StringFlag{
		Name:  "deposit",
		Usage: "declared deposit amount, e.g. \"0.5 ether\" (only honored when the coordinator trusts declared deposits)",
	},
}

// walletRepo prefers the keystore configured in config.toml.
func walletRepo(cctx *cli.Context) string {
	repo := repoPath(cctx)
	if err := conf.InitConfig(repo); err == nil {
		return conf.GetConfig().Chain.KeystoreDir
	}
	return filepath.Join(repo, "keystore")
}

func apiUrl(cctx *cli.Context) (string, error) {
	if u := cctx.String(FlagApi); u != "" {
		return u, nil
	}
	if err := conf.InitConfig(repoPath(cctx)); err != nil {
		return "", fmt.Errorf("no --%s given and %w", FlagApi, err)
	}
	return "http://127.0.0.1:" + strconv.Itoa(conf.GetConfig().API.Port), nil
}

// newClient returns a client and a cleanup func. Signing needs --from and the local keystore.
func newClient(cctx *cli.Context) (*client.Client, func(), error) {
	baseUrl, err := apiUrl(cctx)
	if err != nil {
		return nil, nil, err
	}
	from := cctx.String(FlagFrom)
	if from == "" {
		return client.NewClient(baseUrl, "", nil), func() {}, nil
	}
	localWallet, err := wallet.SetupWallet(walletRepo(cctx))
	if err != nil {
		return nil, nil, err
	}
	return client.NewClient(baseUrl, from, localWallet), func() { localWallet.Close() }, nil
}

func deposit(cctx *cli.Context) *client.Deposit {
	if cctx.String("deposit-tx") == "" && cctx.String("deposit") == "" {
		return nil
	}
	return &client.Deposit{TxHash: cctx.String("deposit-tx"), Amount: cctx.String("deposit")}
}

func withFlags(groups ...[]cli.Flag) []cli.Flag {
	var flags []cli.Flag
	for _, g := range groups {
		flags = append(flags, g...)
	}
	return flags
}
