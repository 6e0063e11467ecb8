package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/lagrangedao/go-bounty-coordinator/conf"
	"github.com/lagrangedao/go-bounty-coordinator/util"
	"github.com/lagrangedao/go-bounty-coordinator/wallet"
	"github.com/urfave/cli/v2"
)

var walletCmd = &cli.Command{
	Name:  "wallet",
	Usage: "Manage wallets",
	Subcommands: []*cli.Command{
		walletNew,
		walletList,
		walletExport,
		walletImport,
		walletDelete,
		walletSign,
		walletVerify,
		walletSend,
	},
}

var rpcFlag = &cli.StringFlag{
	Name:  "rpc",
	Usage: "chain rpc url, defaults to Chain.RpcUrl in config.toml",
}

func dialChain(cctx *cli.Context) (*ethclient.Client, error) {
	rpc := cctx.String("rpc")
	if rpc == "" {
		if err := conf.InitConfig(repoPath(cctx)); err != nil {
			return nil, fmt.Errorf("no --rpc given and %w", err)
		}
		rpc = conf.GetConfig().Chain.RpcUrl
	}
	client, err := ethclient.Dial(rpc)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc %s: %w", rpc, err)
	}
	return client, nil
}

func setupWallet(cctx *cli.Context) (*wallet.LocalWallet, error) {
	return wallet.SetupWallet(walletRepo(cctx))
}

var walletNew = &cli.Command{
	Name:  "new",
	Usage: "Generate a new key",
	Action: func(cctx *cli.Context) error {
		ctx := reqContext(cctx)
		localWallet, err := setupWallet(cctx)
		if err != nil {
			return err
		}
		defer localWallet.Close()

		addr, err := localWallet.WalletNew(ctx)
		if err != nil {
			return err
		}
		fmt.Println(addr)
		return nil
	},
}

var walletList = &cli.Command{
	Name:  "list",
	Usage: "List wallet addresses with their balance",
	Flags: []cli.Flag{rpcFlag},
	Action: func(cctx *cli.Context) error {
		ctx := reqContext(cctx)
		localWallet, err := setupWallet(cctx)
		if err != nil {
			return err
		}
		defer localWallet.Close()

		client, err := dialChain(cctx)
		if err != nil {
			return err
		}
		defer client.Close()

		infos, err := localWallet.WalletList(ctx, client)
		if err != nil {
			return err
		}
		table := NewVisualTable([]string{"ADDRESS", "BALANCE", "NONCE", "ERROR"})
		for _, info := range infos {
			table.AddRow([]string{info.Address, util.FormatEther(info.Balance), fmt.Sprint(info.Nonce), info.Error}, 0)
		}
		table.Generate()
		return nil
	},
}

var walletExport = &cli.Command{
	Name:      "export",
	Usage:     "export keys",
	ArgsUsage: "[address]",
	Action: func(cctx *cli.Context) error {
		ctx := reqContext(cctx)
		if !cctx.Args().Present() {
			return fmt.Errorf("must specify key to export")
		}
		localWallet, err := setupWallet(cctx)
		if err != nil {
			return err
		}
		defer localWallet.Close()

		ki, err := localWallet.WalletExport(ctx, cctx.Args().First())
		if err != nil {
			return err
		}
		fmt.Println(ki.PrivateKey)
		return nil
	},
}

var walletImport = &cli.Command{
	Name:      "import",
	Usage:     "import keys",
	ArgsUsage: "[<path> (optional, will read from stdin if omitted)]",
	Action: func(cctx *cli.Context) error {
		ctx := reqContext(cctx)
		var inpdata []byte
		if !cctx.Args().Present() || cctx.Args().First() == "-" {
			reader := bufio.NewReader(os.Stdin)
			fmt.Print("Enter private key: ")
			indata, err := reader.ReadBytes('\n')
			if err != nil {
				return err
			}
			inpdata = indata
		} else {
			fdata, err := os.ReadFile(cctx.Args().First())
			if err != nil {
				return err
			}
			inpdata = fdata
		}

		localWallet, err := setupWallet(cctx)
		if err != nil {
			return err
		}
		defer localWallet.Close()

		addr, err := localWallet.WalletImport(ctx, &wallet.KeyInfo{PrivateKey: strings.TrimSpace(string(inpdata))})
		if err != nil {
			return err
		}
		fmt.Printf("imported key %s successfully!\n", addr)
		return nil
	},
}

var walletDelete = &cli.Command{
	Name:      "delete",
	Usage:     "Delete an account from the wallet",
	ArgsUsage: "<address> ",
	Action: func(cctx *cli.Context) error {
		ctx := reqContext(cctx)
		if !cctx.Args().Present() || cctx.NArg() != 1 {
			return fmt.Errorf("must specify address to delete")
		}
		localWallet, err := setupWallet(cctx)
		if err != nil {
			return err
		}
		defer localWallet.Close()

		return localWallet.WalletDelete(ctx, cctx.Args().First())
	},
}

var walletSign = &cli.Command{
	Name:      "sign",
	Usage:     "Sign a message",
	ArgsUsage: "<signing address> <Message>",
	Action: func(cctx *cli.Context) error {
		ctx := reqContext(cctx)
		if !cctx.Args().Present() || cctx.NArg() != 2 {
			return fmt.Errorf("must specify signing address and message to sign")
		}
		addr := cctx.Args().First()
		if strings.TrimSpace(addr) == "" {
			return fmt.Errorf("failed to parse sign address")
		}
		msg := cctx.Args().Get(1)
		if strings.TrimSpace(msg) == "" {
			return fmt.Errorf("failed to parse message")
		}

		localWallet, err := setupWallet(cctx)
		if err != nil {
			return err
		}
		defer localWallet.Close()

		sig, err := localWallet.WalletSign(ctx, addr, []byte(msg))
		if err != nil {
			return err
		}
		fmt.Println(sig)
		return nil
	},
}

var walletVerify = &cli.Command{
	Name:      "verify",
	Usage:     "verify the signature of a message",
	ArgsUsage: "<signing address>  <signature> <rawMessage>",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 3 {
			return fmt.Errorf("incorrect number of arguments, requires 3 parameters")
		}
		sigBytes, err := hexutil.Decode(cctx.Args().Get(1))
		if err != nil {
			return err
		}
		messageData := cctx.Args().Get(2)
		if strings.TrimSpace(messageData) == "" {
			return fmt.Errorf("failed to get raw message")
		}

		pass, err := wallet.Verify(cctx.Args().First(), sigBytes, []byte(messageData))
		if err != nil {
			return err
		}
		fmt.Println(pass)
		return nil
	},
}

var walletSend = &cli.Command{
	Name:      "send",
	Usage:     "Send funds between accounts, e.g. to pay a deposit to the treasury",
	ArgsUsage: "[targetAddress] [amount]",
	Flags: []cli.Flag{
		rpcFlag,
		&cli.StringFlag{
			Name:     "from",
			Usage:    "the account to send funds from",
			Required: true,
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := reqContext(cctx)
		if cctx.NArg() != 2 {
			return fmt.Errorf(" need two params: the target address and amount")
		}
		to := cctx.Args().Get(0)
		if strings.TrimSpace(to) == "" {
			return fmt.Errorf("failed to parse target address: %s", to)
		}
		amount, err := util.ParseEther(cctx.Args().Get(1))
		if err != nil {
			return fmt.Errorf("failed to parse amount: %w", err)
		}

		localWallet, err := setupWallet(cctx)
		if err != nil {
			return err
		}
		defer localWallet.Close()

		client, err := dialChain(cctx)
		if err != nil {
			return err
		}
		defer client.Close()

		txHash, err := localWallet.WalletSend(ctx, client, cctx.String("from"), to, amount)
		if err != nil {
			return err
		}
		fmt.Println(txHash)
		return nil
	},
}

func reqContext(cctx *cli.Context) context.Context {
	ctx, done := context.WithCancel(cctx.Context)
	sigChan := make(chan os.Signal, 2)
	go func() {
		<-sigChan
		done()
	}()
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	return ctx
}
