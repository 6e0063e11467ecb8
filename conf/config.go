package conf

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

var config *CoordinatorNode

// CoordinatorNode is the config of a bounty coordinator process
type CoordinatorNode struct {
	API         API
	Coordinator Coordinator
	Chain       Chain
}

type API struct {
	Port          int
	RedisUrl      string
	RedisPassword string
	CrtFile       string
	KeyFile       string
}

type Coordinator struct {
	AccountId          string
	DataDir            string
	MinNodeDeposit     string
	MinStorage         string
	MinReward          string
	PaddingFactor      float64
	StorageBytePrice   string
	ReclaimGracePeriod Duration
	StallCheckInterval Duration
}

type Chain struct {
	RpcUrl          string
	TreasuryAddress string
	KeystoreDir     string
	VerifyDeposits  bool
}

// Duration decodes toml strings such as "168h" or "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

const (
	DefaultMinNodeDeposit     = "1"
	DefaultMinStorage         = "0.1"
	DefaultMinReward          = "0.1"
	DefaultPaddingFactor      = 1.25
	DefaultStorageBytePrice   = "10000000000000"
	DefaultReclaimGracePeriod = 7 * 24 * time.Hour
)

func InitConfig(repoPath string) error {
	configFile := filepath.Join(repoPath, "config.toml")

	var c CoordinatorNode
	metaData, err := toml.DecodeFile(configFile, &c)
	if err != nil {
		return fmt.Errorf("failed load config file, path: %s, error: %w", configFile, err)
	}
	if err := requiredFieldsAreGiven(metaData); err != nil {
		return err
	}
	applyDefaults(&c, repoPath)
	config = &c
	return nil
}

func GetConfig() *CoordinatorNode {
	return config
}

func applyDefaults(c *CoordinatorNode, repoPath string) {
	if c.Coordinator.DataDir == "" {
		c.Coordinator.DataDir = filepath.Join(repoPath, "ledger")
	}
	if c.Coordinator.MinNodeDeposit == "" {
		c.Coordinator.MinNodeDeposit = DefaultMinNodeDeposit
	}
	if c.Coordinator.MinStorage == "" {
		c.Coordinator.MinStorage = DefaultMinStorage
	}
	if c.Coordinator.MinReward == "" {
		c.Coordinator.MinReward = DefaultMinReward
	}
	if c.Coordinator.PaddingFactor == 0 {
		c.Coordinator.PaddingFactor = DefaultPaddingFactor
	}
	if c.Coordinator.StorageBytePrice == "" {
		c.Coordinator.StorageBytePrice = DefaultStorageBytePrice
	}
	if c.Coordinator.ReclaimGracePeriod.Duration == 0 {
		c.Coordinator.ReclaimGracePeriod.Duration = DefaultReclaimGracePeriod
	}
	if c.Chain.KeystoreDir == "" {
		c.Chain.KeystoreDir = filepath.Join(repoPath, "keystore")
	}
	// callers are identified by checksummed addresses
	if common.IsHexAddress(c.Coordinator.AccountId) {
		c.Coordinator.AccountId = common.HexToAddress(c.Coordinator.AccountId).Hex()
	}
}

func requiredFieldsAreGiven(metaData toml.MetaData) error {
	requiredFields := [][]string{
		{"API"},
		{"Coordinator"},
		{"Chain"},

		{"API", "Port"},
		{"API", "RedisUrl"},

		{"Coordinator", "AccountId"},

		{"Chain", "RpcUrl"},
		{"Chain", "TreasuryAddress"},
	}

	var missing []string
	for _, v := range requiredFields {
		if !metaData.IsDefined(v...) {
			missing = append(missing, strings.Join(v, "."))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required fields not given: %s", strings.Join(missing, ", "))
	}
	return nil
}
