package yaml

import (
	"math/big"
	"strings"

	"github.com/lagrangedao/go-bounty-coordinator/internal/coordinator"
	"github.com/lagrangedao/go-bounty-coordinator/internal/models"
	"github.com/lagrangedao/go-bounty-coordinator/util"
	"gopkg.in/errgo.v2/fmt/errors"
)

// ManifestV1 describes a bounty in a file, e.g.
//
//	version: "1.0"
//	bounty:
//	  file:
//	    location: bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi
//	    protocol: IPFS
//	  min_nodes: 3
//	  timeout_seconds: 600
//	  requirements:
//	    network: true
//	  deposit:
//	    storage: 0.1 ether
//	    reward: 0.5 ether
type ManifestV1 struct {
	Version string     `yaml:"version"`
	Bounty  BountyYaml `yaml:"bounty"`
}

type BountyYaml struct {
	File           FileYaml        `yaml:"file"`
	MinNodes       uint64          `yaml:"min_nodes"`
	TimeoutSeconds uint64          `yaml:"timeout_seconds"`
	Requirements   RequirementYaml `yaml:"requirements"`
	Deposit        DepositYaml     `yaml:"deposit"`
}

type FileYaml struct {
	Location string `yaml:"location"`
	Protocol string `yaml:"protocol"`
}

type RequirementYaml struct {
	Network bool `yaml:"network"`
	Gpu     bool `yaml:"gpu"`
}

type DepositYaml struct {
	Storage string `yaml:"storage"`
	Reward  string `yaml:"reward"`
}

func (m *ManifestV1) checkRequired() error {
	if m.Bounty.MinNodes == 0 {
		return errors.New("bounty.min_nodes must be at least 1")
	}
	if m.Bounty.TimeoutSeconds == 0 {
		return errors.New("bounty.timeout_seconds is required")
	}
	protocol := models.DownloadProtocol(strings.ToUpper(m.Bounty.File.Protocol))
	if protocol == "" {
		protocol = models.ProtocolEmpty
	}
	if !protocol.Valid() {
		return errors.Newf("unsupported bounty.file.protocol %q", m.Bounty.File.Protocol)
	}
	if protocol != models.ProtocolEmpty && m.Bounty.File.Location == "" {
		return errors.New("bounty.file.location is required")
	}
	return nil
}

func (m *ManifestV1) ToBountyRequest() (*coordinator.BountyRequest, error) {
	if err := m.checkRequired(); err != nil {
		return nil, err
	}
	storage, err := parseDeposit(m.Bounty.Deposit.Storage)
	if err != nil {
		return nil, errors.Notef(err, nil, "bounty.deposit.storage")
	}
	reward, err := parseDeposit(m.Bounty.Deposit.Reward)
	if err != nil {
		return nil, errors.Notef(err, nil, "bounty.deposit.reward")
	}

	protocol := models.DownloadProtocol(strings.ToUpper(m.Bounty.File.Protocol))
	if protocol == "" {
		protocol = models.ProtocolEmpty
	}
	return &coordinator.BountyRequest{
		FileLocation:         m.Bounty.File.Location,
		FileDownloadProtocol: protocol,
		MinNodes:             m.Bounty.MinNodes,
		TimeoutSeconds:       m.Bounty.TimeoutSeconds,
		NetworkRequired:      m.Bounty.Requirements.Network,
		GpuRequired:          m.Bounty.Requirements.Gpu,
		AmtStorage:           storage,
		AmtNodeReward:        reward,
	}, nil
}

func parseDeposit(value string) (*big.Int, error) {
	if strings.TrimSpace(value) == "" {
		return new(big.Int), nil
	}
	return util.ParseAmount(value)
}
