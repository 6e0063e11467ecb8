package yaml

import (
	"fmt"
	"os"

	"github.com/lagrangedao/go-bounty-coordinator/internal/coordinator"
	"gopkg.in/yaml.v2"
)

type Parser interface {
	Parse(yamlFile []byte) error
	GetConfig() interface{}
}

type ParserYamlV1 struct {
	config ManifestV1
}

func (p *ParserYamlV1) Parse(yamlFile []byte) error {
	var manifest ManifestV1
	if err := yaml.UnmarshalStrict(yamlFile, &manifest); err != nil {
		return err
	}
	p.config = manifest
	return nil
}

func (p *ParserYamlV1) GetConfig() interface{} {
	return p.config
}

type Version struct {
	Version string `yaml:"version"`
}

func getYAMLFileVersion(yamlFile []byte) (string, error) {
	var version Version
	if err := yaml.Unmarshal(yamlFile, &version); err != nil {
		return "", err
	}
	return version.Version, nil
}

// ParseManifest turns a bounty manifest into a creation request.
func ParseManifest(yamlFile []byte) (*coordinator.BountyRequest, error) {
	version, err := getYAMLFileVersion(yamlFile)
	if err != nil {
		return nil, fmt.Errorf("failed unable to parse YAML file, %w", err)
	}

	switch version {
	case "1.0", "":
		parser := &ParserYamlV1{}
		if err = parser.Parse(yamlFile); err != nil {
			return nil, fmt.Errorf("failed unable to parse YAML file, %w", err)
		}
		return parser.config.ToBountyRequest()
	default:
		return nil, fmt.Errorf("unsupported manifest version: %s", version)
	}
}

func HandlerYaml(yamlFilePath string) (*coordinator.BountyRequest, error) {
	yamlFile, err := os.ReadFile(yamlFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed unable to read file, %w", err)
	}
	return ParseManifest(yamlFile)
}
