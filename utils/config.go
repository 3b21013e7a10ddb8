package utils

import (
	"fmt"
	"os"

	"dario.cat/mergo"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/pulsedao/pulse-indexer/config"
	"github.com/pulsedao/pulse-indexer/types"
)

// Config is the globally accessible configuration
var Config *types.Config

// ReadConfig will process a configuration
func ReadConfig(cfg *types.Config, path string) error {
	err := readConfigFile(cfg, path)
	if err != nil {
		return err
	}

	readConfigEnv(cfg)

	// overlay defaults for everything the config file left unset
	defaultCfg := &types.Config{}
	err = yaml.Unmarshal([]byte(config.DefaultConfigYml), defaultCfg)
	if err != nil {
		return fmt.Errorf("error decoding embedded default config: %v", err)
	}
	err = mergo.Merge(cfg, defaultCfg)
	if err != nil {
		return fmt.Errorf("error merging default config: %v", err)
	}

	if cfg.Provider.Url == "" {
		return fmt.Errorf("missing stream provider url (need a provider endpoint to run the indexer)")
	}
	if cfg.Indexer.TopicRegistryContract == "" && len(cfg.Indexer.TopicContracts) == 0 {
		return fmt.Errorf("missing watched contracts (need a topic registry or at least 1 topic contract)")
	}

	log.WithFields(log.Fields{
		"provider":      cfg.Provider.Url,
		"stateKey":      cfg.Indexer.StateKey,
		"startBlock":    cfg.Indexer.StartBlock,
		"topicRegistry": cfg.Indexer.TopicRegistryContract,
		"topics":        len(cfg.Indexer.TopicContracts),
	}).Infof("did init config")

	return nil
}

func readConfigFile(cfg *types.Config, path string) error {
	if path == "" {
		return yaml.Unmarshal([]byte(config.DefaultConfigYml), cfg)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("error opening config file %v: %v", path, err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	err = decoder.Decode(cfg)
	if err != nil {
		return fmt.Errorf("error decoding config file %v: %v", path, err)
	}

	return nil
}

func readConfigEnv(cfg *types.Config) error {
	return envconfig.Process("", cfg)
}
