package config

import (
	"os"

	"github.com/ckb-cosigner/cosigner/common"
	"github.com/ckb-cosigner/cosigner/cosigner"
	"github.com/pelletier/go-toml"
)

type Configuration struct {
	Cosigner *cosigner.Configuration `toml:"cosigner"`
	Dev      *DevConfig              `toml:"dev"`
}

func ReadConfiguration(path string) (*Configuration, error) {
	path = common.ExpandTilde(path)
	f, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var conf Configuration
	err = toml.Unmarshal(f, &conf)
	if err != nil {
		return nil, err
	}
	if conf.Cosigner == nil {
		conf.Cosigner = &cosigner.Configuration{}
	}
	conf.Cosigner.StoreDir = common.ExpandTilde(conf.Cosigner.StoreDir)
	conf.Cosigner.TransactionsDir = common.ExpandTilde(conf.Cosigner.TransactionsDir)
	HandleDevConfig(conf.Dev)
	if conf.Cosigner.Network == "" && conf.Dev != nil {
		conf.Cosigner.Network = conf.Dev.Network
	}
	return &conf, nil
}
