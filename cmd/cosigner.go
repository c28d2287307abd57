package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MixinNetwork/mixin/logger"
	"github.com/ckb-cosigner/cosigner/common"
	"github.com/ckb-cosigner/cosigner/config"
	"github.com/ckb-cosigner/cosigner/cosigner"
	"github.com/ckb-cosigner/cosigner/cosigner/store"
	"github.com/ckb-cosigner/cosigner/util"
	"github.com/urfave/cli/v2"
)

func openNode(c *cli.Context) (*cosigner.Node, *store.SQLite3Store, error) {
	mc, err := config.ReadConfiguration(c.String("config"))
	if err != nil {
		return nil, nil, err
	}
	err = os.MkdirAll(mc.Cosigner.StoreDir, 0700)
	if err != nil {
		return nil, nil, err
	}
	db, err := store.OpenSQLite3Store(filepath.Join(mc.Cosigner.StoreDir, "cosigner.sqlite3"))
	if err != nil {
		return nil, nil, err
	}
	node, err := cosigner.NewNode(db, mc.Cosigner)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return node, db, nil
}

func ServerBootCmd(c *cli.Context) error {
	node, db, err := openNode(c)
	if err != nil {
		return err
	}
	defer db.Close()

	version := c.App.Metadata["VERSION"].(string)
	node.StartHTTP(version)
	return nil
}

func ListAddresses(c *cli.Context) error {
	node, db, err := openNode(c)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, mc := range node.Registry().List() {
		addr, err := node.MultisigAddress(mc)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%d/%d\t%s\n", mc.Args, mc.Threshold, len(mc.Signers), addr)
	}
	return nil
}

func ListRecords(c *cli.Context) error {
	node, db, err := openNode(c)
	if err != nil {
		return err
	}
	defer db.Close()

	records, err := node.ListRecords(context.Background())
	if err != nil {
		return err
	}
	state := c.String("state")
	for _, r := range records {
		if state != "" && r.StateName() != state {
			continue
		}
		fmt.Printf("%s\t%s\t%s\t%d/%d\t%s\n", r.Id, r.StateName(), r.TxHash,
			len(r.Signatures), r.Config.Threshold, r.SourceReference)
	}
	return nil
}

func PollRecords(c *cli.Context) error {
	node, db, err := openNode(c)
	if err != nil {
		return err
	}
	defer db.Close()

	ids := util.SplitIds(strings.TrimSpace(c.String("ids")), ",")
	changed, err := node.ReconcilePushedTransactions(context.Background(), ids)
	if err != nil {
		return err
	}
	for _, r := range changed {
		logger.Printf("PollRecords() => %s %s", r.Id, r.StateName())
		fmt.Printf("%s\t%s\n", r.Id, r.StateName())
	}
	return nil
}

func ImportLegacyRecords(c *cli.Context) error {
	mc, err := config.ReadConfiguration(c.String("config"))
	if err != nil {
		return err
	}
	data, err := os.ReadFile(common.ExpandTilde(c.String("database")))
	if err != nil {
		return err
	}
	err = os.MkdirAll(mc.Cosigner.StoreDir, 0700)
	if err != nil {
		return err
	}
	db, err := store.OpenSQLite3Store(filepath.Join(mc.Cosigner.StoreDir, "cosigner.sqlite3"))
	if err != nil {
		return err
	}
	defer db.Close()

	count, err := db.ImportLegacyDatabase(context.Background(), data)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d records\n", count)
	return nil
}
