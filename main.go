package main

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/ckb-cosigner/cosigner/cmd"
	"github.com/urfave/cli/v2"
)

//go:embed README.md
var README string

//go:embed VERSION
var VERSION string

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Value:   "~/.ckb/cosigner/config.toml",
		Usage:   "The configuration file path",
	}
}

func main() {
	VERSION = strings.TrimSpace(VERSION)
	if strings.Contains(VERSION, "COMMIT") {
		panic("please build the application using make command.")
	}
	app := &cli.App{
		Name:                 "cosigner",
		Usage:                "CKB multisig transaction coordinator",
		Version:              VERSION,
		EnableBashCompletion: true,
		Metadata: map[string]any{
			"README":  README,
			"VERSION": VERSION,
		},
		Commands: []*cli.Command{
			{
				Name:   "server",
				Usage:  "Run the cosigner HTTP server",
				Action: cmd.ServerBootCmd,
				Flags:  []cli.Flag{configFlag()},
			},
			{
				Name:   "addresses",
				Usage:  "Print the address of every configured multisig",
				Action: cmd.ListAddresses,
				Flags:  []cli.Flag{configFlag()},
			},
			{
				Name:   "records",
				Usage:  "List the transaction records",
				Action: cmd.ListRecords,
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "state",
						Usage: "Only list records in the state, uploaded, pushed, committed or rejected",
					},
				},
			},
			{
				Name:   "poll",
				Usage:  "Reconcile pushed records with the chain",
				Action: cmd.PollRecords,
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "ids",
						Usage: "The comma separated record ids, all pushed records if empty",
					},
				},
			},
			{
				Name:   "importjson",
				Usage:  "Import records from a legacy JSON database",
				Action: cmd.ImportLegacyRecords,
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "database",
						Usage: "The legacy JSON database path",
					},
				},
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Println(err)
	}
}
