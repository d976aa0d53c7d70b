package main

import (
	"log"
	"os"

	"github.com/trezcool/academia/core"
	logsvc "github.com/trezcool/academia/services/logger"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)

	cli := newCommandLine(conf, logger, os.Stdout)
	defer cli.close()

	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("admin command failed", err)
		}
		cli.close()
		os.Exit(1)
	}
}
