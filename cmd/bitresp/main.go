package main

import (
	"os"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	resp "github.com/nikolov-k/bitkeep/pkg/respserver"
)

func main() {
	dir := flag.String("dir", os.Getenv("HOME")+"/bitkeep_resp_store", "the directory of the store")
	port := flag.String("port", "6379", "the listen port")
	flag.Parse()

	if err := resp.StartServer(*dir, *port); err != nil {
		logrus.WithError(err).Fatal("bitresp: server exited")
	}
}
