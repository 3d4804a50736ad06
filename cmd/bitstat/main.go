package main

import (
	"net/http"
	"os"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/nikolov-k/bitkeep/pkg/bitcask"
	"github.com/nikolov-k/bitkeep/pkg/statserver"
)

func main() {
	dir := flag.String("dir", os.Getenv("HOME")+"/bitkeep_store", "the directory of the store")
	addr := flag.String("addr", ":8080", "the listen address")
	flag.Parse()

	db, err := bitcask.Open(*dir, bitcask.WithLogger(logrus.StandardLogger()))
	if err != nil {
		logrus.WithError(err).Fatal("bitstat: cannot open store")
	}
	defer db.Close()

	logrus.WithField("addr", *addr).Info("bitstat: serving read-only diagnostics")
	if err := http.ListenAndServe(*addr, statserver.Handler(db, *dir)); err != nil {
		logrus.WithError(err).Fatal("bitstat: server exited")
	}
}
