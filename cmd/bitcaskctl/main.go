// Command bitcaskctl is a small operator CLI around pkg/bitcask:
// get/put/delete/merge a store directory from the shell.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/nikolov-k/bitkeep/pkg/bitcask"
)

func main() {
	dir := flag.String("dir", "", "store directory (required)")
	maxFileSize := flag.Int64("max-file-size", 0, "rotate the active file past this many bytes (0 = default 2GiB)")
	flag.Parse()

	args := flag.Args()
	if *dir == "" || len(args) == 0 {
		usage()
		os.Exit(2)
	}

	cmd := args[0]
	rest := args[1:]

	switch cmd {
	case "get":
		runReadOnly(*dir, func(db *bitcask.Bitcask) error {
			if len(rest) != 1 {
				return fmt.Errorf("usage: bitcaskctl --dir DIR get KEY")
			}
			value, err := db.Get([]byte(rest[0]))
			if err != nil {
				return err
			}
			fmt.Println(string(value))
			return nil
		})
	case "put":
		runWritable(*dir, *maxFileSize, func(db *bitcask.Bitcask) error {
			if len(rest) != 2 {
				return fmt.Errorf("usage: bitcaskctl --dir DIR put KEY VALUE")
			}
			return db.Put([]byte(rest[0]), []byte(rest[1]))
		})
	case "delete":
		runWritable(*dir, *maxFileSize, func(db *bitcask.Bitcask) error {
			if len(rest) != 1 {
				return fmt.Errorf("usage: bitcaskctl --dir DIR delete KEY")
			}
			return db.Delete([]byte(rest[0]))
		})
	case "merge":
		if err := bitcask.Merge(*dir); err != nil {
			logrus.WithError(err).Fatal("bitcaskctl: merge failed")
		}
	case "keys":
		runReadOnly(*dir, func(db *bitcask.Bitcask) error {
			for _, k := range db.ListKeys() {
				fmt.Println(string(k))
			}
			return nil
		})
	default:
		usage()
		os.Exit(2)
	}
}

func runReadOnly(dir string, fn func(*bitcask.Bitcask) error) {
	db, err := bitcask.Open(dir, bitcask.WithLogger(logrus.StandardLogger()))
	if err != nil {
		logrus.WithError(err).Fatal("bitcaskctl: open failed")
	}
	defer db.Close()

	if err := fn(db); err != nil {
		logrus.WithError(err).Fatal("bitcaskctl: command failed")
	}
}

func runWritable(dir string, maxFileSize int64, fn func(*bitcask.Bitcask) error) {
	opts := []bitcask.Option{bitcask.ReadWrite(), bitcask.WithLogger(logrus.StandardLogger())}
	if maxFileSize > 0 {
		opts = append(opts, bitcask.WithMaxFileSize(maxFileSize))
	}

	db, err := bitcask.Open(dir, opts...)
	if err != nil {
		logrus.WithError(err).Fatal("bitcaskctl: open failed")
	}
	defer db.Close()

	if err := fn(db); err != nil {
		logrus.WithError(err).Fatal("bitcaskctl: command failed")
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: bitcaskctl --dir DIR <get|put|delete|merge|keys> [args...]")
	flag.PrintDefaults()
}
