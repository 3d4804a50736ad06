// Package respserver exposes a bitcask store over the Redis wire
// protocol (RESP), for operators who want to poke at a store with any
// off-the-shelf redis-cli. It is ambient tooling around the core
// store, not part of it: the protocol and the port are choices of
// this package, not of pkg/bitcask.
package respserver

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/resp"

	"github.com/nikolov-k/bitkeep/pkg/bitcask"
)

// StartServer opens a bitcask store at dir for writing and serves
// SET/GET/DEL/MERGE over RESP on the given port. It blocks until the
// listener returns an error.
func StartServer(dir, port string) error {
	db, err := bitcask.Open(dir, bitcask.ReadWrite(), bitcask.WithLogger(logrus.StandardLogger()))
	if err != nil {
		return err
	}
	defer db.Close()

	s := resp.NewServer()

	s.HandleFunc("set", func(conn *resp.Conn, args []resp.Value) bool {
		if len(args) != 3 {
			conn.WriteError(errors.New("ERR wrong number of arguments for 'set' command"))
			return true
		}
		if err := db.Put([]byte(args[1].String()), []byte(args[2].String())); err != nil {
			conn.WriteError(fmt.Errorf("ERR %w", err))
			return true
		}
		conn.WriteSimpleString("OK")
		return true
	})

	s.HandleFunc("get", func(conn *resp.Conn, args []resp.Value) bool {
		if len(args) != 2 {
			conn.WriteError(errors.New("ERR wrong number of arguments for 'get' command"))
			return true
		}
		value, err := db.Get([]byte(args[1].String()))
		if err != nil {
			conn.WriteNull()
			return true
		}
		conn.WriteString(string(value))
		return true
	})

	s.HandleFunc("del", func(conn *resp.Conn, args []resp.Value) bool {
		if len(args) != 2 {
			conn.WriteError(errors.New("ERR wrong number of arguments for 'del' command"))
			return true
		}
		if err := db.Delete([]byte(args[1].String())); err != nil {
			conn.WriteError(fmt.Errorf("ERR %w", err))
			return true
		}
		conn.WriteSimpleString("OK")
		return true
	})

	s.HandleFunc("merge", func(conn *resp.Conn, args []resp.Value) bool {
		if len(args) != 1 {
			conn.WriteError(errors.New("ERR wrong number of arguments for 'merge' command"))
			return true
		}
		if err := bitcask.Merge(dir); err != nil {
			conn.WriteError(fmt.Errorf("ERR %w", err))
			return true
		}
		conn.WriteSimpleString("OK")
		return true
	})

	return s.ListenAndServe(":" + port)
}
