// Package statserver exposes a read-only HTTP view of a bitcask
// store's operational stats: how many data files it has, how many
// keys its index holds (a deleted key counts until a merge drops it),
// and a simple key listing. It is ambient operator
// tooling, not part of the core, and never accepts writes.
package statserver

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"

	"github.com/nikolov-k/bitkeep/internal/datafile"
	"github.com/nikolov-k/bitkeep/pkg/bitcask"
)

// Stats summarises a store's on-disk and in-memory footprint.
type Stats struct {
	DataFiles int   `json:"data_files"`
	Keys      int   `json:"keys"`
	Bytes     int64 `json:"bytes"`
}

// Handler builds an HTTP handler serving GET /stats and GET /keys for
// the read-only store db, whose on-disk directory is dir (needed to
// count data files and their total size, which Bitcask itself does
// not track).
func Handler(db *bitcask.Bitcask, dir string) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/stats", func(w http.ResponseWriter, req *http.Request) {
		stats, err := collectStats(db, dir)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	}).Methods(http.MethodGet)

	r.HandleFunc("/keys", func(w http.ResponseWriter, req *http.Request) {
		keys := db.ListKeys()
		out := make([]string, len(keys))
		for i, k := range keys {
			out[i] = string(k)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}).Methods(http.MethodGet)

	return r
}

func collectStats(db *bitcask.Bitcask, dir string) (Stats, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	for _, e := range entries {
		if e.IsDir() || !datafile.DataFileNamePattern.MatchString(e.Name()) {
			continue
		}
		stats.DataFiles++
		if info, err := os.Stat(filepath.Join(dir, e.Name())); err == nil {
			stats.Bytes += info.Size()
		}
	}
	stats.Keys = len(db.ListKeys())

	return stats, nil
}
