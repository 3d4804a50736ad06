// Package merge implements the compaction pass: it scans every
// immutable data file in a store, keeps only the most recent,
// non-tombstoned value of each key, rewrites those values into fresh
// data files, emits a hint-file sidecar per output, and retires the
// old files, all while a concurrent reader of the same directory can
// keep calling Get.
package merge

import (
	"os"

	"github.com/natefinch/atomic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/nikolov-k/bitkeep/internal/datafile"
	"github.com/nikolov-k/bitkeep/internal/keydir"
	"github.com/nikolov-k/bitkeep/internal/lockfile"
	"github.com/nikolov-k/bitkeep/internal/store"
)

// Result summarises one merge run.
type Result struct {
	SourceFiles int
	OutputFiles int
}

// mergedOutput pairs a finished merge output file with the hint
// entries accumulated for it.
type mergedOutput struct {
	file *datafile.File
	hint *keydir.KeyDir
}

// Merge compacts dir: see the package doc for the algorithm. It fails
// with lockfile.ErrMergeLocked if another live process already holds
// the merge lock for dir.
func Merge(dir string, opts store.Options) (Result, error) {
	opts.ReadWrite = false
	s, err := store.Open(dir, opts)
	if err != nil {
		return Result{}, errors.Wrap(err, "merge: open store read-only")
	}
	defer s.Close()

	owner := opts.Owner
	if owner == "" {
		owner = lockfile.DefaultOwner()
	}
	lock, err := lockfile.Acquire(lockfile.Merge, dir, owner, "")
	if err != nil {
		return Result{}, err
	}
	defer lock.Release()

	log := s.Logger()

	sources := s.SourceFiles()
	if len(sources) == 0 {
		log.Debug("merge: nothing to compact")
		return Result{SourceFiles: 0, OutputFiles: 0}, nil
	}

	liveKD := s.KeyDir()
	delKD := keydir.New()

	currentOutput, err := datafile.CreateFile(dir)
	if err != nil {
		return Result{}, errors.Wrap(err, "merge: create output file")
	}
	currentHint := keydir.New()

	var allMerged []mergedOutput
	var scanErr error

	for _, src := range sources {
		srcID := src.ID()
		_, err := src.Fold(func(key, value []byte, tstamp uint32, loc datafile.RecordLocation, acc any) any {
			if scanErr != nil {
				return acc
			}

			// The record's own location, so staleness can be decided with
			// the keydir's full ordering (tstamp, then file ID, then
			// offset) rather than tstamp alone: second-granularity
			// timestamps collide constantly under any real write rate,
			// and a tstamp-only comparison would let a superseded value
			// slip past a tombstone written in the same second.
			cand := keydir.Entry{
				FileID:      srcID,
				ValueOffset: loc.ValueOffset,
				ValueSize:   uint32(len(value)),
				TotalSize:   loc.TotalSize,
				Tstamp:      tstamp,
			}

			if isStale(key, cand, liveKD, currentHint, delKD) {
				return acc
			}

			if datafile.IsTombstone(value) {
				delKD.Put(key, cand)
				return acc
			}

			delKD.Remove(key)

			if currentOutput.CheckWrite(datafile.RecordLen(key, value), s.MaxFileSize()) == datafile.Wrap {
				if err := finishOutput(currentOutput, currentHint, &allMerged); err != nil {
					scanErr = err
					return acc
				}
				fresh, err := datafile.CreateFile(dir)
				if err != nil {
					scanErr = err
					return acc
				}
				currentOutput = fresh
				currentHint = keydir.New()
			}

			valueOffset, totalSize, err := currentOutput.Write(key, value, tstamp)
			if err != nil {
				scanErr = err
				return acc
			}

			entry := keydir.Entry{
				FileID:      currentOutput.ID(),
				ValueOffset: valueOffset,
				ValueSize:   uint32(len(value)),
				TotalSize:   totalSize,
				Tstamp:      tstamp,
			}
			liveKD.Put(key, entry)
			currentHint.Put(key, entry)

			return acc
		}, nil)
		if err != nil {
			scanErr = err
		}
		if scanErr != nil {
			break
		}
	}

	if scanErr != nil {
		currentOutput.Delete()
		return Result{}, errors.Wrap(scanErr, "merge: scan source files")
	}

	if currentOutput.Size() > 0 {
		if err := finishOutput(currentOutput, currentHint, &allMerged); err != nil {
			return Result{}, err
		}
	} else {
		currentOutput.Delete()
	}

	for _, src := range sources {
		id := src.ID()
		if err := src.Delete(); err != nil {
			log.WithError(err).WithField("file_id", id).Warn("merge: failed to delete retired source file")
			continue
		}
		// A retired file's hint sidecar must go with it: its file ID is
		// now free for reuse, and a leftover hint at that name would be
		// trusted by a future open of an unrelated data file.
		if err := os.Remove(datafile.MkHintFilename(dir, id)); err != nil && !os.IsNotExist(err) {
			log.WithError(err).WithField("file_id", id).Warn("merge: failed to delete retired hint file")
		}
		s.DropSourceFile(id)
	}

	for _, out := range allMerged {
		writeHintFile(dir, out, log)
	}

	log.WithFields(logrus.Fields{
		"source_files": len(sources),
		"output_files": len(allMerged),
	}).Info("merge complete")

	return Result{SourceFiles: len(sources), OutputFiles: len(allMerged)}, nil
}

// isStale reports whether the record at cand is out of date with
// respect to any of the given keydirs, i.e. one of them already holds
// a strictly newer entry for key.
func isStale(key []byte, cand keydir.Entry, keydirs ...*keydir.KeyDir) bool {
	for _, kd := range keydirs {
		if e, ok := kd.Get(key); ok && keydir.Newer(e, cand) {
			return true
		}
	}
	return false
}

func finishOutput(f *datafile.File, hint *keydir.KeyDir, allMerged *[]mergedOutput) error {
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	*allMerged = append(*allMerged, mergedOutput{file: f, hint: hint})
	return nil
}

// writeHintFile serialises out's accumulated hint entries into its
// data file's hint sidecar. Hint-file emission is best-effort: failure
// only costs a full rescan on the next open, so it is logged, not
// propagated.
//
// The bytes are staged under the transient "<id>.bitcask.hint.merging"
// name and only renamed to the final "<id>.bitcask.hint" once fully
// written, so a crash mid-emission never leaves a half-written hint
// file where the open-scan would find it.
func writeHintFile(dir string, out mergedOutput, log *logrus.Entry) {
	var buf []byte
	out.hint.Each(func(key []byte, entry keydir.Entry) {
		buf = append(buf, datafile.EncodeHintRecord(key, datafile.HintEntry{
			Tstamp:      entry.Tstamp,
			ValueSize:   entry.ValueSize,
			ValueOffset: entry.ValueOffset,
		})...)
	})

	id := out.file.ID()
	staging := datafile.MkMergingHintFilename(dir, id)
	if err := os.WriteFile(staging, buf, 0o644); err != nil {
		log.WithError(err).WithField("file_id", id).Warn("merge: failed to stage hint file")
		return
	}
	if err := atomic.ReplaceFile(staging, datafile.MkHintFilename(dir, id)); err != nil {
		os.Remove(staging)
		log.WithError(err).WithField("file_id", id).Warn("merge: failed to write hint file")
	}
}
