package datafile

import (
	"path/filepath"
	"regexp"
	"strconv"
)

const (
	dataSuffix        = ".bitcask.data"
	hintSuffix        = ".bitcask.hint"
	hintMergingSuffix = ".bitcask.hint.merging"
)

// DataFileNamePattern matches a data file's base name.
var DataFileNamePattern = regexp.MustCompile(`^[0-9]+\.bitcask\.data$`)

// HintFileNamePattern matches a hint file's base name.
var HintFileNamePattern = regexp.MustCompile(`^[0-9]+\.bitcask\.hint$`)

// MkFilename returns the absolute path of the data file with the given
// file ID inside dir.
func MkFilename(dir string, id int64) string {
	return filepath.Join(dir, dataFileBaseName(id))
}

// MkHintFilename returns the absolute path of the hint file with the
// given file ID inside dir.
func MkHintFilename(dir string, id int64) string {
	return filepath.Join(dir, hintFileBaseName(id))
}

// MkMergingHintFilename returns the absolute path of the transient
// hint file under construction for the given file ID inside dir.
func MkMergingHintFilename(dir string, id int64) string {
	return filepath.Join(dir, strconv.FormatInt(id, 10)+hintMergingSuffix)
}

func dataFileBaseName(id int64) string {
	return strconv.FormatInt(id, 10) + dataSuffix
}

func hintFileBaseName(id int64) string {
	return strconv.FormatInt(id, 10) + hintSuffix
}

// FileTstamp parses the integer file ID out of a data or hint file's
// base name, i.e. its leading run of digits.
func FileTstamp(nameOrPath string) (int64, error) {
	base := filepath.Base(nameOrPath)
	i := 0
	for i < len(base) && base[i] >= '0' && base[i] <= '9' {
		i++
	}
	return strconv.ParseInt(base[:i], 10, 64)
}
