package dataset

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
)

var shardRegexp = regexp.MustCompile(`^shard-[0-9]{6,}\.tar$`)

// DiscoverShards returns paths to shard TAR files beneath root, sorted.
func DiscoverShards(root string) ([]string, error) {
	entries := make([]string, 0)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if shardRegexp.MatchString(d.Name()) {
			entries = append(entries, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover shards: %w", err)
	}
	sort.Strings(entries)
	return entries, nil
}

// DiscoverSplits finds the train and test shards under dataPath/train and
// dataPath/test. Both splits must hold at least one shard.
func DiscoverSplits(dataPath string) (train, test []string, err error) {
	train, err = DiscoverShards(filepath.Join(dataPath, "train"))
	if err != nil {
		return nil, nil, err
	}
	test, err = DiscoverShards(filepath.Join(dataPath, "test"))
	if err != nil {
		return nil, nil, err
	}
	if len(train) == 0 || len(test) == 0 {
		return nil, nil, fmt.Errorf("discover shards: %s needs shards in both train/ and test/", dataPath)
	}
	return train, test, nil
}
