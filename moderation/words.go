package moderation

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

const blacklistPrefix = "blacklist:"

// LoadWordsFile reads one censored word per line. Blank lines and lines starting with '#' are ignored.
func LoadWordsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open censored words %s: %w", path, err)
	}
	defer f.Close()

	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read censored words %s: %w", path, err)
	}
	return words, nil
}

// SeedBlacklist stores the words as key-only entries so they survive restarts.
func SeedBlacklist(db *badger.DB, words []string) error {
	wb := db.NewWriteBatch()
	defer wb.Cancel()
	for _, word := range words {
		if err := wb.Set([]byte(blacklistPrefix+word), nil); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// LoadBlacklist returns every word previously stored with SeedBlacklist.
func LoadBlacklist(db *badger.DB) ([]string, error) {
	var words []string
	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // words live in the keys
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(blacklistPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			words = append(words, string(it.Item().Key()[len(prefix):]))
		}
		return nil
	})
	return words, err
}
