package main

import (
	"dm-relay/client"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
)

// Seeds demo accounts through the HTTP API and writes a sample censored words file.
func main() {
	httpAddr := flag.String("http", "http://localhost:3000", "relay HTTP API base URL")
	users := flag.String("users", "alice,bob,carol", "comma separated usernames")
	password := flag.String("password", "Demo-Passw0rd!", "password shared by the demo accounts")
	outputDir := flag.String("out", "./test_data", "where to write censored_words.txt")
	flag.Parse()

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "cannot create %s: %v\n", *outputDir, err)
		os.Exit(1)
	}

	wordsPath := filepath.Join(*outputDir, "censored_words.txt")
	if err := genWordsFile(wordsPath); err != nil {
		fmt.Fprintf(os.Stderr, "words file: %v\n", err)
	} else {
		fmt.Printf("Censored words written to %s (CENSORED_WORDS_PATH)\n", wordsPath)
	}

	api := client.NewAPIClient(*httpAddr, 10*time.Second)
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Username", "Status"})
	table.SetBorder(false)
	for _, username := range strings.Split(*users, ",") {
		username = strings.TrimSpace(username)
		if username == "" {
			continue
		}
		account, err := api.Register(username, *password)
		status := "created"
		if err != nil {
			if account, err = api.Login(username, *password); err != nil {
				table.Append([]string{"-", username, err.Error()})
				continue
			}
			status = "existing"
		}
		table.Append([]string{account.ID.String(), account.Username, status})
	}
	table.Render()
}

func genWordsFile(path string) error {
	content := strings.Join([]string{
		"# one word or phrase per line",
		"badword",
		"spam",
		"scam link",
	}, "\n") + "\n"
	return os.WriteFile(path, []byte(content), 0o644)
}
