package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"pixel-chat/infrastructure/storage"
	"pixel-chat/projection"

	"github.com/dgraph-io/badger/v4"
	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"
)

type Config struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH" required:"true"`
	Kind           string `envconfig:"INSPECT_KIND"`
	Limit          int    `envconfig:"INSPECT_LIMIT" default:"0"`
}

func main() {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	records, err := storage.NewDocumentStore(db, nil, slog.Default()).Snapshot()
	if err != nil {
		log.Fatal(err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Created", "Kind", "Author", "Nickname", "Status", "Pixel", "Content"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	shown := 0
	for _, record := range records {
		message, ok := projection.ToMessage(record)
		if !ok {
			table.Append([]string{record.ID, record.CreatedAt.Format("2006-01-02 15:04:05.000"), "MALFORMED", "", "", "", "", fmt.Sprint(record.Fields)})
			continue
		}
		if config.Kind != "" && !strings.EqualFold(config.Kind, string(message.Kind)) {
			continue
		}
		content := message.Text
		pixel := ""
		if message.IsPhoto() {
			content = strings.TrimSpace(message.PhotoRef + " " + message.Text)
			pixel = fmt.Sprint(message.PixelSize)
		}
		table.Append([]string{
			message.ID,
			message.CreatedAt.Format("2006-01-02 15:04:05.000"),
			string(message.Kind),
			message.AuthorID,
			message.Nickname,
			string(message.Visibility),
			pixel,
			content,
		})
		shown++
		if config.Limit > 0 && shown >= config.Limit {
			break
		}
	}
	table.Render()
}
