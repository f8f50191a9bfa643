package internal

import (
	"bytes"
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// InspectRow is one Badger key rendered by the inspector.
type InspectRow struct {
	Key       string
	Type      string
	Timestamp string
	EntityID  string
	Detail    string
}

type RowMapper func(key string, val []byte) InspectRow

type StatsProvider func() map[string]any

type pageData struct {
	Prefix string
	Items  []InspectRow
	Stats  map[string]any
}

const defaultInspectLimit = 200

var inspectPage = template.Must(template.New("inspect").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>dm-relay inspector</title></head>
<body>
<form><input name="prefix" value="{{.Prefix}}"><button>Inspect</button></form>
{{if .Stats}}<ul>{{range $k, $v := .Stats}}<li>{{$k}}: {{$v}}</li>{{end}}</ul>{{end}}
<table>
<tr><th>Key</th><th>Type</th><th>Time</th><th>Entity</th><th>Detail</th></tr>
{{range .Items}}<tr><td>{{.Key}}</td><td>{{.Type}}</td><td>{{.Timestamp}}</td><td>{{.EntityID}}</td><td>{{.Detail}}</td></tr>{{end}}
</table>
</body></html>`))

// InspectHandler lists the Badger entries under ?prefix= (conv: by default).
func InspectHandler(db *badger.DB, mapper RowMapper, stats StatsProvider) http.Handler {
	if mapper == nil {
		mapper = DefaultMapper
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = "conv:"
		}
		data := pageData{Prefix: prefix, Stats: map[string]any{}}
		if stats != nil {
			data.Stats = stats()
		}

		err := db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)) && len(data.Items) < defaultInspectLimit; it.Next() {
				item := it.Item()
				key := string(item.KeyCopy(nil))
				if err := item.Value(func(val []byte) error {
					data.Items = append(data.Items, mapper(key, val))
					return nil
				}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		var page bytes.Buffer
		if err := inspectPage.Execute(&page, data); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(page.Bytes())
	})
}

// DefaultMapper understands the user: and conv: layouts and falls back to the raw size.
func DefaultMapper(key string, val []byte) InspectRow {
	row := InspectRow{
		Key:       key,
		Type:      "RAW",
		Timestamp: "--:--:--",
		EntityID:  "--------",
		Detail:    "Size: " + strconv.Itoa(len(val)) + " bytes",
	}

	parts := strings.Split(key, ":")
	switch parts[0] {
	case "user":
		row.Type = "USER"
		if len(parts) == 2 {
			row.EntityID = strings.TrimLeft(parts[1], "0")
		}
		var user struct {
			Username string `json:"username"`
		}
		if json.Unmarshal(val, &user) == nil && user.Username != "" {
			row.Detail = user.Username
		}
	case "username":
		row.Type = "INDEX"
		row.EntityID = string(val)
	case "conv":
		row.Type = "MESSAGE"
		if len(parts) == 4 {
			row.EntityID = strings.TrimLeft(parts[3], "0")
		}
		var msg struct {
			SenderID   int64  `json:"sender_id"`
			ReceiverID int64  `json:"receiver_id"`
			Content    string `json:"content"`
			At         int64  `json:"at"`
		}
		if json.Unmarshal(val, &msg) == nil {
			row.Timestamp = time.Unix(0, msg.At).UTC().Format("15:04:05")
			row.Detail = strconv.FormatInt(msg.SenderID, 10) + " -> " + strconv.FormatInt(msg.ReceiverID, 10) + ": " + msg.Content
		}
	}
	return row
}
