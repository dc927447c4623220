package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "board":
		return boardTemplate, nil
	case "ground":
		return groundTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const boardTemplate = `name = "flight-board"
byte_order = "little"
transmit_policy = "non_local"

[http]
addr = ":9300"
cors_origins = ["http://localhost:3000"]

[transport]
addr = "localhost:9400"
dial_timeout = "5s"
write_timeout = "2s"
security_mode = "dev"

[[endpoints]]
name = "SD_CARD"
sink = "file"
path = "sd_card.bin"
`

const groundTemplate = `name = "ground-station"
byte_order = "little"

[http]
addr = ":9301"
cors_origins = ["http://localhost:3000"]
# token = "change-me"

[transport]
listen = ":9400"
security_mode = "dev"

[[endpoints]]
name = "RADIO"
sink = "sqlite"
path = "ground.sqlite3"

[[endpoints]]
name = "RADIO"
sink = "jsonl"
path = "ground.jsonl"

[[endpoints]]
name = "RADIO"
sink = "log"
`
