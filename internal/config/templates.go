package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "testbench":
		return testbenchTemplate, nil
	case "minimal":
		return minimalTemplate, nil
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

const testbenchTemplate = `oem_id = "RASCTL"
oem_table_id = "RASCTLHE"

[server]
name = "rasctl"
addr = ":9300"
cors_origins = ["http://localhost:3000"]

[memory]
base = 0x40000000
size = 0x100000

[rasf]
enabled = true
variant = "ras2"

[mhd]
path = "/var/run/rasctl/mhd.state"
head_id = 0

[[devices]]
id = "cxl-mem0"
vendor = 0x8086
device = 0x0d93
class = 0x050210
bus = 0x0c
slot = 0
function = 0
role = "endpoint-memory"
serial = 0x3cd001122334455
dvsec_body = 20

[[devices]]
id = "cxl-rp0"
vendor = 0x8086
device = 0x7075
class = 0x060400
bus = 0x00
slot = 2
function = 0
role = "root-port"
dvsec_body = 20
`

const minimalTemplate = `[memory]
size = 0x100000
`
