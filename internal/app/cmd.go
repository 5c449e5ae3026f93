package app

import (
	"fmt"
	"sort"
	"strings"
)

// Command はサブコマンド名。
type Command string

const (
	CommandServe   Command = "serve"
	CommandWorker  Command = "worker"
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はdistrolessイメージのHEALTHCHECKから呼ばれる。
	CommandHealthcheck Command = "healthcheck"
)

var knownCommands = map[Command]bool{
	CommandServe:       true,
	CommandWorker:      true,
	CommandMigrate:     true,
	CommandHealthcheck: true,
}

// ParseCommand は先頭引数をサブコマンドとして解釈する。省略時はserve。
// 2番目以降の引数は見ない。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 || args[0] == "" {
		return CommandServe, nil
	}
	cmd := Command(args[0])
	if !knownCommands[cmd] {
		return "", fmt.Errorf("unknown command %q (available: %s)", args[0], availableCommands())
	}
	return cmd, nil
}

func availableCommands() string {
	names := make([]string, 0, len(knownCommands))
	for c := range knownCommands {
		names = append(names, string(c))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
