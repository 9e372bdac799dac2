// cmd/atlasbey/shell.go
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
)

const historyFile = ".atlasbey_history"

func historyPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, historyFile)
	}
	return historyFile
}

// shell runs the interactive prompt until quit, Ctrl-D or ctx ends.
func (a *app) shell(ctx context.Context) {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true) // ^C cancels current line
	line.SetCompleter(func(in string) (c []string) {
		fields := strings.Fields(in)
		if len(fields) == 2 && fields[0] == "set" && !strings.HasSuffix(in, " ") {
			for _, name := range settingNames() {
				if strings.HasPrefix(name, fields[1]) {
					c = append(c, "set "+name)
				}
			}
			return
		}
		for _, name := range commandNames() {
			if strings.HasPrefix(name, strings.ToLower(in)) {
				c = append(c, name)
			}
		}
		return
	})

	hist := historyPath()
	if f, err := os.Open(hist); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}

	fmt.Fprintln(a.out, `Interactive mode. Type "help" for commands, Ctrl-D to quit.`)
loop:
	for ctx.Err() == nil {
		input, err := line.Prompt("atlas> ")
		if err == liner.ErrPromptAborted || err == io.EOF {
			fmt.Fprintln(a.out)
			break
		}
		if err != nil {
			a.log.Error().Err(err).Msg("prompt failed")
			break
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		tokens := strings.Fields(input)
		switch tokens[0] {
		case "help":
			a.printHelp()
			continue
		case "quit", "exit":
			break loop
		}

		if err := a.run(ctx, tokens[0], tokens[1:]); err != nil {
			fmt.Fprintf(a.out, "error: %v\n", err)
		}
	}

	if f, err := os.Create(hist); err == nil {
		_, _ = line.WriteHistory(f)
		f.Close()
	}
}
