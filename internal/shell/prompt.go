package shell

import (
	"fmt"
	"strings"

	prompt "github.com/c-bata/go-prompt"
	"github.com/xtxerr/datastreams/internal/errors"
	"github.com/xtxerr/datastreams/internal/storage/types"
)

// deploymentCommands take deployment ids as arguments.
var deploymentCommands = map[string]bool{
	"open":    true,
	"load":    true,
	"query":   true,
	"close":   true,
	"remove":  true,
	"export":  true,
	"import":  true,
	"summary": true,
}

// Complete suggests command names for the first word, deployment ids for
// deployment arguments, and configured streams for query.
func (e *Executor) Complete(d prompt.Document) []prompt.Suggest {
	word := d.GetWordBeforeCursor()
	fields := strings.Fields(d.TextBeforeCursor())

	// Position of the word being completed.
	pos := len(fields)
	if word != "" {
		pos--
	}

	if pos <= 0 {
		return prompt.FilterHasPrefix(e.commandSuggestions(), word, true)
	}

	cmd := fields[0]
	if !deploymentCommands[cmd] {
		return nil
	}

	switch {
	case pos == 1 || cmd == "close" || cmd == "remove":
		return prompt.FilterHasPrefix(e.deploymentSuggestions(), word, true)
	case cmd == "query" && pos == 2:
		return prompt.FilterHasPrefix(e.streamSuggestions(fields[1]), word, true)
	case cmd == "open" && pos >= 2:
		return prompt.FilterHasPrefix(dataTypeSuggestions(word), word, true)
	}
	return nil
}

func (e *Executor) commandSuggestions() []prompt.Suggest {
	s := make([]prompt.Suggest, 0, len(commands))
	for _, c := range commands {
		s = append(s, prompt.Suggest{Text: c.name, Description: c.help})
	}
	return s
}

func (e *Executor) deploymentSuggestions() []prompt.Suggest {
	var s []prompt.Suggest
	for _, id := range e.svc.Deployments() {
		desc := "open"
		if e.svc.IsClosed(id) {
			desc = "closed"
		}
		s = append(s, prompt.Suggest{Text: id.String(), Description: desc})
	}
	return s
}

func (e *Executor) streamSuggestions(deployment string) []prompt.Suggest {
	id, err := parseDeployment(deployment)
	if err != nil {
		return nil
	}
	cfg, ok := e.svc.Configuration(id)
	if !ok {
		return nil
	}

	var s []prompt.Suggest
	for _, es := range cfg.ExpectedStreams {
		s = append(s, prompt.Suggest{Text: quoteArg(es.DeviceRole + "=" + es.DataType.String())})
	}
	return s
}

// dataTypeSuggestions completes the data type after "<role>=".
func dataTypeSuggestions(word string) []prompt.Suggest {
	i := strings.LastIndex(word, "=")
	if i < 0 {
		return nil
	}
	role := word[:i+1]

	known := []types.DataType{
		types.GeolocationType,
		types.HeartRateType,
		types.ECGType,
		types.StepCountType,
		types.AccelerationType,
		types.SignalStrengthType,
		types.TriggeredTaskType,
		types.CompletedTaskType,
	}
	s := make([]prompt.Suggest, len(known))
	for i, dt := range known {
		s[i] = prompt.Suggest{Text: role + dt.String()}
	}
	return s
}

func quoteArg(s string) string {
	if strings.ContainsAny(s, " \t") {
		return `"` + s + `"`
	}
	return s
}

// Run starts the interactive prompt and returns when the user exits.
func (e *Executor) Run() {
	var done bool

	execute := func(line string) {
		err := e.Execute(line)
		if errors.Is(err, ErrExit) {
			done = true
			return
		}
		if err != nil {
			fmt.Fprintf(e.out, "error: %v\n", err)
		}
	}

	p := prompt.New(
		execute,
		e.Complete,
		prompt.OptionTitle("datastreams"),
		prompt.OptionPrefix("datastreams> "),
		prompt.OptionSetExitCheckerOnInput(func(string, bool) bool { return done }),
	)
	p.Run()
}
