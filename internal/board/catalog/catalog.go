// Package catalog selects a console model by name.
package catalog

import (
	"fmt"
	"slices"
	"strings"

	"github.com/nerrad567/gray-logic-mixer/internal/board"
	"github.com/nerrad567/gray-logic-mixer/internal/board/allenheath"
	"github.com/nerrad567/gray-logic-mixer/internal/board/behringer"
	"github.com/nerrad567/gray-logic-mixer/internal/board/focusrite"
)

var models = map[string]func() board.Model{
	"qu24":     func() board.Model { return allenheath.Qu24() },
	"gld80":    func() board.Model { return allenheath.GLD80() },
	"xair":     func() board.Model { return behringer.XAir{} },
	"command8": func() board.Model { return focusrite.Command8{} },
}

// normalise folds "Qu-24", "qu_24" and "QU 24" to "qu24".
func normalise(name string) string {
	r := strings.NewReplacer("-", "", "_", "", " ", "")
	return strings.ToLower(r.Replace(name))
}

// Lookup returns the model registered under name.
func Lookup(name string) (board.Model, error) {
	ctor, ok := models[normalise(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", board.ErrUnknownModel, name, strings.Join(Names(), ", "))
	}
	return ctor(), nil
}

// Names lists the known model names.
func Names() []string {
	names := make([]string, 0, len(models))
	for n := range models {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Open looks up a model and creates a board for it.
func Open(name string, cfg board.Config) (*board.Board, error) {
	m, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return board.New(m, cfg)
}
