package cli

import (
	"maps"
	"slices"
)

// Environment is the process view handed to the guest: variables,
// arguments and the initial working directory.
type Environment struct {
	env  map[string]string
	cwd  string
	args []string
}

func NewEnvironment(env map[string]string, args []string, cwd string) *Environment {
	if cwd == "" {
		cwd = "/"
	}
	return &Environment{
		env:  maps.Clone(env),
		args: slices.Clone(args),
		cwd:  cwd,
	}
}

// Variables returns key/value pairs sorted by key.
func (e *Environment) Variables() [][2]string {
	out := make([][2]string, 0, len(e.env))
	for _, k := range slices.Sorted(maps.Keys(e.env)) {
		out = append(out, [2]string{k, e.env[k]})
	}
	return out
}

func (e *Environment) Arguments() []string {
	return slices.Clone(e.args)
}

func (e *Environment) InitialCwd() string {
	return e.cwd
}
