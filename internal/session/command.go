package session

import (
	"strings"

	"github.com/kballard/go-shellquote"
)

// Command families understood by the Integrity CLI
const (
	AppSI = "si"
	AppIM = "im"
)

// Option is a single named command option. Flag-only options have no value.
type Option struct {
	Name     string
	Value    string
	HasValue bool
}

// Flag returns a flag-only option such as --recurse.
func Flag(name string) Option {
	return Option{Name: name}
}

// Value returns a key/value option such as --project=/a/project.pj.
func Value(name, value string) Option {
	return Option{Name: name, Value: value, HasValue: true}
}

// Arg renders the option as a single CLI argument. Single letter names use
// the short form (-f).
func (o Option) Arg() string {
	prefix := "--"
	if len(o.Name) == 1 {
		prefix = "-"
	}
	if !o.HasValue {
		return prefix + o.Name
	}
	return prefix + o.Name + "=" + o.Value
}

// Command describes one remote request: a command family, a verb, its
// options and a selection.
type Command struct {
	App       string
	Verb      string
	Options   []Option
	Selection []string
}

// NewCommand creates a command for the given family and verb.
func NewCommand(app, verb string) *Command {
	return &Command{App: app, Verb: verb}
}

// AddFlag appends a flag-only option.
func (c *Command) AddFlag(name string) *Command {
	c.Options = append(c.Options, Flag(name))
	return c
}

// AddOption appends a key/value option.
func (c *Command) AddOption(name, value string) *Command {
	c.Options = append(c.Options, Value(name, value))
	return c
}

// Select appends a selection target.
func (c *Command) Select(target string) *Command {
	c.Selection = append(c.Selection, target)
	return c
}

// Option returns the value of the first option with the given name.
func (c *Command) Option(name string) (string, bool) {
	for _, o := range c.Options {
		if o.Name == name {
			return o.Value, true
		}
	}
	return "", false
}

// OptionValues returns the values of every option with the given name, in
// the order they were added.
func (c *Command) OptionValues(name string) []string {
	var values []string
	for _, o := range c.Options {
		if o.Name == name {
			values = append(values, o.Value)
		}
	}
	return values
}

// HasFlag reports whether an option with the given name was added.
func (c *Command) HasFlag(name string) bool {
	_, ok := c.Option(name)
	return ok
}

// Args returns the verb, options and selection as CLI arguments.
func (c *Command) Args() []string {
	args := make([]string, 0, 1+len(c.Options)+len(c.Selection))
	args = append(args, c.Verb)
	for _, o := range c.Options {
		args = append(args, o.Arg())
	}
	args = append(args, c.Selection...)
	return args
}

// String renders the command as a shell-quoted command line.
func (c *Command) String() string {
	return shellquote.Join(append([]string{c.App}, c.Args()...)...)
}

// redactedOptions are never written to logs verbatim.
var redactedOptions = []string{"--password="}

// RenderCommandLine shell-quotes a full command line for logging, masking
// secret option values.
func RenderCommandLine(name string, args []string) string {
	masked := make([]string, 0, len(args)+1)
	masked = append(masked, name)
	for _, arg := range args {
		for _, prefix := range redactedOptions {
			if strings.HasPrefix(arg, prefix) {
				arg = prefix + "REDACTED"
				break
			}
		}
		masked = append(masked, arg)
	}
	return shellquote.Join(masked...)
}
