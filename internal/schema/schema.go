package schema

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

//go:embed config.cue
var configCUE string

type Schema struct {
	Context *cue.Context
	Value   cue.Value
}

// Compile builds a schema from CUE source. The source must define #Config.
func Compile(src string) (*Schema, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename("config.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}
	if err := v.LookupPath(cue.ParsePath("#Config")).Err(); err != nil {
		return nil, fmt.Errorf("schema has no #Config: %w", err)
	}
	return &Schema{Context: ctx, Value: v}, nil
}

var (
	defaultOnce   sync.Once
	defaultSchema *Schema

	// cue values built from one Context must not be used concurrently.
	mu sync.Mutex
)

// Default returns the built-in embedded schema.
func Default() *Schema {
	defaultOnce.Do(func() {
		s, err := Compile(configCUE)
		if err != nil {
			panic(fmt.Sprintf("failed to parse default embedded schema: %v", err))
		}
		defaultSchema = s
	})
	return defaultSchema
}

// Validate checks decoded configuration data, typically the generic map a
// TOML decoder produces, against #Config.
func (s *Schema) Validate(data any) error {
	mu.Lock()
	defer mu.Unlock()

	def := s.Value.LookupPath(cue.ParsePath("#Config"))
	res := def.Unify(s.Context.Encode(data))
	if err := res.Validate(cue.Concrete(true)); err != nil {
		var msgs []string
		for _, e := range errors.Errors(err) {
			msgs = append(msgs, e.Error())
		}
		return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
	}
	return nil
}
