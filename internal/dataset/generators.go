package dataset

import "sort"

// Generator describes one supported MOA stream-generator family.
type Generator struct {
	// Name is the short identifier used in definitions ("Agrawal").
	Name string `json:"name" yaml:"name"`
	// Class is the MOA class name under moa.streams.generators.
	Class string `json:"class" yaml:"class"`
	// MinFunction and MaxFunction bound the classification function ids.
	MinFunction int `json:"min_function" yaml:"min_function"`
	MaxFunction int `json:"max_function" yaml:"max_function"`
}

// SupportsFunction reports whether fn is a valid classification function id.
func (g Generator) SupportsFunction(fn int) bool {
	return fn >= g.MinFunction && fn <= g.MaxFunction
}

// Functions lists every supported function id in ascending order.
func (g Generator) Functions() []int {
	out := make([]int, 0, g.MaxFunction-g.MinFunction+1)
	for fn := g.MinFunction; fn <= g.MaxFunction; fn++ {
		out = append(out, fn)
	}
	return out
}

var generators = map[string]Generator{
	"Agrawal": {Name: "Agrawal", Class: "AgrawalGenerator", MinFunction: 1, MaxFunction: 11},
	"STAGGER": {Name: "STAGGER", Class: "STAGGERGenerator", MinFunction: 1, MaxFunction: 3},
	"SEA":     {Name: "SEA", Class: "SEAGenerator", MinFunction: 1, MaxFunction: 4},
}

// LookupGenerator returns the generator registered under name.
func LookupGenerator(name string) (Generator, bool) {
	g, ok := generators[name]
	return g, ok
}

// Generators returns all supported generators sorted by name.
func Generators() []Generator {
	out := make([]Generator, 0, len(generators))
	for _, g := range generators {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func generatorNames() []string {
	names := make([]string, 0, len(generators))
	for name := range generators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
