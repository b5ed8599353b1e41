package record

// Expander is implemented by a Record's decoder Payload: it turns the raw
// decoded dump entry (RIB row, UPDATE message, or state change) into its
// flat sequence of Elements. Package reader's payload types implement this.
type Expander interface {
	Expand() []Element
}

// Generator lazily expands a Record's Payload into Elements on first use,
// then iterates the cached sequence without re-parsing (spec.md §4.6).
type Generator struct {
	record *Record
	elems  []Element
	cursor int
	parsed bool
}

func newGenerator(r *Record) *Generator {
	return &Generator{record: r}
}

func (g *Generator) ensureParsed() {
	if g.parsed {
		return
	}
	g.parsed = true
	if exp, ok := g.record.Payload.(Expander); ok {
		g.elems = exp.Expand()
	}
	if g.record.Annotate != nil {
		for i := range g.elems {
			g.record.Annotate(&g.elems[i])
		}
	}
}

// NextElement returns the next Element, or ok=false once the sequence is
// exhausted.
func (g *Generator) NextElement() (Element, bool) {
	g.ensureParsed()
	if g.cursor >= len(g.elems) {
		return Element{}, false
	}
	e := g.elems[g.cursor]
	g.cursor++
	return e, true
}

// Len returns the total number of elements, parsing on first call.
func (g *Generator) Len() int {
	g.ensureParsed()
	return len(g.elems)
}
