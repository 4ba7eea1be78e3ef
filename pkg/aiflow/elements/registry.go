package elements

import (
	"sort"
	"sync"

	"github.com/randalmurphal/aiflow/pkg/aiflow"
)

// Definition is how a tag becomes an element.
type Definition struct {
	Type        aiflow.ElementType
	SubType     string
	Constructor aiflow.Constructor
}

// Registry maps tags to definitions. Unregistered tags become generic
// actions. Registry is safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

var defaultRegistry = NewRegistry()

// NewRegistry returns a registry holding the structural tags.
func NewRegistry() *Registry {
	r := &Registry{defs: make(map[string]Definition)}
	builtin := map[string]Definition{
		TagWorkflow:   {aiflow.TypeUserInput, TagWorkflow, aiflow.ConstructorFunc(constructWorkflow)},
		TagState:      {aiflow.TypeState, TagState, aiflow.ConstructorFunc(constructState)},
		TagParallel:   {aiflow.TypeState, TagParallel, aiflow.ConstructorFunc(constructParallel)},
		TagFinal:      {aiflow.TypeOutput, TagFinal, aiflow.ConstructorFunc(constructFinal)},
		TagTransition: {aiflow.TypeAction, TagTransition, aiflow.ConstructorFunc(constructTransition)},
		TagIf:         {aiflow.TypeAction, TagIf, aiflow.ConstructorFunc(constructIf)},
		TagElseIf:     {aiflow.TypeAction, TagElseIf, aiflow.ConstructorFunc(constructMarker)},
		TagElse:       {aiflow.TypeAction, TagElse, aiflow.ConstructorFunc(constructMarker)},
		TagDataModel:  {aiflow.TypeData, TagDataModel, aiflow.ConstructorFunc(constructDataModel)},
		TagData:       {aiflow.TypeData, TagData, aiflow.ConstructorFunc(constructNothing)},
	}
	for tag, def := range builtin {
		r.defs[tag] = def
	}
	return r
}

// Register adds or replaces tag. An empty SubType defaults to the tag and
// a nil Constructor to the generic action constructor.
func (r *Registry) Register(tag string, def Definition) {
	if def.SubType == "" {
		def.SubType = tag
	}
	if def.Type == "" {
		def.Type = aiflow.TypeAction
	}
	if def.Constructor == nil {
		def.Constructor = aiflow.ConstructorFunc(constructAction)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[tag] = def
}

// Lookup returns the definition for tag.
func (r *Registry) Lookup(tag string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[tag]
	return def, ok
}

// Tags returns the registered tags, sorted.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.defs))
	for tag := range r.defs {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

func (r *Registry) resolve(tag string) Definition {
	if def, ok := r.Lookup(tag); ok {
		return def
	}
	return Definition{Type: aiflow.TypeAction, SubType: tag, Constructor: aiflow.ConstructorFunc(constructAction)}
}

// New builds an element for tag. An "id" attribute becomes the element's
// ID, except on data elements where it names the field.
func (r *Registry) New(tag string, attrs map[string]any, children ...*aiflow.Element) *aiflow.Element {
	def := r.resolve(tag)
	el := &aiflow.Element{
		Tag:         tag,
		Type:        def.Type,
		SubType:     def.SubType,
		Attributes:  attrs,
		Children:    children,
		Constructor: def.Constructor,
	}
	if id, ok := attrs[AttrID].(string); ok && tag != TagData {
		el.ID = id
	}
	return el
}

// Fallback returns a constructor that dispatches on the element's tag.
func (r *Registry) Fallback() aiflow.Constructor {
	return aiflow.ConstructorFunc(func(bc *aiflow.BuildContext) (*aiflow.ExecutionGraphElement, error) {
		return r.resolve(bc.Element().Tag).Constructor.Construct(bc)
	})
}
