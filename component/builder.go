package component

import "github.com/pulseengine/wrt-sub014/decoder"

// Builder fluently assembles a Component, used by both the production
// loader (populating it from parsed sections) and by tests building
// fixtures without a binary. Mirrors component_builder.rs's
// ComponentTypeBuilder chain, minus its bounded-collection capacity
// limits (this port has no no_std arena to size ahead of time).
type Builder struct {
	component *Component
}

// NewBuilder starts an empty Component under name.
func NewBuilder(name string) *Builder {
	return &Builder{component: &Component{Name: name}}
}

// WithImport appends one import entry.
func (b *Builder) WithImport(imp decoder.Import) *Builder {
	b.component.Imports = append(b.component.Imports, imp)
	return b
}

// WithImports appends multiple import entries.
func (b *Builder) WithImports(imports ...decoder.Import) *Builder {
	b.component.Imports = append(b.component.Imports, imports...)
	return b
}

// WithExport appends one export entry.
func (b *Builder) WithExport(exp decoder.Export) *Builder {
	b.component.Exports = append(b.component.Exports, exp)
	return b
}

// WithExports appends multiple export entries.
func (b *Builder) WithExports(exports ...decoder.Export) *Builder {
	b.component.Exports = append(b.component.Exports, exports...)
	return b
}

// WithAdapter attaches a core module adapter.
func (b *Builder) WithAdapter(adapter *CoreModuleAdapter) *Builder {
	b.component.Adapters = append(b.component.Adapters, adapter)
	return b
}

// WithResource declares a resource type under name.
func (b *Builder) WithResource(name string) *Builder {
	b.component.Resources = append(b.component.Resources, ResourceTypeDecl{Name: name})
	return b
}

// Build returns the assembled Component.
func (b *Builder) Build() *Component {
	return b.component
}
