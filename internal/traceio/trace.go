package traceio

import "go.opentelemetry.io/otel/attribute"

// Span attributes recorded by a generation pass.
const (
	PassKey     = attribute.Key("packgen.pass")
	PatternsKey = attribute.Key("packgen.patterns")
	PackageKey  = attribute.Key("packgen.package")
	ItemsKey    = attribute.Key("packgen.items")
	TypeKey     = attribute.Key("packgen.type")
	FilesKey    = attribute.Key("packgen.files")
	ProblemsKey = attribute.Key("packgen.problems")
)

func Pass(id string) attribute.KeyValue {
	return PassKey.String(id)
}

func Package(path string) attribute.KeyValue {
	return PackageKey.String(path)
}

func Type(name string) attribute.KeyValue {
	return TypeKey.String(name)
}
