// Package packgen derives binary Pack and Unpack methods for Go structs.
//
// A struct opts into generation by embedding Serializable:
//
//	type Item struct {
//		packgen.Serializable
//		ID   int32
//		Name string
//	}
//
// or by carrying a directive comment on its declaration:
//
//	//packgen:serializable
//	type Item struct { ... }
//
// Running "packgen generate" then writes a packgen_gen.go file next to the
// type with Pack(*codec.Encoder) and Unpack(*codec.Decoder) methods and the
// NewItem and NewItemFrom constructors.
//
// Members are the struct's exported fields, including those promoted from
// embedded structs, and its exported properties: a getter X() T paired with
// a setter SetX(T). A field tagged `pack:"-"` or a field or getter marked
// //packgen:ignore is skipped. A field tagged `pack:"include"` or a member
// marked //packgen:include is serialized even if unexported or read-only.
package packgen

// Serializable marks the struct embedding it for code generation.
type Serializable struct{}
