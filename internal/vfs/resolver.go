package vfs

// Resolver maps a normalized absolute path to the backend owning it and
// the name to use inside that backend. A nil capability set means no
// backend claims the path.
type Resolver interface {
	ResolveDir(name string) (DirOps, string)
	ResolveFile(name string) (FileOps, string)
}

// NotFound is the default resolver; it claims nothing.
var NotFound Resolver = ResolverFuncs{}

// ResolverFuncs adapts a pair of functions to a Resolver. A nil function
// resolves nothing.
type ResolverFuncs struct {
	Dir  func(name string) (DirOps, string)
	File func(name string) (FileOps, string)
}

// ResolveDir implements Resolver.
func (r ResolverFuncs) ResolveDir(name string) (DirOps, string) {
	if r.Dir == nil {
		return nil, name
	}
	return r.Dir(name)
}

// ResolveFile implements Resolver.
func (r ResolverFuncs) ResolveFile(name string) (FileOps, string) {
	if r.File == nil {
		return nil, name
	}
	return r.File(name)
}
