package wasmir

// CompileErrorKind classifies a compile-time failure (§7).
type CompileErrorKind byte

const (
	FailedToParse CompileErrorKind = iota
	FailedToCompile
	Unsupported
)

func (k CompileErrorKind) String() string {
	switch k {
	case FailedToParse:
		return "failed to parse"
	case FailedToCompile:
		return "failed to compile"
	case Unsupported:
		return "unsupported operation"
	}
	return "unknown compile error"
}

// CompileError is returned by the module environment and the compiler for
// any failure before a Module IR exists.
type CompileError struct {
	Kind CompileErrorKind
	// Detail names the offending construct, e.g. the Op that triggered
	// Unsupported.
	Detail string
}

func (e *CompileError) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Detail
}

// ModuleErrorKind classifies an instantiation-time failure (§6, §7).
type ModuleErrorKind byte

const (
	// FailedToInstantiate covers missing dependency, missing export,
	// bounds violation, allocator error, and unsupported relocation.
	FailedToInstantiate ModuleErrorKind = iota
	// TypeError covers kind mismatch or signature mismatch on import.
	TypeError
	// RuntimeError covers an allocator contract violation (the callback
	// was not invoked exactly once).
	RuntimeError
)

func (k ModuleErrorKind) String() string {
	switch k {
	case FailedToInstantiate:
		return "failed to instantiate"
	case TypeError:
		return "type error"
	case RuntimeError:
		return "runtime error"
	}
	return "unknown module error"
}

// ModuleError is returned by Instance.Instantiate. All instantiation
// errors abort instantiation fully; no partial instance is ever
// observable.
type ModuleError struct {
	Kind   ModuleErrorKind
	Detail string
}

func (e *ModuleError) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Detail
}
