package core

// JSRuntime abstracts the JavaScript engine for bridge and session code.
// Implemented by the sandbox runtime; tests substitute fakes.
type JSRuntime interface {
	// Eval evaluates JavaScript and discards the result.
	Eval(js string) error

	// EvalString evaluates JavaScript and returns the result as a string.
	EvalString(js string) (string, error)

	// EvalBool evaluates JavaScript and returns the result as a bool.
	EvalBool(js string) (bool, error)

	// EvalInt evaluates JavaScript and returns the result as an int.
	EvalInt(js string) (int, error)

	// RegisterFunc registers a Go function as a global JS function.
	RegisterFunc(name string, fn any) error

	// SetGlobal sets a property on the global object.
	SetGlobal(name string, value any) error

	// RunMicrotasks pumps the engine's microtask queue until empty and
	// returns the number of jobs executed.
	RunMicrotasks() int
}
