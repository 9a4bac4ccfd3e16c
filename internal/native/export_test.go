package native

// Dispatch hands failure to handler the way the native callback does.
func Dispatch(handler func(Failure) bool, failure Failure) uintptr {
	r := &Runtime{handler: handler}

	return r.dispatch(failure)
}
