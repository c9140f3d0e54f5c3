package bytecode

// Handler is one exception-table entry. The protected range runs from the
// position of Start up to but excluding the position of End.
type Handler struct {
	Start   Label
	End     Label
	Handler Label
	// Type is the internal name of the caught class, or "" to catch
	// everything (finally blocks).
	Type string
}

// IsCatchAll reports whether the handler catches every throwable.
func (h Handler) IsCatchAll() bool {
	return h.Type == ""
}
