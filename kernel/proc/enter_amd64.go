package proc

// enterUserMode builds the iretq frame spec.md §4.I describes and transitions
// the CPU to ring 3 at entryPoint, running on userStackTop with the given
// code/data selectors. Implemented in enter_amd64.s; never returns.
func enterUserMode(entryPoint, userStackTop uintptr, codeSelector, dataSelector uint16)
