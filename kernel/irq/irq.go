package irq

import "github.com/lmarrow/nyxkernel/kernel"

// panicFn is used by tests to avoid halting the test binary.
var panicFn = kernel.Panic
