package common

import "fmt"

// ErrIterStop is the sentinel a Storage.ForEach implementation's
// callback-returned-false path maps to when handing the error back up
// through a transaction/command API that otherwise expects nil-or-real-error.
var ErrIterStop = fmt.Errorf("storage: iteration stopped")
