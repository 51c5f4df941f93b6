package tra

import "os"

// DebugEnabled controls whether or not verbose debug logging is enabled. It
// is set automatically based on the TRA_DEBUG environment variable.
var DebugEnabled bool

func init() {
	DebugEnabled = os.Getenv("TRA_DEBUG") == "1"
}
