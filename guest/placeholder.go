package guest

import "fmt"

// PortReport stands in for a real collector: it describes the port it was
// handed as capability.
var PortReport = SourceFunc(func(port int32) ([]byte, error) {
	return fmt.Appendf(nil, "some string information 123 with - data {inside} and port: %d", port), nil
})
