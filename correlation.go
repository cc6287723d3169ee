package eventcore

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// IDGenerator produces a fresh opaque identifier on every call.
type IDGenerator func() string

// NewCorrelationID is the default IDGenerator for command correlation ids.
var NewCorrelationID IDGenerator = func() string {
	return "cmd_" + gonanoid.Must()
}
