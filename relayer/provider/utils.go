package provider

import (
	"github.com/avast/retry-go/v4"
	clienttypes "github.com/cosmos/ibc-go/v3/modules/core/02-client/types"
	ibcexported "github.com/cosmos/ibc-go/v3/modules/core/exported"
)

// RtyErr makes retried waits report the last error only.
var RtyErr = retry.LastErrorOnly(true)

// MustGetHeight takes the height interface and returns the actual height
func MustGetHeight(h ibcexported.Height) clienttypes.Height {
	height, ok := h.(clienttypes.Height)
	if !ok {
		panic("height is not an instance of height!")
	}
	return height
}

// Attribute returns the value of key in the first event of type eventType, if any.
func Attribute(events []RelayerEvent, eventType, key string) (string, bool) {
	for _, event := range events {
		if event.EventType != eventType {
			continue
		}
		if v, ok := event.Attributes[key]; ok {
			return v, true
		}
	}
	return "", false
}
