package relayer

import (
	"fmt"

	"github.com/cosmos/link-relayer/relayer/provider"
)

// GetCodespace returns the description of an error code in the given codespace.
func GetCodespace(codespace string, code int) (msg string, err error) {
	if cs, ok := codespaces[codespace]; ok {
		if val, ok := cs[code]; ok {
			msg = val
		}
	} else {
		err = fmt.Errorf("codespace for %s(%d) not found in map", codespace, code)
	}
	return
}

// decodeFailure renders a failed tx result as a human readable message,
// preferring the raw log returned by the chain.
func decodeFailure(res *provider.RelayerTxResponse) string {
	msg, err := GetCodespace(res.Codespace, int(res.Code))
	switch {
	case err != nil || msg == "":
		msg = fmt.Sprintf("%s(%d)", res.Codespace, res.Code)
	default:
		msg = fmt.Sprintf("%s(%d): %s", res.Codespace, res.Code, msg)
	}
	if res.Data != "" {
		msg += ": " + res.Data
	}
	return msg
}

var codespaces = map[string]map[int]string{
	"client": {
		2:  "light client already exists",
		3:  "light client not found",
		4:  "light client is frozen due to misbehaviour",
		5:  "invalid client metadata",
		6:  "consensus state not found",
		7:  "invalid consensus state",
		8:  "client type not found",
		9:  "invalid client type",
		10: "commitment root not found",
		11: "invalid client header",
		12: "invalid light client misbehaviour",
		13: "client state verification failed",
		14: "client consensus state verification failed",
		15: "connection state verification failed",
		16: "channel state verification failed",
		17: "packet commitment verification failed",
		18: "packet acknowledgement verification failed",
		19: "packet receipt verification failed",
		20: "next sequence receive verification failed",
		21: "self consensus state not found",
		22: "unable to update light client",
		25: "invalid height",
		28: "client is not active",
	},
	"connection": {
		2:  "connection already exists",
		3:  "connection not found",
		4:  "light client connection paths not found",
		5:  "connection path is not associated to the given light client",
		6:  "invalid connection state",
		7:  "invalid counterparty connection",
		8:  "invalid connection",
		9:  "invalid connection version",
		10: "connection version negotiation failed",
		11: "invalid connection identifier",
	},
	"channel": {
		2:  "channel already exists",
		3:  "channel not found",
		4:  "invalid channel",
		5:  "invalid channel state",
		6:  "invalid channel ordering",
		7:  "invalid counterparty channel",
		8:  "invalid channel capability",
		9:  "channel capability not found",
		10: "sequence send not found",
		11: "sequence receive not found",
		12: "sequence acknowledgement not found",
		13: "invalid packet",
		14: "packet timeout",
		15: "too many connection hops",
		16: "invalid acknowledgement",
		17: "acknowledgement for packet already exists",
		18: "invalid channel identifier",
		19: "packet already received",
		20: "packet commitment not found",
		21: "packet sequence is out of order",
		22: "message is redundant, no-op will be performed",
		23: "invalid channel version",
	},
	"commitment": {
		2: "invalid proof",
		3: "invalid prefix",
		4: "invalid merkle proof",
	},
	"transfer": {
		2: "invalid packet timeout",
		3: "invalid denomination for cross-chain transfer",
		5: "invalid token amount",
		8: "fungible token transfers to/from this chain are disabled",
	},
	"sdk": {
		2:  "tx parse error",
		3:  "invalid sequence",
		4:  "unauthorized",
		5:  "insufficient funds",
		6:  "unknown request",
		7:  "invalid address",
		8:  "invalid pubkey",
		9:  "unknown address",
		10: "invalid coins",
		11: "out of gas",
		12: "memo too large",
		13: "insufficient fee",
		14: "maximum number of signatures exceeded",
		15: "no signatures supplied",
		18: "invalid request",
		19: "tx already in mempool",
		20: "mempool is full",
		21: "tx too large",
	},
}
