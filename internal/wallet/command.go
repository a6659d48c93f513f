// ABOUTME: The closed set of wallet commands an app can invoke
// ABOUTME: Parsed from wire names and dispatched through a static table

package wallet

import (
	"fmt"
)

// Command identifies a wallet operation.
type Command int

const (
	CommandGetAccounts Command = iota
	CommandGetAddressBook
	CommandRegisterContract
	CommandRegisterSender
	CommandSimulateTx
	CommandSimulateUtility
	CommandSendTx
	CommandCreateAuthWit
	CommandGetPrivateEvents
	CommandGetContractMetadata
	CommandGetContractClassMetadata
	CommandRequestCapabilities

	commandCount
)

var commandNames = [commandCount]string{
	CommandGetAccounts:              "getAccounts",
	CommandGetAddressBook:           "getAddressBook",
	CommandRegisterContract:         "registerContract",
	CommandRegisterSender:           "registerSender",
	CommandSimulateTx:               "simulateTx",
	CommandSimulateUtility:          "simulateUtility",
	CommandSendTx:                   "sendTx",
	CommandCreateAuthWit:            "createAuthWit",
	CommandGetPrivateEvents:         "getPrivateEvents",
	CommandGetContractMetadata:      "getContractMetadata",
	CommandGetContractClassMetadata: "getContractClassMetadata",
	CommandRequestCapabilities:      "requestCapabilities",
}

func (c Command) String() string {
	if c < 0 || c >= commandCount {
		return fmt.Sprintf("Command(%d)", int(c))
	}
	return commandNames[c]
}

// ParseCommand maps a wire name to its Command.
func ParseCommand(name string) (Command, error) {
	for i, n := range commandNames {
		if n == name {
			return Command(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
}

// Commands returns every command in declaration order.
func Commands() []Command {
	out := make([]Command, commandCount)
	for i := range out {
		out[i] = Command(i)
	}
	return out
}
