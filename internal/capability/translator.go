// ABOUTME: Translates capability grants to storage keys and back
// ABOUTME: The inverse is best-effort and lossy; it is meant for display only

package capability

import (
	"encoding/json"
	"sort"
	"strings"
)

// Storage key methods produced by the translator and used by operations.
const (
	MethodGetAccounts              = "getAccounts"
	MethodCreateAuthWit            = "createAuthWit"
	MethodRegisterContract         = "registerContract"
	MethodGetContractMetadata      = "getContractMetadata"
	MethodGetContractClassMetadata = "getContractClassMetadata"
	MethodSimulateTx               = "simulateTx"
	MethodSimulateUtility          = "simulateUtility"
	MethodSendTx                   = "sendTx"
	MethodGetAddressBook           = "getAddressBook"
	MethodGetPrivateEvents         = "getPrivateEvents"
)

var truePayload = json.RawMessage(`true`)

// Entry is one storage key and the approval payload stored under it.
type Entry struct {
	Key     string
	Payload json.RawMessage
}

// ToStorageKeys expands a capability to its storage keys. The result is
// deterministic for a given capability.
func ToStorageKeys(c Capability) []string {
	entries := ToEntries(c)
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys
}

// ToEntries expands a capability to storage keys with their payloads.
// Every payload is `true` except getAccounts, which carries the granted
// account list as {"accounts": [...]}.
func ToEntries(c Capability) []Entry {
	var out []Entry
	add := func(key string, payload json.RawMessage) {
		for _, e := range out {
			if e.Key == key {
				return
			}
		}
		out = append(out, Entry{Key: key, Payload: payload})
	}
	addTrue := func(key string) { add(key, truePayload) }

	switch v := c.(type) {
	case Accounts:
		if v.CanGet {
			accounts := v.Accounts
			if accounts == nil {
				accounts = []Account{}
			}
			payload, _ := json.Marshal(map[string]any{"accounts": accounts})
			add(MethodGetAccounts, payload)
		}
		if v.CanCreateAuthWit {
			addTrue(MethodCreateAuthWit)
		}
	case Contracts:
		for _, addr := range v.Contracts.values() {
			if v.CanRegister {
				addTrue(Key(MethodRegisterContract, addr))
			}
			if v.CanGetMetadata {
				addTrue(Key(MethodGetContractMetadata, addr))
			}
		}
	case ContractClasses:
		if v.CanGetMetadata {
			for _, id := range v.Classes.values() {
				addTrue(Key(MethodGetContractClassMetadata, id))
			}
		}
	case Simulation:
		for _, k := range patternKeys(MethodSimulateTx, v.Transactions) {
			addTrue(k)
		}
		for _, k := range patternKeys(MethodSimulateUtility, v.Utilities) {
			addTrue(k)
		}
	case Transaction:
		for _, k := range patternKeys(MethodSendTx, v.Scope) {
			addTrue(k)
		}
	case Data:
		if v.AddressBook {
			addTrue(MethodGetAddressBook)
		}
		for _, addr := range v.PrivateEvents.values() {
			addTrue(Key(MethodGetPrivateEvents, addr))
		}
	}
	return out
}

func patternKeys(method string, s PatternScope) []string {
	if s.All {
		return []string{Key(method, Wildcard)}
	}
	keys := make([]string, 0, len(s.Patterns))
	for _, p := range s.Patterns {
		contract, fn := p.Contract, p.Function
		if contract == "" {
			contract = Wildcard
		}
		if fn == "" {
			fn = Wildcard
		}
		// Only a pattern wildcarded on both segments widens to the method.
		// A function on any contract keeps its function segment, which the
		// lookup fallbacks never reach, so those calls still prompt.
		if contract == Wildcard && fn == Wildcard {
			keys = append(keys, Key(method, Wildcard))
			continue
		}
		keys = append(keys, Key(method, contract, fn))
	}
	return keys
}

// Reconstruct groups storage keys back into capabilities. Ad-hoc approvals
// and capability grants share one namespace, so different original grants
// can collapse onto the same result. Keys that no capability produces
// (registerSender:..., unknown methods) are ignored. Output order is
// deterministic.
func Reconstruct(keys []string) []Capability {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)

	var (
		accounts     Accounts
		haveAccounts bool
		contracts    = map[[2]bool][]string{}
		classes      []string
		simTx        []string
		simUtil      []string
		sendTx       []string
		data         Data
		haveData     bool
	)
	contractFlags := map[string]*[2]bool{}
	var contractOrder []string

	for _, key := range sorted {
		method, rest, _ := strings.Cut(key, Separator)
		switch method {
		case MethodGetAccounts:
			accounts.CanGet = true
			haveAccounts = true
		case MethodCreateAuthWit:
			accounts.CanCreateAuthWit = true
			haveAccounts = true
		case MethodRegisterContract, MethodGetContractMetadata:
			if rest == "" {
				continue
			}
			flags, ok := contractFlags[rest]
			if !ok {
				flags = &[2]bool{}
				contractFlags[rest] = flags
				contractOrder = append(contractOrder, rest)
			}
			if method == MethodRegisterContract {
				flags[0] = true
			} else {
				flags[1] = true
			}
		case MethodGetContractClassMetadata:
			if rest != "" {
				classes = append(classes, rest)
			}
		case MethodSimulateTx:
			if rest != "" {
				simTx = append(simTx, rest)
			}
		case MethodSimulateUtility:
			if rest != "" {
				simUtil = append(simUtil, rest)
			}
		case MethodSendTx:
			if rest != "" {
				sendTx = append(sendTx, rest)
			}
		case MethodGetAddressBook:
			data.AddressBook = true
			haveData = true
		case MethodGetPrivateEvents:
			if rest == "" {
				continue
			}
			haveData = true
			if rest == Wildcard {
				data.PrivateEvents.All = true
			} else {
				data.PrivateEvents.Items = append(data.PrivateEvents.Items, rest)
			}
		}
	}

	var out []Capability
	if haveAccounts {
		out = append(out, accounts)
	}

	// Contracts sharing the same action flags share one capability; the
	// wildcard always gets its own so explicit addresses are not absorbed.
	for _, addr := range contractOrder {
		flags := *contractFlags[addr]
		contracts[flags] = append(contracts[flags], addr)
	}
	for _, flags := range [][2]bool{{true, true}, {true, false}, {false, true}} {
		addrs := contracts[flags]
		for _, scope := range splitWildcard(addrs) {
			out = append(out, Contracts{Contracts: scope, CanRegister: flags[0], CanGetMetadata: flags[1]})
		}
	}
	for _, scope := range splitWildcard(classes) {
		out = append(out, ContractClasses{Classes: scope, CanGetMetadata: true})
	}

	txScopes := splitPatterns(simTx)
	utilScopes := splitPatterns(simUtil)
	for i := 0; i < len(txScopes) || i < len(utilScopes); i++ {
		var sim Simulation
		if i < len(txScopes) {
			sim.Transactions = txScopes[i]
		}
		if i < len(utilScopes) {
			sim.Utilities = utilScopes[i]
		}
		out = append(out, sim)
	}
	for _, scope := range splitPatterns(sendTx) {
		out = append(out, Transaction{Scope: scope})
	}

	if haveData {
		if data.PrivateEvents.All && len(data.PrivateEvents.Items) > 0 {
			explicit := data.PrivateEvents.Items
			data.PrivateEvents.Items = nil
			out = append(out, data, Data{PrivateEvents: ListScope(explicit...)})
		} else {
			out = append(out, data)
		}
	}
	return out
}

// splitWildcard returns up to two scopes: the wildcard (if present) and
// the explicit values (if any).
func splitWildcard(values []string) []Scope {
	var scopes []Scope
	var items []string
	for _, v := range values {
		if v == Wildcard {
			scopes = append(scopes, AnyScope())
			continue
		}
		items = append(items, v)
	}
	if len(items) > 0 {
		scopes = append(scopes, ListScope(items...))
	}
	return scopes
}

// splitPatterns parses "contract:function" remainders into pattern scopes.
func splitPatterns(rests []string) []PatternScope {
	var scopes []PatternScope
	var patterns []FunctionPattern
	for _, r := range rests {
		if r == Wildcard {
			scopes = append(scopes, PatternScope{All: true})
			continue
		}
		contract, fn, ok := strings.Cut(r, Separator)
		if !ok {
			fn = Wildcard
		}
		patterns = append(patterns, FunctionPattern{Contract: contract, Function: fn})
	}
	if len(patterns) > 0 {
		scopes = append(scopes, PatternScope{Patterns: patterns})
	}
	return scopes
}
