// ABOUTME: Typed capability grants: a tagged variant over accounts, contracts, classes, simulation, transaction and data
// ABOUTME: Each variant carries a scope (explicit list or wildcard) and its action flags, with a JSON envelope

package capability

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind tags a capability variant.
type Kind string

const (
	KindAccounts        Kind = "accounts"
	KindContracts       Kind = "contracts"
	KindContractClasses Kind = "contractClasses"
	KindSimulation      Kind = "simulation"
	KindTransaction     Kind = "transaction"
	KindData            Kind = "data"
)

// Capability is a typed, scoped permission bundle.
type Capability interface {
	Kind() Kind
}

// Scope is either every value (All) or an explicit list. JSON form is "*" or an array.
type Scope struct {
	All   bool
	Items []string
}

// AnyScope matches every value.
func AnyScope() Scope { return Scope{All: true} }

// ListScope matches exactly the given values.
func ListScope(items ...string) Scope { return Scope{Items: items} }

// Empty reports whether the scope matches nothing.
func (s Scope) Empty() bool { return !s.All && len(s.Items) == 0 }

func (s Scope) values() []string {
	if s.All {
		return []string{Wildcard}
	}
	return s.Items
}

func (s Scope) MarshalJSON() ([]byte, error) {
	if s.All {
		return json.Marshal(Wildcard)
	}
	items := s.Items
	if items == nil {
		items = []string{}
	}
	return json.Marshal(items)
}

func (s *Scope) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*s = Scope{}
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		if str != Wildcard {
			return fmt.Errorf("scope string must be %q, got %q", Wildcard, str)
		}
		*s = AnyScope()
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("scope must be %q or a list: %w", Wildcard, err)
	}
	*s = ListScope(items...)
	return nil
}

// FunctionPattern names a contract function; either field may be "*".
type FunctionPattern struct {
	Contract string `json:"contract"`
	Function string `json:"function"`
}

// PatternScope is either every contract function (All) or a list of patterns.
type PatternScope struct {
	All      bool
	Patterns []FunctionPattern
}

// Empty reports whether the scope matches nothing.
func (s PatternScope) Empty() bool { return !s.All && len(s.Patterns) == 0 }

func (s PatternScope) MarshalJSON() ([]byte, error) {
	if s.All {
		return json.Marshal(Wildcard)
	}
	p := s.Patterns
	if p == nil {
		p = []FunctionPattern{}
	}
	return json.Marshal(p)
}

func (s *PatternScope) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*s = PatternScope{}
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		if str != Wildcard {
			return fmt.Errorf("pattern scope string must be %q, got %q", Wildcard, str)
		}
		*s = PatternScope{All: true}
		return nil
	}
	var patterns []FunctionPattern
	if err := json.Unmarshal(data, &patterns); err != nil {
		return fmt.Errorf("pattern scope must be %q or a list: %w", Wildcard, err)
	}
	*s = PatternScope{Patterns: patterns}
	return nil
}

// Account is an alias/address pair granted to an app.
type Account struct {
	Alias string `json:"alias"`
	Item  string `json:"item"`
}

// Accounts grants reading accounts and creating authorization witnesses.
// When Accounts is set, it is the list an app sees from getAccounts.
type Accounts struct {
	CanGet           bool      `json:"canGet"`
	CanCreateAuthWit bool      `json:"canCreateAuthWit"`
	Accounts         []Account `json:"accounts,omitempty"`
}

// Contracts grants registering contracts and reading their metadata.
type Contracts struct {
	Contracts      Scope `json:"contracts"`
	CanRegister    bool  `json:"canRegister"`
	CanGetMetadata bool  `json:"canGetMetadata"`
}

// ContractClasses grants reading contract class metadata.
type ContractClasses struct {
	Classes        Scope `json:"classes"`
	CanGetMetadata bool  `json:"canGetMetadata"`
}

// Simulation grants simulating transactions and utility calls.
type Simulation struct {
	Transactions PatternScope `json:"transactions"`
	Utilities    PatternScope `json:"utilities"`
}

// Transaction grants sending transactions.
type Transaction struct {
	Scope PatternScope `json:"scope"`
}

// Data grants reading the address book and private events.
type Data struct {
	AddressBook   bool  `json:"addressBook"`
	PrivateEvents Scope `json:"privateEvents"`
}

func (Accounts) Kind() Kind        { return KindAccounts }
func (Contracts) Kind() Kind       { return KindContracts }
func (ContractClasses) Kind() Kind { return KindContractClasses }
func (Simulation) Kind() Kind      { return KindSimulation }
func (Transaction) Kind() Kind     { return KindTransaction }
func (Data) Kind() Kind            { return KindData }

// Marshal encodes a capability with its "type" tag.
func Marshal(c Capability) ([]byte, error) {
	body, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s capability: %w", c.Kind(), err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	tag, _ := json.Marshal(c.Kind())
	fields["type"] = tag
	return json.Marshal(fields)
}

// Unmarshal decodes a tagged capability.
func Unmarshal(data []byte) (Capability, error) {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decoding capability: %w", err)
	}
	var c Capability
	var err error
	switch head.Type {
	case KindAccounts:
		var v Accounts
		err = json.Unmarshal(data, &v)
		c = v
	case KindContracts:
		var v Contracts
		err = json.Unmarshal(data, &v)
		c = v
	case KindContractClasses:
		var v ContractClasses
		err = json.Unmarshal(data, &v)
		c = v
	case KindSimulation:
		var v Simulation
		err = json.Unmarshal(data, &v)
		c = v
	case KindTransaction:
		var v Transaction
		err = json.Unmarshal(data, &v)
		c = v
	case KindData:
		var v Data
		err = json.Unmarshal(data, &v)
		c = v
	default:
		return nil, fmt.Errorf("unknown capability type %q", head.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s capability: %w", head.Type, err)
	}
	return c, nil
}

// List is a JSON-encodable list of tagged capabilities.
type List []Capability

func (l List) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(l))
	for _, c := range l {
		b, err := Marshal(c)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return json.Marshal(out)
}

func (l *List) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding capability list: %w", err)
	}
	out := make(List, 0, len(raw))
	for i, r := range raw {
		c, err := Unmarshal(r)
		if err != nil {
			return fmt.Errorf("capability %d: %w", i, err)
		}
		out = append(out, c)
	}
	*l = out
	return nil
}
