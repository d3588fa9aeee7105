// Package routing evaluates stage aims against the [copy] settings.
//
// An aim is "cond1:cond2:...:destination". Each condition names a setting,
// optionally negated with a leading "!". A plain condition passes when the
// setting is anything other than "False"; a negated one passes only when it
// is exactly "False". An aim fires when all of its conditions pass.
package routing

import (
	"errors"
	"fmt"
	"strings"
)

const disabled = "False"

var (
	// ErrUnknownCondition is returned when an aim names a setting that the
	// settings mapping does not define.
	ErrUnknownCondition = errors.New("unknown routing condition")
	// ErrMalformedAim is returned for empty aims, destinations or conditions.
	ErrMalformedAim = errors.New("malformed aim")
)

// Condition is one setting test inside an aim.
type Condition struct {
	Name    string
	Negated bool
}

// Passes evaluates the condition against the settings mapping.
func (c Condition) Passes(settings map[string]string) (bool, error) {
	value, ok := settings[c.Name]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownCondition, c.Name)
	}
	if c.Negated {
		return value == disabled, nil
	}
	return value != disabled, nil
}

func (c Condition) String() string {
	if c.Negated {
		return "!" + c.Name
	}
	return c.Name
}

// Aim is a parsed routing entry.
type Aim struct {
	Conditions  []Condition
	Destination string
}

func (a Aim) String() string {
	parts := make([]string, 0, len(a.Conditions)+1)
	for _, c := range a.Conditions {
		parts = append(parts, c.String())
	}
	return strings.Join(append(parts, a.Destination), ":")
}

// Fires reports whether every condition passes.
func (a Aim) Fires(settings map[string]string) (bool, error) {
	fires := true
	for _, c := range a.Conditions {
		ok, err := c.Passes(settings)
		if err != nil {
			return false, err
		}
		// Keep evaluating so an unknown name later in the chain still
		// surfaces.
		fires = fires && ok
	}
	return fires, nil
}

// Parse splits an aim string into conditions and destination.
func Parse(raw string) (Aim, error) {
	tokens := strings.Split(raw, ":")
	destination := strings.TrimSpace(tokens[len(tokens)-1])
	if destination == "" {
		return Aim{}, fmt.Errorf("%w: %q has no destination", ErrMalformedAim, raw)
	}
	aim := Aim{Destination: destination}
	for _, token := range tokens[:len(tokens)-1] {
		token = strings.TrimSpace(token)
		negated := strings.HasPrefix(token, "!")
		name := strings.TrimSpace(strings.TrimPrefix(token, "!"))
		if name == "" {
			return Aim{}, fmt.Errorf("%w: %q has an empty condition", ErrMalformedAim, raw)
		}
		aim.Conditions = append(aim.Conditions, Condition{Name: name, Negated: negated})
	}
	return aim, nil
}

// ParseAll parses a stage's aim list.
func ParseAll(raw []string) ([]Aim, error) {
	aims := make([]Aim, 0, len(raw))
	for _, entry := range raw {
		aim, err := Parse(entry)
		if err != nil {
			return nil, err
		}
		aims = append(aims, aim)
	}
	return aims, nil
}

// Route returns the destinations whose aims fire, in aim order with
// duplicates collapsed onto their first occurrence. It does not mutate its
// arguments and is safe for concurrent use.
func Route(aims []Aim, settings map[string]string) ([]string, error) {
	var out []string
	seen := make(map[string]struct{}, len(aims))
	for _, aim := range aims {
		fires, err := aim.Fires(settings)
		if err != nil {
			return nil, fmt.Errorf("aim %q: %w", aim, err)
		}
		if !fires {
			continue
		}
		if _, dup := seen[aim.Destination]; dup {
			continue
		}
		seen[aim.Destination] = struct{}{}
		out = append(out, aim.Destination)
	}
	return out, nil
}

// RouteStrings parses and routes in one step.
func RouteStrings(raw []string, settings map[string]string) ([]string, error) {
	aims, err := ParseAll(raw)
	if err != nil {
		return nil, err
	}
	return Route(aims, settings)
}

// Validate checks that every condition is known and every destination is
// one of the given stage names.
func Validate(aims []Aim, settings map[string]string, stages map[string]struct{}) error {
	for _, aim := range aims {
		if _, err := aim.Fires(settings); err != nil {
			return fmt.Errorf("aim %q: %w", aim, err)
		}
		if _, ok := stages[aim.Destination]; !ok {
			return fmt.Errorf("aim %q: destination stage %q does not exist", aim, aim.Destination)
		}
	}
	return nil
}
