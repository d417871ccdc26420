package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ActivityKind classifies what the wearer was doing during a sample or session.
type ActivityKind int

const (
	KindUnknown ActivityKind = iota
	KindActivity
	KindWalking
	KindRunning
	KindExercise
	KindLightSleep
	KindDeepSleep
	KindREMSleep
	KindAwakeSleep
	KindNotWorn
)

var kindNames = [...]string{
	KindUnknown:    "unknown",
	KindActivity:   "activity",
	KindWalking:    "walking",
	KindRunning:    "running",
	KindExercise:   "exercise",
	KindLightSleep: "light_sleep",
	KindDeepSleep:  "deep_sleep",
	KindREMSleep:   "rem_sleep",
	KindAwakeSleep: "awake_sleep",
	KindNotWorn:    "not_worn",
}

// kindAliases maps lowercased names seen in exports and user input to kinds.
// Stage names follow the wording of common sleep trackers.
var kindAliases = map[string]ActivityKind{
	"light":     KindLightSleep,
	"core":      KindLightSleep,
	"kern":      KindLightSleep,
	"deep":      KindDeepSleep,
	"tief":      KindDeepSleep,
	"rem":       KindREMSleep,
	"awake":     KindAwakeSleep,
	"wach":      KindAwakeSleep,
	"walk":      KindWalking,
	"run":       KindRunning,
	"workout":   KindExercise,
	"active":    KindActivity,
	"off_wrist": KindNotWorn,
}

func (k ActivityKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("ActivityKind(%d)", int(k))
	}
	return kindNames[k]
}

// IsSleep reports whether the kind is one of the sleep stages, awake-in-bed included.
func (k ActivityKind) IsSleep() bool {
	switch k {
	case KindLightSleep, KindDeepSleep, KindREMSleep, KindAwakeSleep:
		return true
	}
	return false
}

// IsAsleep is IsSleep without the awake stage.
func (k ActivityKind) IsAsleep() bool {
	return k.IsSleep() && k != KindAwakeSleep
}

// ParseActivityKind maps a kind name or alias to its ActivityKind.
// Lookup is case-insensitive and tolerates spaces or dashes instead of underscores.
func ParseActivityKind(raw string) (ActivityKind, bool) {
	name := strings.ToLower(strings.TrimSpace(raw))
	name = strings.NewReplacer(" ", "_", "-", "_").Replace(name)
	for k, n := range kindNames {
		if n == name {
			return ActivityKind(k), true
		}
	}
	if k, ok := kindAliases[name]; ok {
		return k, true
	}
	return KindUnknown, false
}

func (k ActivityKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *ActivityKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("activity kind: %w", err)
	}
	kind, ok := ParseActivityKind(s)
	if !ok {
		return fmt.Errorf("unknown activity kind %q", s)
	}
	*k = kind
	return nil
}
