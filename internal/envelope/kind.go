package envelope

import (
	"encoding/json"
	"fmt"
)

// Kind is the declared modality of an envelope. The set is closed: adding a
// modality means extending this enum and every exhaustive switch over it.
type Kind uint8

const (
	KindText Kind = iota
	KindVoice
	KindSymbol
	KindSign
	KindCamera
)

// Kinds lists every supported kind in declaration order.
func Kinds() []Kind {
	return []Kind{KindText, KindVoice, KindSymbol, KindSign, KindCamera}
}

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindVoice:
		return "voice"
	case KindSymbol:
		return "symbol"
	case KindSign:
		return "sign"
	case KindCamera:
		return "camera"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func ParseKind(s string) (Kind, error) {
	switch s {
	case "text":
		return KindText, nil
	case "voice":
		return KindVoice, nil
	case "symbol":
		return KindSymbol, nil
	case "sign":
		return KindSign, nil
	case "camera":
		return KindCamera, nil
	}
	return KindText, fmt.Errorf("unknown envelope kind %q", s)
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
