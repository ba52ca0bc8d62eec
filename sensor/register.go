package sensor

import "strings"

// Address of the ambient temperature register
const RegisterAmbient = 0x05

// AlertFlags are the comparator bits in the upper byte of the ambient
// temperature register
type AlertFlags uint8

const (
	FlagLower AlertFlags = 1 << 5 // TA < T_LOWER
	FlagUpper AlertFlags = 1 << 6 // TA > T_UPPER
	FlagCrit  AlertFlags = 1 << 7 // TA >= T_CRIT
)

func (f AlertFlags) Has(flag AlertFlags) bool {
	return f&flag == flag
}

func (f AlertFlags) String() string {
	var names []string
	if f.Has(FlagCrit) {
		names = append(names, "crit")
	}
	if f.Has(FlagUpper) {
		names = append(names, "upper")
	}
	if f.Has(FlagLower) {
		names = append(names, "lower")
	}

	if len(names) == 0 {
		return "none"
	}

	return strings.Join(names, "|")
}

// FromRegister decodes the two bytes read from the ambient temperature
// register. The temperature is a 13 bit two's complement value in 1/16 °C.
func FromRegister(upper, lower byte) (float64, AlertFlags) {
	flags := AlertFlags(upper & 0xE0)

	raw := uint16(upper&0x1F)<<8 | uint16(lower)
	value := int16(raw<<3) >> 3

	return float64(value) / 16, flags
}

// ToRegister is the inverse of FromRegister, the temperature is truncated to
// the sensor's resolution
func ToRegister(celsius float64, flags AlertFlags) (byte, byte) {
	value := uint16(int16(celsius*16)) & 0x1FFF

	return byte(value>>8) | byte(flags&0xE0), byte(value)
}
