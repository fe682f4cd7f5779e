package thermo

import (
	"errors"
	"math"
	"testing"
)

func mustParse(t *testing.T, text string) Scratchpad {
	t.Helper()
	s, err := ParseSlave(text)
	if err != nil {
		t.Fatalf("ParseSlave(%q): %v", text, err)
	}
	return s
}

func TestDecodeReferenceValues(t *testing.T) {
	tests := []struct {
		name    string
		slave   string
		wantTC  float64
		wantCJ  float64
		wantOut float64
	}{
		{"room", "72 01 ff 14 f0 ff ff ff d9 : crc=d9 YES", 23.0, 20.9375, 23.027249090070466},
		{"freezer", "e0 fe 80 15 f0 ff ff ff 00 : crc=00 YES", -18.0, 21.5, -19.85704843107829},
		{"cold junction below zero", "60 ff 00 fb f0 ff ff ff 00 : crc=00 YES", -10.0, -5.0, -10.283526656617392},
		{"above breakpoint", "80 25 00 19 f0 ff ff ff 00 : crc=00 YES", 600.0, 25.0, 595.9727378676324},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := mustParse(t, tt.slave)
			if got := s.Thermocouple(); got != tt.wantTC {
				t.Errorf("Thermocouple() = %v, want %v", got, tt.wantTC)
			}
			if got := s.ColdJunction(); got != tt.wantCJ {
				t.Errorf("ColdJunction() = %v, want %v", got, tt.wantCJ)
			}
			got, err := Decode(s)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if math.Abs(got-tt.wantOut) > 1e-9 {
				t.Errorf("Decode() = %.12f, want %.12f", got, tt.wantOut)
			}
		})
	}
}

func TestDecodeFault(t *testing.T) {
	s := mustParse(t, "73 01 ff 14 f0 ff ff ff d9 : crc=d9 YES")
	if !s.Fault() {
		t.Fatal("expected fault bit")
	}
	_, err := Decode(s)
	if !errors.Is(err, ErrSensorFault) {
		t.Errorf("expected ErrSensorFault, got %v", err)
	}
}

func TestDecodeIsDeterministic(t *testing.T) {
	s := mustParse(t, "72 01 ff 14 f0 ff ff ff d9 : crc=d9 YES")
	first, _ := Decode(s)
	for i := 0; i < 10; i++ {
		got, _ := Decode(s)
		if got != first {
			t.Fatalf("iteration %d: %v != %v", i, got, first)
		}
	}
}

func TestColdJunctionVoltageBranches(t *testing.T) {
	// 0 °C sits on the positive branch; the exponential term keeps it near 0 mV.
	if v := ColdJunctionVoltage(0); math.Abs(v) > 1e-6 {
		t.Errorf("ColdJunctionVoltage(0) = %v, want ~0", v)
	}
	if v := ColdJunctionVoltage(-5); math.Abs(v-(-0.19662192396908448)) > 1e-12 {
		t.Errorf("ColdJunctionVoltage(-5) = %v", v)
	}
	if v := ColdJunctionVoltage(25); math.Abs(v-1.0002423545675625) > 1e-12 {
		t.Errorf("ColdJunctionVoltage(25) = %v", v)
	}
}

func TestVoltageToTemperatureBreakpoint(t *testing.T) {
	below := VoltageToTemperature(inverseBreakpoint - 1e-9)
	above := VoltageToTemperature(inverseBreakpoint)
	if math.Abs(below-500) > 0.1 || math.Abs(above-500) > 0.1 {
		t.Errorf("expected ~500 °C on both sides of breakpoint, got %v and %v", below, above)
	}
}

func TestSignExtend(t *testing.T) {
	tests := []struct {
		v, bits, want int
	}{
		{92, 14, 92},
		{16312, 14, -72},
		{1 << 13, 14, -(1 << 13)},
		{4016, 12, -80},
		{2047, 12, 2047},
	}
	for _, tt := range tests {
		if got := signExtend(tt.v, tt.bits); got != tt.want {
			t.Errorf("signExtend(%d, %d) = %d, want %d", tt.v, tt.bits, got, tt.want)
		}
	}
}

func TestParseSlaveNotReady(t *testing.T) {
	_, err := ParseSlave("72 01 ff 14 f0 ff ff ff d9 : crc=d9 NO")
	if !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
	_, err = ParseSlave("")
	if !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady for empty input, got %v", err)
	}
}

func TestParseSlaveMalformed(t *testing.T) {
	if _, err := ParseSlave("72 01 : crc=d9 YES"); err == nil {
		t.Error("expected error for short scratchpad")
	}
	if _, err := ParseSlave("zz 01 ff 14 f0 ff ff ff d9 : crc=d9 YES"); err == nil {
		t.Error("expected error for bad hex")
	}
}

func TestAddress(t *testing.T) {
	s := mustParse(t, "72 01 ff 14 f2 ff ff ff d9 : crc=d9 YES")
	if got := s.Address(); got != 2 {
		t.Errorf("Address() = %d, want 2", got)
	}
}

func TestParseMilliCelsius(t *testing.T) {
	got, err := ParseMilliCelsius("32 00 4b 46 ff ff 02 10 f4 : crc=f4 YES\n32 00 4b 46 ff ff 02 10 f4 t=24875\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 24.875 {
		t.Errorf("got %v, want 24.875", got)
	}

	_, err = ParseMilliCelsius("32 00 4b 46 ff ff 02 10 f4 : crc=f4 NO\n32 00 4b 46 ff ff 02 10 f4 t=24875\n")
	if !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}

	if _, err := ParseMilliCelsius("32 00 : crc=f4 YES\nnothing here"); err == nil {
		t.Error("expected error without t=")
	}
}
