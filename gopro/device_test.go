package gopro

import "testing"

func TestDeviceModel(t *testing.T) {
	tests := []struct {
		firmware string
		want     string
	}{
		{"HD5.02.02.51.00", "Hero5 Black"},
		{"HD8.01.01.60.00", "Hero8 Black"},
		{"H21.01.01.10.00", "Hero10 Black"},
		{"H22.01.02.01.00", "Hero11 Black"},
		{"H24.03.01.00.00", "Hero13 Black"},
		{"ZZZ.01.01.01.00", ""},
		{"", ""},
	}
	for _, test := range tests {
		if got := DeviceModel(test.firmware); got != test.want {
			t.Errorf("DeviceModel(%q)=%q, want %q", test.firmware, got, test.want)
		}
	}
}

func TestSupportsGPS9(t *testing.T) {
	if SupportsGPS9("H21.01.01.10.00") {
		t.Errorf("Hero10 should not support the 9-field payload")
	}
	if !SupportsGPS9("H22.01.02.01.00") {
		t.Errorf("Hero11 should support the 9-field payload")
	}
}

func TestMeanSeaLevelAltitude(t *testing.T) {
	tests := []struct {
		firmware string
		want     bool
	}{
		{"HD7.01.01.90.00", false}, // pre-Hero8 always ellipsoid
		{"HD8.01.01.10.00", false}, // before the 1.50 release
		{"HD8.01.01.60.00", true},  // after it
		{"HD9.01.01.50.00", true},
		{"H22.01.01.10.00", true}, // Hero10+ always mean sea level
		{"", false},
	}
	for _, test := range tests {
		if got := MeanSeaLevelAltitude(test.firmware); got != test.want {
			t.Errorf("MeanSeaLevelAltitude(%q)=%v, want %v", test.firmware, got, test.want)
		}
	}
}

func TestGroupingGeneration(t *testing.T) {
	if usesMUIDGrouping("H21.01.01.10.00") {
		t.Errorf("Hero10 should group by GUMI")
	}
	if !usesMUIDGrouping("H23.01.01.10.00") {
		t.Errorf("Hero12 should group by MUID")
	}
}
