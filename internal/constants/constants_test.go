package constants

import "testing"

func TestIsValidSourceType(t *testing.T) {
	for _, v := range []string{"random", "snmp"} {
		if !IsValidSourceType(v) {
			t.Errorf("%q should be valid", v)
		}
	}
	for _, v := range []string{"", "serial", "SNMP"} {
		if IsValidSourceType(v) {
			t.Errorf("%q should be invalid", v)
		}
	}
}

func TestIsValidSecurityLevel(t *testing.T) {
	for _, v := range []string{"", "noAuthNoPriv", "authNoPriv", "authPriv"} {
		if !IsValidSecurityLevel(v) {
			t.Errorf("%q should be valid", v)
		}
	}
	if IsValidSecurityLevel("authAndPriv") {
		t.Error("authAndPriv should be invalid")
	}
}
