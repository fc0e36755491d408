package client

import (
	"testing"
)

func TestCapitalize(t *testing.T) {
	testCases := map[string]string{
		"upload":   "Upload",
		"download": "Download",
		"":         "",
		"Upload":   "Upload",
	}
	for word, expected := range testCases {
		if result := capitalize(word); result != expected {
			t.Error("capitalization does not match expected:", result, "!=", expected)
		}
	}
}
