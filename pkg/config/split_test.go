package config

import (
	"reflect"
	"testing"
)

func TestSplitQuotedFields(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"quotes inside and around fields", `field"A" "fieldB" fie"l'd"C "field\"D" "yet another field"`, []string{"fieldA", "fieldB", "fiel'dC", "field\"D", "yet another field"}},
		{"trailing empty string", `field"A" "" `, []string{"fieldA", ""}},
		{"leading empty string", ` "" field"A"`, []string{"", "fieldA"}},
		{"surrounding spaces", `    field"A"   `, []string{"fieldA"}},
		{"only empty strings", ` "" "" "" """" "" `, []string{"", "", "", "", ""}},
		{"spaces between quoted fields", `"/usr/lib/debug"    "/opt/debug files"`, []string{"/usr/lib/debug", "/opt/debug files"}},
		{"nothing", "   ", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitQuotedFields(tt.in, '"')
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("SplitQuotedFields(%q) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}
