package helpers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizePhoneNumber(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "international with plus", input: "+254700000000", want: "254700000000"},
		{name: "international without plus", input: "254700000000", want: "254700000000"},
		{name: "local format", input: "0700000000", want: "254700000000"},
		{name: "local landline prefix", input: "0110000000", want: "254110000000"},
		{name: "with spaces", input: "+254 700 000 000", want: "254700000000"},
		{name: "too short", input: "070000", wantErr: true},
		{name: "too long", input: "2547000000001", wantErr: true},
		{name: "wrong country code", input: "255700000000", wantErr: true},
		{name: "letters", input: "2547000000ab", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhoneNumber(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
