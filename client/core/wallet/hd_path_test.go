package wallet

import (
	"testing"
)

func TestEthereumPath_String(t *testing.T) {
	tests := []struct {
		name string
		path *DerivationPath
		want string
	}{
		{"index 0", EthereumPath(0), "m/44'/60'/0'/0/0"},
		{"index 7", EthereumPath(7), "m/44'/60'/0'/0/7"},
		{"with index", EthereumPath(0).WithAddressIndex(3), "m/44'/60'/0'/0/3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.path.String(); got != tt.want {
				t.Errorf("String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseDerivationPath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    *DerivationPath
		wantErr bool
	}{
		{"ethereum default", "m/44'/60'/0'/0/0", EthereumPath(0), false},
		{"without m prefix", "44'/60'/0'/0/2", EthereumPath(2), false},
		{"h suffix", "m/44h/60h/0h/0/1", EthereumPath(1), false},
		{"too short", "m/44'/60'/0'", nil, true},
		{"not bip44", "m/49'/60'/0'/0/0", nil, true},
		{"unhardened coin", "m/44'/60/0'/0/0", nil, true},
		{"hardened index", "m/44'/60'/0'/0/0'", nil, true},
		{"bad change", "m/44'/60'/0'/2/0", nil, true},
		{"not a number", "m/44'/60'/0'/0/x", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDerivationPath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDerivationPath() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if *got != *tt.want {
				t.Errorf("ParseDerivationPath() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDerivationPath_ToUint32Array(t *testing.T) {
	got := EthereumPath(5).ToUint32Array()
	want := []uint32{44 + HardenedOffset, 60 + HardenedOffset, HardenedOffset, 0, 5}

	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("component %d = %d, want %d", i, got[i], want[i])
		}
	}
}
