package main

import (
	"testing"

	"github.com/ayusman/fingerglow/internal/pairing"
)

func TestSenderInvocation(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		target     string
		origin     string
		wantTarget string
		wantOrigin string
		wantErr    bool
	}{
		{
			name:       "pairing url",
			url:        "http://192.168.1.5:8080/?mode=sender&target=abc",
			wantTarget: "abc",
			wantOrigin: "http://192.168.1.5:8080",
		},
		{
			name:       "explicit flags",
			target:     "abc",
			origin:     "http://192.168.1.5:8080",
			wantTarget: "abc",
			wantOrigin: "http://192.168.1.5:8080",
		},
		{name: "viewer url", url: "http://192.168.1.5:8080/", wantErr: true},
		{name: "missing origin", target: "abc", wantErr: true},
		{name: "nothing", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, err := senderInvocation(tt.url, tt.target, tt.origin)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("senderInvocation() error = %v", err)
			}
			if inv.Mode != pairing.ModeSender || inv.Target != tt.wantTarget || inv.Origin != tt.wantOrigin {
				t.Errorf("unexpected invocation %+v", inv)
			}
		})
	}
}
