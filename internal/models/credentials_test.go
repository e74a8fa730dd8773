package models

import "testing"

func TestClassifyGameEngine(t *testing.T) {
	cases := []struct {
		name string
		tag  string
		want GameEngine
	}{
		{"cs underscore prefix", "cs_assault", EngineGoldSource},
		{"cstrike anywhere", "old_cstrike_server", EngineGoldSource},
		{"cs prefix uppercase", "CS_ITALY", EngineGoldSource},
		{"l4d prefix", "l4d2", EngineSource2009},
		{"portal prefix", "portal2", EngineSource2009},
		{"ep2 exact", "ep2", EngineSource2009},
		{"dod:s exact", "dod:s", EngineSource2009},
		{"dod:s case-insensitive", "DOD:S", EngineSource2009},
		{"unrecognized tag defaults to source", "csgo", EngineSource},
		{"empty tag defaults to source", "", EngineSource},
		{"whitespace is trimmed before matching", "  ep2  ", EngineSource2009},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyGameEngine(tc.tag)
			if got != tc.want {
				t.Errorf("ClassifyGameEngine(%q) = %q, want %q", tc.tag, got, tc.want)
			}
		})
	}
}

func TestRconCredentialsValid(t *testing.T) {
	cases := []struct {
		name  string
		creds RconCredentials
		want  bool
	}{
		{
			name:  "all fields present",
			creds: RconCredentials{Address: "127.0.0.1", Port: 27015, RconPassword: "pw"},
			want:  true,
		},
		{
			name:  "missing address",
			creds: RconCredentials{Port: 27015, RconPassword: "pw"},
			want:  false,
		},
		{
			name:  "missing password",
			creds: RconCredentials{Address: "127.0.0.1", Port: 27015},
			want:  false,
		},
		{
			name:  "port zero",
			creds: RconCredentials{Address: "127.0.0.1", Port: 0, RconPassword: "pw"},
			want:  false,
		},
		{
			name:  "port out of range",
			creds: RconCredentials{Address: "127.0.0.1", Port: 70000, RconPassword: "pw"},
			want:  false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.creds.Valid(); got != tc.want {
				t.Errorf("Valid() = %v, want %v", got, tc.want)
			}
		})
	}
}
