package channels

import "testing"

func TestDiscordEmojiTranslation(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"eyes", "👀"},
		{"thumbsup", "👍"},
		// Already-literal emoji and name:id custom forms pass through.
		{"👀", "👀"},
		{"party_blob:1234", "party_blob:1234"},
	}
	for _, tt := range tests {
		if got := discordEmojiFor(tt.name); got != tt.want {
			t.Errorf("discordEmojiFor(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
