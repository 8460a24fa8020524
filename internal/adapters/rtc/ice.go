package rtc

import (
	"strings"

	"github.com/dkeye/RandomVoice/internal/config"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// ICEServers converts configured servers into the list handed to clients for
// their RTCPeerConnection. TURN entries without complete credentials are
// skipped since browsers reject them.
func ICEServers(servers []config.ICEServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		server := webrtc.ICEServer{URLs: s.URLs}
		if hasTURNURL(s.URLs) {
			if strings.TrimSpace(s.Username) == "" || strings.TrimSpace(s.Credential) == "" {
				log.Warn().Str("module", "rtc").Strs("urls", s.URLs).Msg("turn server without credentials skipped")
				continue
			}
			server.Username = s.Username
			server.Credential = s.Credential
			server.CredentialType = webrtc.ICECredentialTypePassword
		}
		out = append(out, server)
	}
	return out
}

func hasTURNURL(urls []string) bool {
	for _, raw := range urls {
		url := strings.ToLower(strings.TrimSpace(raw))
		if strings.HasPrefix(url, "turn:") || strings.HasPrefix(url, "turns:") {
			return true
		}
	}
	return false
}
