// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Tyrowin/peerrelay/internal/relay"
)

// Reasons reported to the handshake rejection counter.
const (
	rejectMethod   = "method"
	rejectIdentity = "invalid_identity"
	rejectPath     = "malformed_path"
	rejectOrigin   = "origin"
	rejectUpgrade  = "upgrade"
	rejectShutdown = "shutdown"
)

// handleUpgrade accepts GET /ws/{selfId}/{peerId}. Requests that fail
// validation are refused before any session or registry entry exists.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.metrics.HandshakeRejected(rejectMethod)
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	self := r.PathValue("selfId")
	peer := r.PathValue("peerId")
	if err := errors.Join(
		relay.ValidateIdentity("selfId", self),
		relay.ValidateIdentity("peerId", peer),
	); err != nil {
		s.metrics.HandshakeRejected(rejectIdentity)
		s.log.Warn("rejecting upgrade", "path", r.URL.Path, "err", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !s.origins.allows(r) {
		s.metrics.HandshakeRejected(rejectOrigin)
		s.log.Warn("blocked websocket connection from disallowed origin", "origin", r.Header.Get("Origin"))
		http.Error(w, "Forbidden origin", http.StatusForbidden)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.metrics.HandshakeRejected(rejectUpgrade)
		s.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	session := relay.NewSession(conn, self, peer, s.registry, s.sessionOptions())
	if !s.startSession(session) {
		s.metrics.HandshakeRejected(rejectShutdown)
		_ = conn.Close()
	}
}

// handleMalformed answers /ws paths that do not carry both identities.
func (s *Server) handleMalformed(w http.ResponseWriter, r *http.Request) {
	s.metrics.HandshakeRejected(rejectPath)
	http.Error(w, "Bad request. Expected /ws/{selfId}/{peerId}.", http.StatusBadRequest)
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Relay server is running!")
}

// TestPageHandler serves a page that opens /ws/{selfId}/{peerId} from the
// browser and shows what arrives.
func (s *Server) TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		s.log.Error("writing test page failed", err)
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>Relay Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; }
        input[type="text"] { padding: 5px; margin-right: 10px; }
    </style>
</head>
<body>
    <h1>Relay Test</h1>
    <div>
        <input type="text" id="self" placeholder="your id">
        <input type="text" id="peer" placeholder="peer id">
        <button id="connect" onclick="toggle()">Connect</button>
    </div>
    <div>
        <input type="text" id="input" placeholder="Type a message..." disabled>
        <button id="send" onclick="send()" disabled>Send</button>
    </div>
    <div id="messages"></div>
    <script>
        let ws = null;
        const $ = (id) => document.getElementById(id);

        function log(text, color) {
            const el = document.createElement('div');
            el.style.color = color || 'gray';
            el.textContent = text;
            $('messages').appendChild(el);
            $('messages').scrollTop = $('messages').scrollHeight;
        }

        function setConnected(on) {
            $('input').disabled = !on;
            $('send').disabled = !on;
            $('connect').textContent = on ? 'Disconnect' : 'Connect';
        }

        function toggle() {
            if (ws) { ws.close(); return; }
            const self = encodeURIComponent($('self').value.trim());
            const peer = encodeURIComponent($('peer').value.trim());
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws/' + self + '/' + peer);
            ws.onopen = () => { log('connected'); setConnected(true); };
            ws.onmessage = (e) => log(e.data, 'green');
            ws.onclose = () => { log('disconnected'); setConnected(false); ws = null; };
        }

        function send() {
            const text = $('input').value;
            if (ws && ws.readyState === WebSocket.OPEN && text) {
                ws.send(text);
                log('you: ' + text, 'blue');
                $('input').value = '';
            }
        }

        $('input').addEventListener('keypress', (e) => { if (e.key === 'Enter') send(); });
    </script>
</body>
</html>`
