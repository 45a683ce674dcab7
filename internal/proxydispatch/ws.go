package proxydispatch

import (
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// bridgeWebSocket upgrades the inbound connection, dials backendURL as
// a WebSocket client forwarding the original headers, then splices
// both directions until either peer closes — the same
// two-goroutine-plus-WaitGroup shape as the teacher's transferTcp
// pump in utils.go, generalized from raw TCP bytes to WS frames.
func bridgeWebSocket(logger *logrus.Logger, w http.ResponseWriter, r *http.Request, backendURL string) error {
	wsURL, err := toWebSocketURL(backendURL, r.URL.RequestURI())
	if err != nil {
		return err
	}

	dialHeader := make(http.Header)
	for k, values := range r.Header {
		switch strings.ToLower(k) {
		case "upgrade", "connection", "sec-websocket-key", "sec-websocket-version", "sec-websocket-extensions":
			continue
		default:
			dialHeader[k] = values
		}
	}

	backendConn, resp, err := websocket.DefaultDialer.Dial(wsURL, dialHeader)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return err
	}
	defer backendConn.Close()

	clientConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer clientConn.Close()

	var wg sync.WaitGroup
	wg.Add(2)

	go pumpWS(&wg, clientConn, backendConn, logger)
	go pumpWS(&wg, backendConn, clientConn, logger)

	wg.Wait()
	return nil
}

func pumpWS(wg *sync.WaitGroup, from, to *websocket.Conn, logger *logrus.Logger) {
	defer wg.Done()

	for {
		msgType, data, err := from.ReadMessage()
		if err != nil {
			to.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
		if err := to.WriteMessage(msgType, data); err != nil {
			logger.WithField("error", err).Debug("websocket bridge write failed")
			return
		}
	}
}

func toWebSocketURL(backendURL, requestURI string) (string, error) {
	u, err := url.Parse(backendURL)
	if err != nil {
		return "", err
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	if idx := strings.Index(requestURI, "?"); idx >= 0 {
		u.Path = requestURI[:idx]
		u.RawQuery = requestURI[idx+1:]
	} else {
		u.Path = requestURI
	}

	return u.String(), nil
}
