package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"autohub-chat/internal/chat"
	"autohub-chat/internal/directory"
	myMiddleware "autohub-chat/internal/middleware"
)

var (
	wsURL     = flag.String("url", "ws://localhost:8080/chat/ws", "chat websocket endpoint")
	pairCount = flag.Int("pairs", 250, "number of user/partner pairs") // ⚠️ Start small, the database might choke on 1000 immediately.
	msgCount  = flag.Int("messages", 20, "messages per participant")
	jwtSecret = flag.String("secret", "", "sign identity tokens with this secret instead of sending x-user-id headers")
)

var (
	sent     atomic.Int64
	received atomic.Int64
	log      = logrus.New()
)

func main() {
	flag.Parse()

	var tokens *directory.TokenService
	if *jwtSecret != "" {
		tokens = directory.NewTokenService(*jwtSecret)
	}

	log.Infof("🔥 STARTING STRESS TEST: %d participants, %d messages each...", *pairCount*2, *msgCount)
	start := time.Now()

	var wg sync.WaitGroup
	// Each pair shares one service request thread: user u_N talks to partner p_N.
	for i := 0; i < *pairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID, tokens)
		}(i)
	}
	wg.Wait()

	log.WithFields(logrus.Fields{
		"sent":     sent.Load(),
		"received": received.Load(),
		"elapsed":  time.Since(start).String(),
	}).Info("✅ LOAD TEST COMPLETE")
}

func runPair(pairID int, tokens *directory.TokenService) {
	requestID := fmt.Sprintf("load_req_%d", pairID)
	userID := fmt.Sprintf("u_%d", pairID)
	partnerID := fmt.Sprintf("p_%d", pairID)

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go spamChat(&wsWg, tokens, requestID, userID, partnerID, chat.RoleUser)
	go spamChat(&wsWg, tokens, requestID, partnerID, userID, chat.RolePartner)
	wsWg.Wait()
}

func spamChat(wg *sync.WaitGroup, tokens *directory.TokenService, requestID, selfID, otherID string, role chat.Role) {
	defer wg.Done()

	url := *wsURL
	header := http.Header{}
	if tokens != nil {
		token, err := tokens.IssueToken(selfID, "", time.Hour)
		if err != nil {
			log.WithError(err).Errorf("❌ Token Fail [%s]", selfID)
			return
		}
		url = fmt.Sprintf("%s?token=%s", url, token)
	} else {
		header.Set(myMiddleware.HeaderUserID, selfID)
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		log.WithError(err).Errorf("❌ WS Connect Fail [%s]", selfID)
		return
	}
	defer conn.Close()

	// Count everything the room sends back until the writer is done.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var f chat.Frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			if f.Event == chat.EventMessageNew {
				received.Add(1)
			}
		}
	}()

	if err := writeEvent(conn, chat.InJoinChat, chat.JoinChat{RequestID: requestID, PartnerID: otherID}); err != nil {
		log.WithError(err).Errorf("❌ Join Fail [%s]", selfID)
		return
	}

	for i := 0; i < *msgCount; i++ {
		err := writeEvent(conn, chat.InSendMessage, chat.SendMessage{
			RequestID: requestID,
			Message:   fmt.Sprintf("LoadTest Msg %d from %s", i, selfID),
			Sender:    role,
		})
		if err != nil {
			log.WithError(err).Errorf("❌ Send Fail [%s]", selfID)
			break
		}
		sent.Add(1)
		// Small sleep to prevent instant localhost bottleneck (simulate real network)
		time.Sleep(10 * time.Millisecond)
	}

	// Give the room a moment to deliver the peer's tail.
	time.Sleep(time.Second)
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	<-done
	log.Debugf("✅ %s finished sending %d msgs", selfID, *msgCount)
}

func writeEvent(conn *websocket.Conn, event string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.WriteJSON(chat.Frame{Event: event, Data: raw})
}
