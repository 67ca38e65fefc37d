package notification

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	tb "gopkg.in/tucnak/telebot.v2"

	"bybot/config"
	"bybot/core"
)

// fakeBotAPI answers just enough of the Bot API for handlers to run
// without the network
func fakeBotAPI(t *testing.T) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			fmt.Fprint(w, `{"ok":true,"result":{"id":42,"is_bot":true,"first_name":"bybot","username":"bybot_bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			fmt.Fprint(w, `{"ok":true,"result":{"message_id":1,"chat":{"id":1}}}`)
		default:
			fmt.Fprint(w, `{"ok":true,"result":true}`)
		}
	}))
}

func newTestTelegram(t *testing.T) (*Telegram, *config.Manager) {
	t.Helper()

	server := fakeBotAPI(t)
	t.Cleanup(server.Close)

	old := telegramURL
	telegramURL = server.URL
	t.Cleanup(func() { telegramURL = old })

	cfg, err := config.NewManager(t.TempDir())
	require.NoError(t, err)

	settings := &core.Settings{
		Telegram: core.TelegramSettings{
			Enabled: true,
			Token:   "123:abc",
			Users:   []int64{111},
		},
	}

	telegram, err := NewTelegram(nil, settings, cfg)
	require.NoError(t, err)
	return telegram, cfg
}

func TestSetAPIConversationStoresKeys(t *testing.T) {
	telegram, cfg := newTestTelegram(t)
	sender := &tb.User{ID: 111}

	telegram.SetAPIHandle(&tb.Message{Sender: sender, Payload: "testnet"})
	telegram.TextHandle(&tb.Message{Sender: sender, Text: "my-key"})
	telegram.TextHandle(&tb.Message{Sender: sender, Text: "my-secret"})

	content, err := os.ReadFile(cfg.EnvFilePath())
	require.NoError(t, err)
	require.Contains(t, string(content), "TESTNET_API_KEY=my-key")
	require.Contains(t, string(content), "TESTNET_API_SECRET=my-secret")

	// The conversation is over, no state left behind
	telegram.promptsMu.Lock()
	require.Empty(t, telegram.prompts)
	telegram.promptsMu.Unlock()
}

func TestSetAPIRejectsUnknownEnvironment(t *testing.T) {
	telegram, _ := newTestTelegram(t)
	sender := &tb.User{ID: 111}

	telegram.SetAPIHandle(&tb.Message{Sender: sender, Payload: "prod"})

	telegram.promptsMu.Lock()
	require.Empty(t, telegram.prompts)
	telegram.promptsMu.Unlock()
}

// telebot runs each handler in its own goroutine, so prompt state must
// survive concurrent command and text handlers
func TestSetAPIPromptsSurviveConcurrentHandlers(t *testing.T) {
	telegram, _ := newTestTelegram(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		sender := &tb.User{ID: int64(1000 + i)}
		wg.Add(1)
		go func() {
			defer wg.Done()
			telegram.SetAPIHandle(&tb.Message{Sender: sender, Payload: "mainnet"})
			telegram.TextHandle(&tb.Message{Sender: sender, Text: "key"})
		}()
	}
	wg.Wait()

	// Every conversation is mid-flight, waiting for its secret
	telegram.promptsMu.Lock()
	defer telegram.promptsMu.Unlock()
	require.Len(t, telegram.prompts, 16)
	for _, prompt := range telegram.prompts {
		require.Equal(t, "key", prompt.apiKey)
	}
}

func TestCloseAllRequiresConfirmation(t *testing.T) {
	// The controller is nil: reaching it without the confirm argument
	// would panic
	telegram, _ := newTestTelegram(t)

	telegram.CloseAllHandle(&tb.Message{Sender: &tb.User{ID: 111}, Payload: ""})
	telegram.CloseAllHandle(&tb.Message{Sender: &tb.User{ID: 111}, Payload: "later"})
}
