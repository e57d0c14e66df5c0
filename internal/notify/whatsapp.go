package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/nahidhasan98/icon-sync/internal/logger"
)

// WhatsAppOptions configures the WhatsApp session
type WhatsAppOptions struct {
	DBDriver   string
	DBDSN      string
	LogLevel   string
	DeviceName string // shown in WhatsApp's linked devices
	QROutput   io.Writer
}

// backoff controls automatic reconnection
type backoff struct {
	maxRetries int
	initial    time.Duration
	max        time.Duration
	multiplier float64
}

func (b backoff) next(d time.Duration) time.Duration {
	d = time.Duration(float64(d) * b.multiplier)
	if d > b.max {
		d = b.max
	}
	return d
}

// WhatsApp is a linked-device session used to send sync notifications
type WhatsApp struct {
	client *whatsmeow.Client
	log    *logger.Logger
	qrOut  io.Writer

	mu              sync.RWMutex
	connected       bool
	retry           backoff
	cancelReconnect context.CancelFunc
}

// NewWhatsApp opens the session store and prepares a client. Call Connect
// before sending.
func NewWhatsApp(ctx context.Context, opts WhatsAppOptions, log *logger.Logger) (*WhatsApp, error) {
	container, err := sqlstore.New(ctx, opts.DBDriver, opts.DBDSN, waLog.Stdout("Database", opts.LogLevel, true))
	if err != nil {
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device store: %w", err)
	}

	if opts.DeviceName == "" {
		opts.DeviceName = "icon-sync"
	}
	store.SetOSInfo(opts.DeviceName, [3]uint32{0, 1, 0})
	device.Platform = opts.DeviceName

	if opts.QROutput == nil {
		opts.QROutput = os.Stdout
	}

	wa := &WhatsApp{
		client: whatsmeow.NewClient(device, waLog.Stdout("Client", opts.LogLevel, true)),
		log:    log,
		qrOut:  opts.QROutput,
		retry: backoff{
			maxRetries: 10,
			initial:    5 * time.Second,
			max:        5 * time.Minute,
			multiplier: 1.5,
		},
	}
	wa.client.AddEventHandler(wa.handleEvent)
	return wa, nil
}

func (w *WhatsApp) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected:
		w.mu.Lock()
		w.connected = true
		if w.cancelReconnect != nil {
			w.cancelReconnect()
			w.cancelReconnect = nil
		}
		w.mu.Unlock()
		w.log.Info("WhatsApp client connected")

	case *events.Disconnected:
		w.mu.Lock()
		w.connected = false
		idle := w.cancelReconnect == nil
		w.mu.Unlock()

		w.log.Warn("WhatsApp client disconnected")
		if idle {
			go w.reconnect()
		}

	case *events.LoggedOut:
		w.mu.Lock()
		w.connected = false
		w.mu.Unlock()
		w.log.Warnf("WhatsApp session logged out: %v", v.Reason)

	case *events.StreamError:
		w.log.Errorf("WhatsApp stream error: %v", v)
	}
}

func (w *WhatsApp) reconnect() {
	w.mu.Lock()
	if w.connected || w.cancelReconnect != nil {
		w.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancelReconnect = cancel
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.cancelReconnect = nil
		w.mu.Unlock()
	}()

	interval := w.retry.initial
	for attempt := 1; attempt <= w.retry.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		if w.client.IsConnected() {
			w.mu.Lock()
			w.connected = true
			w.mu.Unlock()
			return
		}

		w.log.Infof("WhatsApp reconnection attempt %d/%d", attempt, w.retry.maxRetries)
		if err := w.client.Connect(); err != nil {
			w.log.Errorf("WhatsApp reconnection attempt %d failed: %v", attempt, err)
			interval = w.retry.next(interval)
			continue
		}
		return
	}

	w.log.Error("All WhatsApp reconnection attempts failed", nil)
}

// Connect connects an existing session, or starts QR pairing in the
// background when there is none so the caller is not blocked.
func (w *WhatsApp) Connect(ctx context.Context) error {
	if w.client.Store.ID == nil {
		w.log.Info("No WhatsApp session found, starting QR pairing")
		go w.pair(ctx)
		return nil
	}

	w.log.Info("WhatsApp session found, connecting")
	if err := w.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect client: %w", err)
	}

	w.mu.Lock()
	w.connected = true
	w.mu.Unlock()
	w.log.Infof("WhatsApp device ID: %s", w.client.Store.ID.String())
	return nil
}

func (w *WhatsApp) pair(ctx context.Context) {
	const attempts = 5

	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return
		}
		if attempt > 1 {
			w.log.Infof("Generating new QR code (attempt %d/%d)", attempt, attempts)
			time.Sleep(5 * time.Second)
		}

		qrCtx, qrCancel := context.WithTimeout(ctx, 60*time.Second)
		qrChan, err := w.client.GetQRChannel(qrCtx)
		if err != nil {
			qrCancel()
			w.log.Errorf("Failed to get QR channel: %v", err)
			continue
		}

		if !w.client.IsConnected() {
			if err := w.client.Connect(); err != nil {
				qrCancel()
				w.log.Errorf("Failed to connect client: %v", err)
				continue
			}
		}

		paired, cancelled := w.awaitScan(ctx, qrCtx, qrChan)
		qrCancel()

		if cancelled {
			return
		}
		if paired {
			w.mu.Lock()
			w.connected = true
			w.mu.Unlock()
			w.log.Info("WhatsApp pairing successful")
			return
		}
		w.log.Warn("QR code was not scanned, retrying")
	}

	w.log.Error("WhatsApp pairing failed after multiple attempts", nil)
}

// awaitScan returns (paired, cancelled)
func (w *WhatsApp) awaitScan(parent, qrCtx context.Context, qrChan <-chan whatsmeow.QRChannelItem) (bool, bool) {
	for {
		select {
		case <-parent.Done():
			return false, true
		case <-qrCtx.Done():
			return false, false
		case evt, ok := <-qrChan:
			if !ok {
				return false, parent.Err() != nil
			}

			switch evt.Event {
			case "code":
				rule := strings.Repeat("=", 64)
				fmt.Fprintf(w.qrOut, "\n%s\nScan with WhatsApp > Settings > Linked Devices to receive icon sync notifications\n%s\n", rule, rule)
				qrterminal.GenerateWithConfig(evt.Code, qrterminal.Config{
					Level:      qrterminal.M,
					Writer:     w.qrOut,
					HalfBlocks: true,
					QuietZone:  1,
				})
			case "success":
				return true, false
			case "timeout":
				return false, false
			default:
				w.log.Infof("WhatsApp pairing event: %s", evt.Event)
			}
		}
	}
}

// Disconnect stops reconnection and closes the session
func (w *WhatsApp) Disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancelReconnect != nil {
		w.cancelReconnect()
		w.cancelReconnect = nil
	}
	w.client.Disconnect()
	w.connected = false
	w.log.Info("Disconnected from WhatsApp")
}

// IsConnected reports whether messages can be sent right now
func (w *WhatsApp) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connected && w.client.IsConnected() && w.client.Store.ID != nil
}

// SendText implements TextSender
func (w *WhatsApp) SendText(ctx context.Context, to string, text string) error {
	if !w.IsConnected() {
		return fmt.Errorf("whatsapp client is not connected")
	}

	jid, err := types.ParseJID(to)
	if err != nil {
		return fmt.Errorf("invalid JID %s: %w", to, err)
	}

	msg := &waE2E.Message{Conversation: proto.String(text)}
	if _, err := w.client.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}
