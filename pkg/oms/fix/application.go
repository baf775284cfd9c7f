package fixgateway

import (
	"bytes"
	"fmt"
	"os"
	"sync"

	"github.com/quickfixgo/enum"
	"github.com/quickfixgo/fix44/executionreport"
	"github.com/quickfixgo/quickfix"
	"github.com/quickfixgo/quickfix/log/file"
	"github.com/quickfixgo/tag"
	"go.uber.org/zap"
)

// Application implements the quickfix.Application interface for the
// initiator side of the broker session.
type Application struct {
	*quickfix.MessageRouter
	cfg        AppConfig
	logger     *zap.Logger
	dispatcher chan *inboundMsg
	stopOnce   sync.Once

	mu      sync.RWMutex
	session *quickfix.SessionID

	onReport func(executionReport)
}

type AppConfig struct {
	enableQueue bool
	username    string
	password    string
}

type inboundMsg struct {
	msg       *quickfix.Message
	sessionID quickfix.SessionID
}

const queueSize = 100_000

func newApplication(cfg AppConfig, logger *zap.Logger, onReport func(executionReport)) *Application {
	app := &Application{
		MessageRouter: quickfix.NewMessageRouter(),
		cfg:           cfg,
		logger:        logger,
		onReport:      onReport,
	}

	app.AddRoute(executionreport.Route(app.onExecutionReport))

	// one dispatcher keeps reports in arrival order and off the session goroutine
	if app.cfg.enableQueue {
		app.dispatcher = make(chan *inboundMsg, queueSize)
		go app.runDispatcher()
	}

	return app
}

func loadSettings(path string) (*quickfix.Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error opening %v, %v", path, err)
	}
	settings, err := quickfix.ParseSettings(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("error reading cfg: %s", err)
	}
	return settings, nil
}

func startInitiator(app *Application, settings *quickfix.Settings) (*quickfix.Initiator, error) {
	logFactory, err := file.NewLogFactory(settings)
	if err != nil {
		return nil, fmt.Errorf("unable to create log factory: %s", err)
	}
	initiator, err := quickfix.NewInitiator(app, quickfix.NewMemoryStoreFactory(), settings, logFactory)
	if err != nil {
		return nil, fmt.Errorf("unable to create initiator: %s", err)
	}
	if err := initiator.Start(); err != nil {
		return nil, fmt.Errorf("unable to start FIX initiator: %s", err)
	}
	return initiator, nil
}

func (a *Application) stop() {
	a.stopOnce.Do(func() {
		if a.dispatcher != nil {
			close(a.dispatcher)
		}
	})
}

// Session returns the logged-on session, if any.
func (a *Application) Session() (quickfix.SessionID, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.session == nil {
		return quickfix.SessionID{}, false
	}
	return *a.session, true
}

// OnCreate implemented as part of Application interface
func (a *Application) OnCreate(sessionID quickfix.SessionID) {}

// OnLogon implemented as part of Application interface
func (a *Application) OnLogon(sessionID quickfix.SessionID) {
	a.mu.Lock()
	a.session = &sessionID
	a.mu.Unlock()
	a.logger.Info("FIX session logged on", zap.String("session", sessionID.String()))
}

// OnLogout implemented as part of Application interface
func (a *Application) OnLogout(sessionID quickfix.SessionID) {
	a.mu.Lock()
	a.session = nil
	a.mu.Unlock()
	a.logger.Warn("FIX session logged out", zap.String("session", sessionID.String()))
}

// ToAdmin adds credentials to the outgoing Logon.
func (a *Application) ToAdmin(msg *quickfix.Message, sessionID quickfix.SessionID) {
	if !msg.IsMsgTypeOf(string(enum.MsgType_LOGON)) {
		return
	}
	if a.cfg.username != "" {
		msg.Body.SetString(tag.Username, a.cfg.username)
	}
	if a.cfg.password != "" {
		msg.Body.SetString(tag.Password, a.cfg.password)
	}
}

// ToApp implemented as part of Application interface
func (a *Application) ToApp(msg *quickfix.Message, sessionID quickfix.SessionID) error {
	return nil
}

// FromAdmin implemented as part of Application interface
func (a *Application) FromAdmin(msg *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	return nil
}

// FromApp implemented as part of Application interface, uses Router on incoming application messages
func (a *Application) FromApp(msg *quickfix.Message, sessionID quickfix.SessionID) (reject quickfix.MessageRejectError) {
	if a.cfg.enableQueue {
		a.dispatcher <- &inboundMsg{msg, sessionID}
		return nil
	}
	return a.Route(msg, sessionID)
}

func (a *Application) runDispatcher() {
	for msg := range a.dispatcher {
		if err := a.Route(msg.msg, msg.sessionID); err != nil {
			a.logger.Warn("route error", zap.Error(err))
		}
	}
}

func (a *Application) onExecutionReport(msg executionreport.ExecutionReport, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	report, err := parseExecutionReport(msg)
	if err != nil {
		// reports for orders placed by other tools on the same account
		a.logger.Debug("skip execution report", zap.Error(err))
		return nil
	}
	a.onReport(report)
	return nil
}
