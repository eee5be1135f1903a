package inmemory

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sharetube/syncroom/internal/repository/connection"
)

const closeWait = time.Second

// repo tracks live websocket connections by attachment key so a replaced connection can be
// closed and every connection can be closed on shutdown.
type repo struct {
	connList map[*websocket.Conn]string
	keyList  map[string]*websocket.Conn
	mu       sync.RWMutex
	logger   *slog.Logger
}

func NewRepo(logger *slog.Logger) *repo {
	return &repo{
		connList: make(map[*websocket.Conn]string),
		keyList:  make(map[string]*websocket.Conn),
		logger:   logger,
	}
}

// Add registers conn under key. A connection previously registered under the same key is
// closed with code 4001.
func (r *repo) Add(conn *websocket.Conn, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connList[conn]; ok {
		return connection.ErrAlreadyExists
	}

	if prev, ok := r.keyList[key]; ok {
		delete(r.connList, prev)
		r.logger.Debug("closing replaced connection", "key", key)
		closeConn(prev, 4001, "replaced")
	}

	r.connList[conn] = key
	r.keyList[key] = conn
	return nil
}

func (r *repo) RemoveByConn(conn *websocket.Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key, ok := r.connList[conn]
	if !ok {
		return connection.ErrNotFound
	}

	delete(r.connList, conn)
	if r.keyList[key] == conn {
		delete(r.keyList, key)
	}
	return nil
}

func (r *repo) GetConn(key string) (*websocket.Conn, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.keyList[key]
	if !ok {
		return nil, connection.ErrNotFound
	}

	return conn, nil
}

func (r *repo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.connList)
}

// CloseAll sends a close frame with code to every connection and forgets them.
func (r *repo) CloseAll(code int, text string) int {
	r.mu.Lock()
	conns := r.connList
	r.connList = make(map[*websocket.Conn]string)
	r.keyList = make(map[string]*websocket.Conn)
	r.mu.Unlock()

	for conn := range conns {
		closeConn(conn, code, text)
	}
	r.logger.Info("closed connections", "count", len(conns), "code", code)

	return len(conns)
}

// closeConn relies on WriteControl and Close being safe next to a concurrent writer.
func closeConn(conn *websocket.Conn, code int, text string) {
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(closeWait))
	conn.Close()
}
